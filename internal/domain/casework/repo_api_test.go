package casework

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/blobstore"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	patch    map[string]string
	parts    map[string]string
	fields   map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/cancer-screening/applications/":
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"count":2,"results":[
			{"id":1,"patient":{"patient_id":"P-001","full_name":"Ana Cruz"},"status":"Pending","date_submitted":"2026-03-02T09:00:00"},
			{"id":"2","patient":{"patient_id":"P-002","first_name":"Ben","last_name":"Reyes"},"status":"Approved","created_at":"2026-03-10"}
		]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/cancer-screening/applications/1/":
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":1,"patient":{"patient_id":"P-001","full_name":"Ana Cruz"},"status":"Pending"}`)
	case r.Method == http.MethodPatch && r.URL.Path == "/cancer-screening/applications/1/":
		json.NewDecoder(r.Body).Decode(&f.patch)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	case r.Method == http.MethodPatch:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"non_field_errors":["Request already released."]}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/cancer-screening/applications/2/":
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/cancer-screening/applications/" &&
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
		f.fields = map[string]string{}
		json.NewDecoder(r.Body).Decode(&f.fields)
		f.parts = nil
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":4}`)
	case r.Method == http.MethodPost && r.URL.Path == "/cancer-screening/applications/":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			f.fields[k] = v[0]
		}
		f.parts = map[string]string{}
		for k, fhs := range r.MultipartForm.File {
			src, _ := fhs[0].Open()
			b, _ := io.ReadAll(src)
			src.Close()
			f.parts[k] = fhs[0].Filename + ":" + string(b)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":3}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newAPIRepo(t *testing.T) (*fakeAPI, Repository[testRecord], *blobstore.InMemoryBlobStore) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL}, zerolog.Nop())
	blobs := blobstore.NewInMemoryBlobStore()
	return api, NewAPIRepository(client, testFeature(), blobs, zerolog.Nop()), blobs
}

func TestAPIRepository_List(t *testing.T) {
	_, repo, _ := newAPIRepo(t)
	records, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RecordID() != "1" || records[0].SubmittedAt().Day() != 2 {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].RecordID() != "2" || records[1].FullName() != "Ben Reyes" || records[1].LastName() != "Reyes" {
		t.Errorf("unexpected second record %+v", records[1])
	}
	if records[1].SubmittedAt().Day() != 10 {
		t.Errorf("created_at fallback not used: %v", records[1].SubmittedAt())
	}
}

func TestAPIRepository_GetAndNotFound(t *testing.T) {
	_, repo, _ := newAPIRepo(t)
	r, err := repo.Get(context.Background(), "1")
	if err != nil || r.PatientID() != "P-001" {
		t.Fatalf("get: %+v (%v)", r, err)
	}
	if _, err := repo.Get(context.Background(), "9"); !errors.Is(err, apiclient.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAPIRepository_PatchAndDelete(t *testing.T) {
	api, repo, _ := newAPIRepo(t)
	ctx := context.Background()

	err := repo.Mutate(ctx, action.Mutation{
		Effect:   action.EffectPatch,
		RecordID: "1",
		Payload:  map[string]string{"status": "Approved", "screening_date": "2026-05-01"},
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if api.patch["status"] != "Approved" || api.patch["screening_date"] != "2026-05-01" {
		t.Errorf("unexpected patch body %v", api.patch)
	}

	err = repo.Mutate(ctx, action.Mutation{Effect: action.EffectPatch, RecordID: "5", Payload: map[string]string{"status": "Approved"}})
	if got := apiclient.UserMessage(err); got != "Request already released." {
		t.Errorf("expected non_field_errors verbatim, got %q", got)
	}

	if err := repo.Mutate(ctx, action.Mutation{Effect: action.EffectDelete, RecordID: "2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestAPIRepository_SubmitMultipart(t *testing.T) {
	api, repo, blobs := newAPIRepo(t)
	ctx := context.Background()

	meta, err := blobs.Upload(ctx, blobstore.BlobMetadata{
		Owner: op, Feature: "screenings", Key: "referral",
		FileName: "referral.pdf", ContentType: "application/pdf",
	}, strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	sub := form.Submission{
		Fields:      map[string]string{"patient_id": "P-030", "full_name": "Gia Tan"},
		Attachments: []*form.Attachment{{Key: "referral", BlobID: meta.ID}},
	}
	if err := repo.Mutate(ctx, action.Mutation{Effect: action.EffectSubmit, Submission: sub}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if api.fields["full_name"] != "Gia Tan" {
		t.Errorf("unexpected fields %v", api.fields)
	}
	if api.parts["files.referral"] != "referral.pdf:%PDF-1.4" {
		t.Errorf("unexpected parts %v", api.parts)
	}
	if _, err := blobs.GetMetadata(ctx, meta.ID); !errors.Is(err, blobstore.ErrBlobNotFound) {
		t.Errorf("staged blob should be discarded after submit, got %v", err)
	}

	if err := repo.Mutate(ctx, action.Mutation{Effect: action.EffectSubmit}); err == nil {
		t.Error("expected error for a submit without submission")
	}
}

func TestAPIRepository_SubmitWithoutAttachments(t *testing.T) {
	api, repo, _ := newAPIRepo(t)

	sub := form.Submission{Fields: map[string]string{"patient_id": "P-031", "full_name": "Hana Sy"}}
	if err := repo.Mutate(context.Background(), action.Mutation{Effect: action.EffectSubmit, Submission: sub}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if api.fields["full_name"] != "Hana Sy" || api.parts != nil {
		t.Errorf("expected a JSON body, got fields %v parts %v", api.fields, api.parts)
	}
}
