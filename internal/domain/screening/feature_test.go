package screening

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
)

type memRepo struct {
	mu      sync.Mutex
	records []Application
	patches []action.Mutation
}

func (r *memRepo) List(ctx context.Context) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Application(nil), r.records...), nil
}

func (r *memRepo) Get(ctx context.Context, id string) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.records {
		if a.RecordID() == id {
			return a, nil
		}
	}
	return Application{}, casework.ErrRecordNotFound
}

func (r *memRepo) Mutate(ctx context.Context, m action.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, m)
	for i := range r.records {
		if r.records[i].RecordID() == m.RecordID {
			r.records[i].Status = m.Payload["status"]
		}
	}
	return nil
}

func app(id, name, status string) Application {
	return Application{CaseRecord: casework.CaseRecord{
		ID:      casework.ID(id),
		Patient: casework.PatientRef{PatientID: "S-" + id, FullName: name},
		Status:  status,
	}}
}

func TestFeatures_Validate(t *testing.T) {
	if err := ApplicationsFeature().Validate(); err != nil {
		t.Errorf("applications: %v", err)
	}
	if err := PrecancerousFeature().Validate(); err != nil {
		t.Errorf("precancerous: %v", err)
	}
}

func TestApplications_ActionsByStatus(t *testing.T) {
	f := ApplicationsFeature()
	tests := map[string][]string{
		StatusPending:   {"approve", "reject", "delete"},
		StatusApproved:  {"verify", "delete"},
		StatusRejected:  {"delete"},
		StatusCompleted: {"delete"},
	}
	for status, want := range tests {
		if got := f.ActionsFor(status); !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %v, want %v", status, got, want)
		}
	}
	if got := PrecancerousFeature().ActionsFor(StatusApproved); !reflect.DeepEqual(got, []string{"done"}) {
		t.Errorf("precancerous approved: %v", got)
	}
}

func TestApplication_Decode(t *testing.T) {
	raw := `{"id": "9", "patient": {"patient_id": "S-9", "first_name": "Rosa", "last_name": "Lim"},
		"status": "Approved", "screening_type": "Mammogram", "screening_date": "2026-05-20", "result_date": null}`
	var a Application
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.FullName() != "Rosa Lim" || a.ScreeningType != "Mammogram" || !a.ResultDate.IsZero() {
		t.Errorf("unexpected application %+v", a)
	}
	if !a.Scheduled(time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)) {
		t.Error("expected screening on the same day to count as scheduled")
	}
	if a.Scheduled(time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)) {
		t.Error("past screening reported as scheduled")
	}
}

func TestApplications_VerifyResult(t *testing.T) {
	repo := &memRepo{records: []Application{
		app("1", "Ana Cruz", StatusPending),
		app("2", "Ben Reyes", StatusApproved),
	}}
	mod, err := casework.NewModuleWithRepository(ApplicationsFeature(), casework.Repository[Application](repo), casework.Deps{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	defer mod.Close()
	ctx := context.Background()

	if _, err := mod.BeginAction(ctx, "op", "1", "verify"); !errors.Is(err, action.ErrNotAllowed) {
		t.Fatalf("verify on pending: expected ErrNotAllowed, got %v", err)
	}

	modal, err := mod.BeginAction(ctx, "op", "2", "verify")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if modal.State != action.StateAwaitingInput {
		t.Errorf("state = %s", modal.State)
	}
	if _, err := mod.ProvideInput("op", action.Input{}); !errors.Is(err, action.ErrInvalidInput) {
		t.Errorf("empty date: expected ErrInvalidInput, got %v", err)
	}
	if _, err := mod.ProvideInput("op", action.Input{Date: "2026-06-01"}); err != nil {
		t.Fatalf("input: %v", err)
	}
	out, err := mod.Confirm(ctx, "op")
	if err != nil || !out.Succeeded {
		t.Fatalf("confirm: %+v %v", out, err)
	}

	want := map[string]string{"status": StatusCompleted, "result_date": "2026-06-01"}
	if len(repo.patches) != 1 || !reflect.DeepEqual(repo.patches[0].Payload, want) {
		t.Errorf("patches = %+v", repo.patches)
	}
}
