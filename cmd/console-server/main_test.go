package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/carecase/console/internal/config"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/db"
)

// fakeAPI serves one home visit and records the bearer tokens it saw.
func fakeAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/survivorship/home-visits/":
			w.Write([]byte(`[
				{"id": 1, "patient": {"patient_id": "P-1", "full_name": "Ana Cruz"}, "status": "Pending",
				 "purpose": "Wound check", "created_at": "2026-05-01"},
				{"id": 2, "patient": {"patient_id": "P-2", "full_name": "Ben Reyes"}, "status": "Done",
				 "purpose": "Pain review", "created_at": "2026-06-02", "visit_date": "2026-06-09"}
			]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &tokens
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Port:          "0",
		Env:           "development",
		APIBaseURL:    apiURL,
		APITimeout:    time.Second,
		NotifyTTL:     3 * time.Second,
		ScreenIdleTTL: time.Minute,
		UploadLimit:   "20M",
	}
}

func devToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject, "roles": roles})
	s, err := token.SignedString([]byte("dev"))
	require.NoError(t, err)
	return s
}

func serve(srv *server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestBuildModules(t *testing.T) {
	mods, err := buildModules(casework.Deps{
		Client: apiclient.New(apiclient.Options{BaseURL: "http://api.invalid"}, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	keys := make([]string, len(mods))
	seen := map[string]bool{}
	for i, m := range mods {
		keys[i] = m.Info().Key
		assert.False(t, seen[keys[i]], "duplicate feature %s", keys[i])
		seen[keys[i]] = true
		m.Close()
	}
	assert.Equal(t, []string{
		"patients", "medication-requests",
		"screenings", "precancerous",
		"treatment-assistance", "post-treatment",
		"home-visits", "hormonal-replacement",
		"psychosocial-activities",
		"users",
	}, keys)
}

func TestNewServer_Routes(t *testing.T) {
	api, tokens := fakeAPI(t)
	srv, err := newServer(context.Background(), testConfig(api.URL), nil, zerolog.Nop())
	require.NoError(t, err)
	defer srv.close()
	defer srv.catalog.Close()

	rec := serve(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(srv, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = serve(srv, http.MethodGet, "/console/v1/features", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Features []casework.FeatureInfo `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Features, 10)

	staff := devToken(t, "nurse-1", "staff")
	rec = serve(srv, http.MethodGet, "/console/v1/home-visits/records?status=Pending", staff)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_records":1`)
	require.NotEmpty(t, *tokens)
	assert.Equal(t, "Bearer "+staff, (*tokens)[len(*tokens)-1], "operator token is forwarded")

	rec = serve(srv, http.MethodGet, "/console/v1/features", staff)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Features, 9, "users is admin only")

	assert.Equal(t, http.StatusForbidden, serve(srv, http.MethodGet, "/console/v1/users/records", staff).Code)
	assert.Equal(t, http.StatusForbidden, serve(srv, http.MethodGet, "/console/v1/admin/audit", staff).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, http.MethodGet, "/console/v1/admin/audit", "").Code, "no audit database")
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/console/v1/notifications", staff).Code)
}

func TestRunExport(t *testing.T) {
	api, tokens := fakeAPI(t)
	out := filepath.Join(t.TempDir(), "visits.xlsx")

	err := runExport(context.Background(), testConfig(api.URL), exportOptions{
		feature: "home-visits",
		status:  "Done",
		format:  "xlsx",
		output:  out,
		token:   "cli-token",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Bearer cli-token", (*tokens)[len(*tokens)-1])

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)

	var found bool
	for _, row := range rows {
		joined := strings.Join(row, "|")
		assert.NotContains(t, joined, "Ana Cruz", "status filter applies")
		if strings.Contains(joined, "Ben Reyes") {
			found = true
		}
	}
	assert.True(t, found, "expected the Done visit in %v", rows)
}

func TestRunExport_Errors(t *testing.T) {
	api, _ := fakeAPI(t)
	cfg := testConfig(api.URL)
	dir := t.TempDir()

	tests := []struct {
		name string
		opts exportOptions
		want string
	}{
		{"unknown feature", exportOptions{feature: "billing", format: "xlsx"}, "unknown feature"},
		{"bad format", exportOptions{feature: "home-visits", format: "docx"}, "format"},
		{"bad month", exportOptions{feature: "home-visits", format: "html", month: 13}, "month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.output = filepath.Join(dir, tt.name)
			err := runExport(context.Background(), cfg, tt.opts, zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExportOptions_Criteria(t *testing.T) {
	c := exportOptions{search: "  cruz ", status: "Pending", month: 3, year: 2026}.criteria()
	assert.Equal(t, "cruz", c.Search)
	assert.Equal(t, "Pending", c.Status)
	assert.Equal(t, 3, c.Month)
	assert.Equal(t, 2026, c.Year)
	assert.Zero(t, c.Week)
}

func TestPrintStatuses(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printStatuses(&buf, "public", []db.MigrationStatus{
		{Version: 1, Name: "action_audit", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "next"},
	})
	out := buf.String()
	assert.Contains(t, out, "Migration status for schema: public")
	assert.Contains(t, out, "2026-01-02 03:04:05")
	assert.Contains(t, out, "pending")
}
