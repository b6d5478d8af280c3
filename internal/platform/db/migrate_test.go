package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
)

func mapFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, content := range files {
		out[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return out
}

func TestLoadMigrations(t *testing.T) {
	files := mapFS(map[string]string{
		"001_action_audit.sql": "CREATE TABLE action_audit (id UUID PRIMARY KEY);",
		"002_indexes.sql":      "CREATE INDEX ON action_audit (operator);",
		"003_feature.sql":      "ALTER TABLE action_audit ADD COLUMN feature TEXT;",
	})

	migrations, err := NewMigrator(nil, files, "", zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_action_audit.sql" {
		t.Errorf("unexpected first migration %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE action_audit (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrderAndSkips(t *testing.T) {
	files := mapFS(map[string]string{
		"010_tables.sql":     "SELECT 10;",
		"002_second.sql":     "SELECT 2;",
		"001_first.sql":      "SELECT 1;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not sql",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"sub/004_nested.sql": "SELECT 4;",
	})

	migrations, err := NewMigrator(nil, files, "", zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	want := []int{1, 2, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}, "", zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}, {Version: 5}}
	applied := map[int]time.Time{1: time.Now()}

	tests := []struct {
		name   string
		target int
		want   []int
	}{
		{"all", 0, []int{2, 3, 5}},
		{"up to 3", 3, []int{2, 3}},
		{"up to 4", 4, []int{2, 3}},
		{"already applied", 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pending(migrations, applied, tt.target)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d migrations, want %d", len(got), len(tt.want))
			}
			for i, v := range tt.want {
				if got[i].Version != v {
					t.Errorf("pending[%d] = %d, want %d", i, got[i].Version, v)
				}
			}
		})
	}
}

func TestStatuses(t *testing.T) {
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	migrations := []Migration{
		{Version: 1, Name: "001_action_audit.sql"},
		{Version: 2, Name: "002_indexes.sql"},
	}
	statuses := Statuses(migrations, map[int]time.Time{1: at})

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %v, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", statuses[1])
	}
}

func TestNewMigrator_DefaultSchema(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{}, "", zerolog.Nop())
	if m.schema != DefaultSchema {
		t.Errorf("expected schema %q, got %q", DefaultSchema, m.schema)
	}
	if m := NewMigrator(nil, fstest.MapFS{}, "console", zerolog.Nop()); m.schema != "console" {
		t.Errorf("expected schema console, got %q", m.schema)
	}
}
