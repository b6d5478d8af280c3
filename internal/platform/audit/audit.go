// Package audit keeps the trail of every confirmed console action. Entries go
// to Postgres when a database is configured and always to the structured log.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/action"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one audited action.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ActionID   uuid.UUID `json:"action_id"`
	Feature    string    `json:"feature"`
	ActionType string    `json:"action_type"`
	RecordID   string    `json:"record_id"`
	Operator   string    `json:"operator"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
	ErrorText  string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewEntry builds the entry of a sequencer outcome.
func NewEntry(feature string, o action.Outcome) *Entry {
	e := &Entry{
		ActionID:   o.ActionID,
		Feature:    feature,
		ActionType: o.Type,
		RecordID:   o.RecordID,
		Operator:   o.Operator,
		Outcome:    OutcomeSuccess,
		Message:    o.Message,
		DurationMS: o.Duration.Milliseconds(),
		RecordedAt: o.At.UTC(),
	}
	if !o.Succeeded {
		e.Outcome = OutcomeFailure
	}
	if o.Err != nil {
		e.ErrorText = o.Err.Error()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return e
}

// SearchParams filters the trail. Zero values match everything.
type SearchParams struct {
	Operator string
	Feature  string
	RecordID string
	Outcome  string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

func (p *SearchParams) applyDefaults() {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// Store persists entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Search(ctx context.Context, p SearchParams) ([]*Entry, int, error)
}

// ---------------------------------------------------------------------------
// Postgres store
// ---------------------------------------------------------------------------

// PgStore writes to the action_audit table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, e *Entry) error {
	const query = `
		INSERT INTO action_audit (
			action_id, feature, action_type, record_id, operator,
			outcome, message, error_text, duration_ms, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		e.ActionID, e.Feature, e.ActionType, e.RecordID, e.Operator,
		e.Outcome, e.Message, e.ErrorText, e.DurationMS, e.RecordedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// whereClause renders the filter of p as SQL with positional arguments.
func whereClause(p SearchParams) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if p.Operator != "" {
		add("operator = $%d", p.Operator)
	}
	if p.Feature != "" {
		add("feature = $%d", p.Feature)
	}
	if p.RecordID != "" {
		add("record_id = $%d", p.RecordID)
	}
	if p.Outcome != "" {
		add("outcome = $%d", p.Outcome)
	}
	if p.Since != nil {
		add("recorded_at >= $%d", *p.Since)
	}
	if p.Until != nil {
		add("recorded_at <= $%d", *p.Until)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PgStore) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	p.applyDefaults()
	where, args := whereClause(p)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM action_audit"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count entries: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, action_id, feature, action_type, record_id, operator,
		outcome, message, error_text, duration_ms, recorded_at
		FROM action_audit%s ORDER BY recorded_at DESC LIMIT %d OFFSET %d`, where, p.Limit, p.Offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: search entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.ActionID, &e.Feature, &e.ActionType, &e.RecordID, &e.Operator,
			&e.Outcome, &e.Message, &e.ErrorText, &e.DurationMS, &e.RecordedAt)
		return &e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("audit: scan entries: %w", err)
	}
	return entries, total, nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemoryStore keeps entries in process memory, newest first on search.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

func matches(e *Entry, p SearchParams) bool {
	switch {
	case p.Operator != "" && e.Operator != p.Operator:
		return false
	case p.Feature != "" && e.Feature != p.Feature:
		return false
	case p.RecordID != "" && e.RecordID != p.RecordID:
		return false
	case p.Outcome != "" && e.Outcome != p.Outcome:
		return false
	case p.Since != nil && e.RecordedAt.Before(*p.Since):
		return false
	case p.Until != nil && e.RecordedAt.After(*p.Until):
		return false
	}
	return true
}

func (s *MemoryStore) Search(_ context.Context, p SearchParams) ([]*Entry, int, error) {
	p.applyDefaults()
	s.mu.RLock()
	var matched []*Entry
	for _, e := range s.entries {
		if matches(e, p) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	total := len(matched)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ---------------------------------------------------------------------------
// Trail
// ---------------------------------------------------------------------------

// ErrNoStore is returned by Search when no store is configured.
var ErrNoStore = errors.New("audit store not configured")

// Trail records outcomes to the log and, when present, the store.
type Trail struct {
	store  Store
	logger zerolog.Logger
}

// NewTrail creates a Trail. store may be nil.
func NewTrail(store Store, logger zerolog.Logger) *Trail {
	return &Trail{store: store, logger: logger.With().Str("component", "audit").Logger()}
}

// Write logs e and persists it. Store failures are logged, never returned,
// so a broken audit database does not fail the operator's action.
func (t *Trail) Write(ctx context.Context, e *Entry) {
	ev := t.logger.Info()
	if e.Outcome == OutcomeFailure {
		ev = t.logger.Warn()
	}
	ev.Str("feature", e.Feature).
		Str("action", e.ActionType).
		Str("record_id", e.RecordID).
		Str("operator", e.Operator).
		Str("outcome", e.Outcome).
		Int64("duration_ms", e.DurationMS).
		Msg("action audited")

	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.store.Insert(ctx, e); err != nil {
		t.logger.Error().Err(err).Str("action_id", e.ActionID.String()).Msg("failed to persist audit entry")
	}
}

func (t *Trail) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	if t.store == nil {
		return nil, 0, ErrNoStore
	}
	return t.store.Search(ctx, p)
}

// For returns the action auditor of one feature.
func (t *Trail) For(feature string) *FeatureAuditor {
	return &FeatureAuditor{trail: t, feature: feature}
}

// FeatureAuditor records sequencer outcomes of one feature.
type FeatureAuditor struct {
	trail   *Trail
	feature string
}

func (a *FeatureAuditor) Record(ctx context.Context, o action.Outcome) {
	a.trail.Write(ctx, NewEntry(a.feature, o))
}
