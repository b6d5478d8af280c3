package casework

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/audit"
	"github.com/carecase/console/internal/platform/blobstore"
	"github.com/carecase/console/internal/platform/flash"
	"github.com/carecase/console/internal/platform/notification"
	"github.com/carecase/console/internal/platform/reporting"
	"github.com/carecase/console/internal/platform/websocket"
	"github.com/carecase/console/pkg/pagination"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrNoForm          = errors.New("feature has no add form")
	ErrUnknownDocument = errors.New("unknown document")
	ErrNoStaging       = errors.New("attachment staging is not configured")
)

// MissingDocumentsError lists the required document slots without a file.
type MissingDocumentsError struct {
	Keys   []string
	Labels []string
}

func (e *MissingDocumentsError) Error() string {
	return "missing documents: " + strings.Join(e.Keys, ", ")
}

// Deps are the shared services every feature module uses.
type Deps struct {
	Client   *apiclient.Client
	Center   *notification.Center
	Trail    *audit.Trail
	Flash    flash.Store
	Blobs    blobstore.BlobStore
	Exporter *reporting.Exporter
	Events   websocket.EventPublisher
	IdleTTL  time.Duration
	Logger   zerolog.Logger
}

// Module is the service behind one feature: it owns the operators' screens
// and exposes the list, detail, form and action operations.
type Module[T listing.Record] struct {
	feature *Feature[T]
	repo    Repository[T]
	deps    Deps
	screens *Registry[T]
	logger  zerolog.Logger
	now     func() time.Time
}

// NewModule creates the module of f over the remote API.
func NewModule[T listing.Record](f *Feature[T], deps Deps) (*Module[T], error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("feature %s: api client is required", f.Key)
	}
	return NewModuleWithRepository(f, NewAPIRepository(deps.Client, f, deps.Blobs, deps.Logger), deps)
}

// NewModuleWithRepository creates the module of f over repo.
func NewModuleWithRepository[T listing.Record](f *Feature[T], repo Repository[T], deps Deps) (*Module[T], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if deps.Center == nil {
		deps.Center = notification.NewCenter(notification.DefaultTTL, deps.Events, deps.Logger)
	}
	if deps.Trail == nil {
		deps.Trail = audit.NewTrail(nil, deps.Logger)
	}
	if deps.Flash == nil {
		deps.Flash = flash.NewMemoryStore()
	}
	if deps.Exporter == nil {
		deps.Exporter = reporting.NewExporter(nil)
	}

	m := &Module[T]{
		feature: f,
		repo:    repo,
		deps:    deps,
		logger:  deps.Logger.With().Str("feature", f.Key).Logger(),
		now:     time.Now,
	}
	m.screens = NewRegistry[T](m.newScreen, deps.IdleTTL)
	return m, nil
}

func (m *Module[T]) newScreen(operator string) *Screen[T] {
	s := &Screen[T]{Operator: operator}
	s.List = listing.NewController[T](m.repo.List, m.feature.Sort)
	s.Actions = action.New(action.Config{
		Specs:      m.feature.Specs(),
		Mutator:    m.repo,
		Refresher:  action.RefreshFunc(s.Refresh),
		Notifier:   m.deps.Center.For(context.Background(), operator, m.feature.Key),
		Auditor:    m.deps.Trail.For(m.feature.Key),
		Optimistic: optimisticStatus(s.List),
		Operator:   operator,
		Logger:     m.logger,
	})
	return s
}

func (m *Module[T]) Feature() *Feature[T] { return m.feature }

func (m *Module[T]) Info() FeatureInfo { return m.feature.Info() }

// Sweep evicts idle screens.
func (m *Module[T]) Sweep() int { return m.screens.Evict() }

// Close unmounts every screen.
func (m *Module[T]) Close() { m.screens.Close() }

// MessageKey is the flash key of the message shown on the next list mount.
func MessageKey(operator, feature string) string {
	return flash.Key(operator, feature, "message")
}

func (m *Module[T]) handoffKey(operator, id string) string {
	return flash.Key(operator, m.feature.Key, "record", id)
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

// ListQuery carries the list parameters of one request. Zero or nil fields
// leave the screen's state untouched.
type ListQuery struct {
	Criteria *listing.Criteria
	PerPage  int
	Page     int
	Refresh  bool
}

// Row is a listed record with the actions offered for it.
type Row[T listing.Record] struct {
	Record  T        `json:"record"`
	Actions []string `json:"actions"`
}

// ListView is the rendered state of a list screen.
type ListView[T listing.Record] struct {
	Feature string   `json:"feature"`
	Title   string   `json:"title"`
	Records []Row[T] `json:"records"`
	pagination.Page
	Filters  listing.FilterState `json:"filters"`
	Statuses []string            `json:"statuses"`
	Pending  *action.Modal       `json:"pending,omitempty"`
	Flash    string              `json:"flash,omitempty"`
}

// List applies q to the operator's screen, loading the collection on first
// mount or when a refresh is requested, and returns the current page.
func (m *Module[T]) List(ctx context.Context, operator string, q ListQuery) (ListView[T], error) {
	s, release := m.screens.Get(operator)
	defer release()

	prev := s.List.Filters()
	if q.Criteria != nil {
		s.List.SetFilters(*q.Criteria)
	}
	if q.PerPage > 0 {
		s.List.SetPerPage(q.PerPage)
	}
	if cur := s.List.Filters(); q.Page > 0 && cur.Criteria == prev.Criteria && cur.PerPage == prev.PerPage {
		s.List.SetPage(q.Page)
	}

	if !s.List.Loaded() || q.Refresh {
		if err := s.Refresh(ctx); err != nil {
			m.loadFailed(ctx, operator, err)
			return ListView[T]{}, err
		}
	}

	return m.view(ctx, s), nil
}

func (m *Module[T]) view(ctx context.Context, s *Screen[T]) ListView[T] {
	res := s.List.View()
	filters := s.List.Filters()
	filters.Page = res.CurrentPage

	rows := make([]Row[T], len(res.Paginated))
	for i, r := range res.Paginated {
		rows[i] = Row[T]{Record: r, Actions: m.feature.ActionsFor(r.RecordStatus())}
	}

	v := ListView[T]{
		Feature:  m.feature.Key,
		Title:    m.feature.Title,
		Records:  rows,
		Page:     pagination.NewPage(res.TotalRecords, res.CurrentPage, res.PerPage),
		Filters:  filters,
		Statuses: m.feature.Statuses,
	}
	if modal, ok := s.Actions.Pending(); ok {
		v.Pending = &modal
	}

	msg, err := m.deps.Flash.Take(ctx, MessageKey(s.Operator, m.feature.Key))
	switch {
	case err == nil:
		v.Flash = string(msg)
	case !errors.Is(err, flash.ErrMiss):
		m.logger.Warn().Err(err).Str("operator", s.Operator).Msg("failed to read flash message")
	}
	return v
}

func (m *Module[T]) loadFailed(ctx context.Context, operator string, err error) {
	m.logger.Warn().Err(err).Str("operator", operator).Msg("list load failed")
	_, terr := m.deps.Center.PushTemplate(ctx, operator, m.feature.Key, notification.TplLoadFailed, map[string]string{
		"report": m.feature.ReportName(),
		"reason": apiclient.UserMessage(err),
	})
	if terr != nil {
		m.logger.Error().Err(terr).Msg("failed to render load failure notification")
	}
}

// ---------------------------------------------------------------------------
// Detail
// ---------------------------------------------------------------------------

// Open hands the listed record over to the detail view so it opens without
// another fetch.
func (m *Module[T]) Open(ctx context.Context, operator, id string) error {
	s, release, ok := m.screens.Lookup(operator)
	defer release()
	if !ok {
		return ErrRecordNotFound
	}
	rec, ok := s.List.Find(id)
	if !ok {
		return ErrRecordNotFound
	}
	return flash.PutJSON(ctx, m.deps.Flash, m.handoffKey(operator, id), rec, flash.DefaultTTL)
}

// Detail returns the record handed over by Open, or fetches it.
func (m *Module[T]) Detail(ctx context.Context, operator, id string) (T, error) {
	var rec T
	err := flash.TakeJSON(ctx, m.deps.Flash, m.handoffKey(operator, id), &rec)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, flash.ErrMiss) {
		m.logger.Warn().Err(err).Str("record_id", id).Msg("discarding unreadable record hand-off")
	}
	return m.repo.Get(ctx, id)
}

// ---------------------------------------------------------------------------
// Add form
// ---------------------------------------------------------------------------

// Form returns the add form schema and its default values.
func (m *Module[T]) Form() (*form.Schema, form.Values, error) {
	if m.feature.Schema == nil {
		return nil, nil, ErrNoForm
	}
	return m.feature.Schema, m.feature.Schema.Defaults(), nil
}

// Attach stages uploaded files and resolves references to files the operator
// staged earlier. Both are keyed by document key.
func (m *Module[T]) Attach(ctx context.Context, operator string, uploads map[string]*multipart.FileHeader, staged map[string]string) (form.Attachments, error) {
	schema := m.feature.Schema
	if schema == nil {
		return nil, ErrNoForm
	}
	at := form.Attachments{}
	if len(uploads) == 0 && len(staged) == 0 {
		return at, nil
	}
	if m.deps.Blobs == nil {
		return nil, ErrNoStaging
	}

	for key, blobID := range staged {
		if _, ok := schema.Slot(key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, key)
		}
		meta, err := m.deps.Blobs.GetMetadata(ctx, blobID)
		if err != nil || meta.Owner != operator || meta.Feature != m.feature.Key {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrBlobNotFound, blobID)
		}
		at.Set(attachmentOf(key, meta))
	}

	for key, fh := range uploads {
		if _, ok := schema.Slot(key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, key)
		}
		meta, err := blobstore.StageFile(ctx, m.deps.Blobs, operator, m.feature.Key, key, fh)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", key, err)
		}
		at.Set(attachmentOf(key, meta))
	}
	return at, nil
}

func attachmentOf(key string, meta *blobstore.BlobMetadata) *form.Attachment {
	return &form.Attachment{
		Key:         key,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		BlobID:      meta.ID,
	}
}

// Create validates the add form and starts the submit action. The record is
// sent when the operator confirms.
func (m *Module[T]) Create(ctx context.Context, operator string, v form.Values, at form.Attachments) (action.Modal, error) {
	schema := m.feature.Schema
	if schema == nil {
		return action.Modal{}, ErrNoForm
	}
	if errs := schema.Validate(v); len(errs) > 0 {
		return action.Modal{}, errs
	}
	if missing := schema.Missing(at); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, key := range missing {
			slot, _ := schema.Slot(key)
			labels[i] = slot.Label
		}
		if _, err := m.deps.Center.PushTemplate(ctx, operator, m.feature.Key, notification.TplMissingFiles,
			map[string]string{"missing": strings.Join(labels, ", ")}); err != nil {
			m.logger.Error().Err(err).Msg("failed to render missing documents notification")
		}
		return action.Modal{}, &MissingDocumentsError{Keys: missing, Labels: labels}
	}

	s, release := m.screens.Get(operator)
	defer release()
	return s.Actions.Begin(action.Descriptor{
		Type:       action.TypeSubmit,
		Subject:    submissionSubject(v),
		Submission: schema.NewSubmission(v, at),
	})
}

func submissionSubject(v form.Values) string {
	if n := strings.TrimSpace(v["full_name"]); n != "" {
		return n
	}
	return strings.Join(strings.Fields(v["first_name"]+" "+v["last_name"]), " ")
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// BeginAction starts actionType on a listed record.
func (m *Module[T]) BeginAction(ctx context.Context, operator, recordID, actionType string) (action.Modal, error) {
	if actionType == action.TypeSubmit {
		return action.Modal{}, fmt.Errorf("%w: %q", action.ErrUnknownAction, actionType)
	}
	s, release := m.screens.Get(operator)
	defer release()
	if !s.List.Loaded() {
		if err := s.Refresh(ctx); err != nil {
			m.loadFailed(ctx, operator, err)
			return action.Modal{}, err
		}
	}
	rec, ok := s.List.Find(recordID)
	if !ok {
		return action.Modal{}, ErrRecordNotFound
	}
	return s.Actions.Begin(action.Descriptor{
		Type:     actionType,
		RecordID: recordID,
		Status:   rec.RecordStatus(),
		Subject:  m.feature.SubjectOf(rec),
	})
}

// Pending returns the operator's pending action.
func (m *Module[T]) Pending(operator string) (action.Modal, bool) {
	s, release, ok := m.screens.Lookup(operator)
	defer release()
	if !ok {
		return action.Modal{}, false
	}
	return s.Actions.Pending()
}

func (m *Module[T]) ProvideInput(operator string, in action.Input) (action.Modal, error) {
	s, release, ok := m.screens.Lookup(operator)
	defer release()
	if !ok {
		return action.Modal{}, action.ErrNoPending
	}
	return s.Actions.ProvideInput(in)
}

func (m *Module[T]) Cancel(operator string) error {
	s, release, ok := m.screens.Lookup(operator)
	defer release()
	if !ok {
		return action.ErrNoPending
	}
	return s.Actions.Cancel()
}

// Confirm sends the pending action. A failed mutation is not an error here:
// the operator has already been notified and the outcome says so. Only
// sequencing errors are returned.
func (m *Module[T]) Confirm(ctx context.Context, operator string) (action.Outcome, error) {
	s, release, ok := m.screens.Lookup(operator)
	defer release()
	if !ok {
		return action.Outcome{}, action.ErrNoPending
	}
	out, err := s.Actions.Confirm(ctx)
	if errors.Is(err, action.ErrNoPending) || errors.Is(err, action.ErrWrongState) {
		return out, err
	}
	if !out.Succeeded {
		return out, nil
	}

	if out.Type == action.TypeSubmit {
		if err := m.deps.Flash.Put(ctx, MessageKey(operator, m.feature.Key), []byte(out.Message), flash.DefaultTTL); err != nil {
			m.logger.Warn().Err(err).Msg("failed to store flash message")
		}
	}
	if m.deps.Events != nil {
		ev := websocket.Event{
			Type:     websocket.EventListRefreshed,
			Topic:    websocket.FeatureTopic(m.feature.Key),
			Feature:  m.feature.Key,
			RecordID: out.RecordID,
		}
		if err := m.deps.Events.Publish(ctx, ev); err != nil {
			m.logger.Warn().Err(err).Msg("failed to publish list refresh")
		}
	}
	return out, nil
}

// Unmount closes the operator's screen.
func (m *Module[T]) Unmount(operator string) bool {
	return m.screens.Drop(operator)
}

// ---------------------------------------------------------------------------
// Print & export
// ---------------------------------------------------------------------------

// Report builds the print document of the operator's filtered, unpaginated
// list.
func (m *Module[T]) Report(ctx context.Context, operator string) (reporting.Report, error) {
	s, release := m.screens.Get(operator)
	defer release()
	if !s.List.Loaded() {
		if err := s.Refresh(ctx); err != nil {
			m.loadFailed(ctx, operator, err)
			return reporting.Report{}, err
		}
	}
	return m.feature.BuildReport(s.List.Filtered(), s.List.Filters().Criteria, m.now()), nil
}

// ReportFor fetches the collection and builds the report of the records
// matching c, without an operator screen.
func (m *Module[T]) ReportFor(ctx context.Context, c listing.Criteria) (reporting.Report, error) {
	records, err := m.repo.List(ctx)
	if err != nil {
		return reporting.Report{}, err
	}
	res := listing.Derive(records, listing.FilterState{Criteria: c, Page: 1}, m.feature.Sort)
	return m.feature.BuildReport(res.Filtered, c, m.now()), nil
}

func (m *Module[T]) Exporter() *reporting.Exporter { return m.deps.Exporter }
