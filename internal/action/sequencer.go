package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/platform/apiclient"
)

// Mutator issues the remote mutation of a confirmed action.
type Mutator interface {
	Mutate(ctx context.Context, m Mutation) error
}

// Refresher re-fetches the list after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Notifier delivers transient operator notifications.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// Auditor records the outcome of every confirmed action.
type Auditor interface {
	Record(ctx context.Context, o Outcome)
}

// Optimistic applies a local edit before the mutation is issued and returns
// the function that undoes it.
type Optimistic func(spec Spec, desc Descriptor) (rollback func())

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Config wires a Sequencer.
type Config struct {
	Specs      []Spec
	Mutator    Mutator
	Refresher  Refresher
	Notifier   Notifier
	Auditor    Auditor
	Optimistic Optimistic
	Operator   string
	Logger     zerolog.Logger
}

type pending struct {
	spec  Spec
	desc  Descriptor
	input Input
}

// Sequencer is the per-screen action state machine. Only one action can be
// pending at a time; Begin fails with ErrBusy until the current one resolves
// or is cancelled.
type Sequencer struct {
	mu         sync.Mutex
	specs      map[string]Spec
	mutator    Mutator
	refresher  Refresher
	notifier   Notifier
	auditor    Auditor
	optimistic Optimistic
	operator   string
	logger     zerolog.Logger

	state   State
	pending *pending
}

// New creates an idle Sequencer.
func New(cfg Config) *Sequencer {
	specs := make(map[string]Spec, len(cfg.Specs))
	for _, s := range cfg.Specs {
		specs[s.Type] = s
	}
	return &Sequencer{
		specs:      specs,
		mutator:    cfg.Mutator,
		refresher:  cfg.Refresher,
		notifier:   cfg.Notifier,
		auditor:    cfg.Auditor,
		optimistic: cfg.Optimistic,
		operator:   cfg.Operator,
		logger:     cfg.Logger.With().Str("component", "sequencer").Logger(),
		state:      StateIdle,
	}
}

// Spec returns the declared spec for an action type.
func (s *Sequencer) Spec(actionType string) (Spec, bool) {
	spec, ok := s.specs[actionType]
	return spec, ok
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin starts an action. The descriptor gets a fresh id when it has none.
func (s *Sequencer) Begin(desc Descriptor) (Modal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return Modal{}, ErrBusy
	}
	spec, ok := s.specs[desc.Type]
	if !ok {
		return Modal{}, fmt.Errorf("%w: %q", ErrUnknownAction, desc.Type)
	}
	if !spec.Allows(desc.Status) {
		return Modal{}, fmt.Errorf("%w: %s on %q", ErrNotAllowed, desc.Type, desc.Status)
	}
	if desc.ID == uuid.Nil {
		desc.ID = uuid.New()
	}

	s.pending = &pending{spec: spec, desc: desc}
	if spec.Aux != AuxNone {
		s.state = StateAwaitingInput
	} else {
		s.state = StateAwaitingConfirmation
	}

	s.logger.Debug().
		Str("action", spec.Type).
		Str("record_id", desc.RecordID).
		Str("state", string(s.state)).
		Msg("action started")

	return s.modalLocked(), nil
}

// Pending returns the modal of the pending action.
func (s *Sequencer) Pending() (Modal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Modal{}, false
	}
	return s.modalLocked(), true
}

// ProvideInput records auxiliary input. Invalid input leaves the action
// awaiting input and raises an info notification; nothing is sent remotely.
func (s *Sequencer) ProvideInput(in Input) (Modal, error) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return Modal{}, ErrNoPending
	}
	if s.state != StateAwaitingInput {
		s.mu.Unlock()
		return Modal{}, ErrWrongState
	}

	if msg, ok := in.Validate(s.pending.spec.Aux); !ok {
		modal := s.modalLocked()
		s.mu.Unlock()
		s.notifyInfo(msg)
		return modal, fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	}

	s.pending.input = in
	s.state = StateAwaitingConfirmation
	modal := s.modalLocked()
	s.mu.Unlock()
	return modal, nil
}

// Cancel abandons the pending action without any remote call.
func (s *Sequencer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingInput, StateAwaitingConfirmation:
		s.state = StateIdle
		s.pending = nil
		return nil
	case StateIdle:
		return ErrNoPending
	default:
		return ErrWrongState
	}
}

// Confirm issues the mutation of the pending action. On success the list is
// refreshed once and a success notification is raised; on failure the
// optimistic edit is rolled back and an error notification is raised. The
// sequencer is idle again when Confirm returns.
func (s *Sequencer) Confirm(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return Outcome{}, ErrNoPending
	}
	if s.state != StateAwaitingConfirmation {
		s.mu.Unlock()
		return Outcome{}, ErrWrongState
	}
	s.state = StateInFlight
	p := *s.pending
	s.mu.Unlock()

	start := time.Now()
	rollback := func() {}
	if s.optimistic != nil && p.spec.Effect == EffectPatch {
		if rb := s.optimistic(p.spec, p.desc); rb != nil {
			rollback = rb
		}
	}

	mutation := buildMutation(p.spec, p.desc, p.input)
	err := s.mutator.Mutate(ctx, mutation)

	outcome := Outcome{
		ActionID:  p.desc.ID,
		Type:      p.spec.Type,
		RecordID:  p.desc.RecordID,
		Operator:  s.operator,
		Succeeded: err == nil,
		Err:       err,
		At:        start.UTC(),
	}

	log := s.logger.With().
		Str("action", p.spec.Type).
		Str("record_id", p.desc.RecordID).
		Str("operator", s.operator).
		Logger()

	if err != nil {
		rollback()
		outcome.Message = apiclient.UserMessage(err)
		outcome.Fields = apiclient.FieldMessages(err)
		log.Warn().Err(err).Msg("action failed")
		s.notifyError(outcome.Message)
	} else {
		outcome.Message = subjectText(p.spec.Success, p.desc.Subject)
		log.Info().Msg("action succeeded")
		if s.refresher != nil {
			if rerr := s.refresher.Refresh(ctx); rerr != nil {
				log.Warn().Err(rerr).Msg("refresh after action failed")
				s.notifyError(apiclient.UserMessage(rerr))
			}
		}
		s.notifySuccess(outcome.Message)
	}
	outcome.Duration = time.Since(start)

	if s.auditor != nil {
		s.auditor.Record(ctx, outcome)
	}

	s.mu.Lock()
	s.pending = nil
	s.state = StateIdle
	s.mu.Unlock()

	return outcome, err
}

func (s *Sequencer) modalLocked() Modal {
	p := s.pending
	return Modal{
		ActionID:     p.desc.ID,
		Type:         p.spec.Type,
		RecordID:     p.desc.RecordID,
		State:        s.state,
		Title:        p.spec.Title,
		Description:  subjectText(p.spec.Description, p.desc.Subject),
		ConfirmLabel: p.spec.ConfirmLabel,
		Aux:          p.spec.Aux,
		AuxField:     p.spec.auxField(),
		Input:        p.input,
	}
}

func (s *Sequencer) notifySuccess(msg string) {
	if s.notifier != nil && msg != "" {
		s.notifier.Success(msg)
	}
}

func (s *Sequencer) notifyError(msg string) {
	if s.notifier != nil && msg != "" {
		s.notifier.Error(msg)
	}
}

func (s *Sequencer) notifyInfo(msg string) {
	if s.notifier != nil && msg != "" {
		s.notifier.Info(msg)
	}
}
