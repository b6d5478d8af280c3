// Package action sequences state-changing operations on a record:
// collect auxiliary input, confirm, issue exactly one remote mutation,
// notify the operator and refresh the list.
package action

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the position of a screen's pending action.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingInput        State = "awaiting_input"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateInFlight             State = "in_flight"
)

// AuxKind is the auxiliary input an action needs before confirmation.
type AuxKind string

const (
	AuxNone    AuxKind = ""
	AuxDate    AuxKind = "date"
	AuxRemarks AuxKind = "remarks"
)

// Effect is the kind of remote mutation an action issues.
type Effect string

const (
	EffectPatch  Effect = "patch"
	EffectDelete Effect = "delete"
	EffectSubmit Effect = "submit"
)

// TypeSubmit is the action type used for creating a record from a form.
const TypeSubmit = "submit"

// DateLayout is the accepted format of date inputs.
const DateLayout = "2006-01-02"

var (
	ErrBusy          = errors.New("another action is pending")
	ErrUnknownAction = errors.New("unknown action")
	ErrNotAllowed    = errors.New("action not allowed for record status")
	ErrInvalidInput  = errors.New("invalid action input")
	ErrNoPending     = errors.New("no pending action")
	ErrWrongState    = errors.New("pending action is not in the expected state")
)

// Spec declares one action type of a feature.
type Spec struct {
	Type         string `json:"type"`
	Label        string `json:"label"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ConfirmLabel string `json:"confirm_label"`
	// From lists the record statuses the action is offered for. Empty means
	// any status.
	From     map[string]bool `json:"-"`
	Aux      AuxKind         `json:"aux,omitempty"`
	AuxField string          `json:"aux_field,omitempty"`
	Effect   Effect          `json:"effect"`
	ToStatus string          `json:"to_status,omitempty"`
	// Success is the operator notification on success. {{patient}} is
	// replaced with the record's subject.
	Success string `json:"-"`
}

// Allows reports whether the action is offered for a record in status.
func (s Spec) Allows(status string) bool {
	return len(s.From) == 0 || s.From[status]
}

// FromStatuses returns the allowed statuses in no particular order.
func (s Spec) FromStatuses() []string {
	out := make([]string, 0, len(s.From))
	for st := range s.From {
		out = append(out, st)
	}
	return out
}

func (s Spec) auxField() string {
	if s.AuxField != "" {
		return s.AuxField
	}
	if s.Aux == AuxRemarks {
		return "remarks"
	}
	return ""
}

// Descriptor identifies a requested action on one record.
type Descriptor struct {
	ID       uuid.UUID `json:"id"`
	Type     string    `json:"type"`
	RecordID string    `json:"record_id"`
	// Status is the record's status when the action was requested.
	Status string `json:"status,omitempty"`
	// Subject names the record in notifications, usually the patient.
	Subject string `json:"subject,omitempty"`
	// Submission carries the payload of a submit action.
	Submission any `json:"-"`
}

// Input is the auxiliary data collected before confirmation.
type Input struct {
	Date    string `json:"date,omitempty"`
	Remarks string `json:"remarks,omitempty"`
}

// Validate checks the input against kind and returns the operator message
// for invalid input.
func (in Input) Validate(kind AuxKind) (string, bool) {
	switch kind {
	case AuxDate:
		if strings.TrimSpace(in.Date) == "" {
			return "Please select a date before confirming.", false
		}
		if _, err := time.Parse(DateLayout, strings.TrimSpace(in.Date)); err != nil {
			return "Please enter a valid date (YYYY-MM-DD).", false
		}
	case AuxRemarks:
		if strings.TrimSpace(in.Remarks) == "" {
			return "Please enter remarks before confirming.", false
		}
	}
	return "", true
}

// Mutation is the single remote call an action issues on confirmation.
type Mutation struct {
	Effect   Effect
	Type     string
	RecordID string
	// Payload is the PATCH body: status plus auxiliary fields.
	Payload    map[string]string
	Submission any
}

func buildMutation(spec Spec, desc Descriptor, in Input) Mutation {
	m := Mutation{
		Effect:     spec.Effect,
		Type:       spec.Type,
		RecordID:   desc.RecordID,
		Submission: desc.Submission,
	}
	if spec.Effect != EffectPatch {
		return m
	}
	m.Payload = map[string]string{}
	if spec.ToStatus != "" {
		m.Payload["status"] = spec.ToStatus
	}
	switch spec.Aux {
	case AuxDate:
		m.Payload[spec.auxField()] = strings.TrimSpace(in.Date)
	case AuxRemarks:
		m.Payload[spec.auxField()] = strings.TrimSpace(in.Remarks)
	}
	return m
}

// Modal is the view of the pending action shown to the operator.
type Modal struct {
	ActionID     uuid.UUID `json:"action_id"`
	Type         string    `json:"type"`
	RecordID     string    `json:"record_id"`
	State        State     `json:"state"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ConfirmLabel string    `json:"confirm_label"`
	Aux          AuxKind   `json:"aux,omitempty"`
	AuxField     string    `json:"aux_field,omitempty"`
	Input        Input     `json:"input"`
}

// Outcome is the result of a confirmed action.
type Outcome struct {
	ActionID  uuid.UUID `json:"action_id"`
	Type      string    `json:"type"`
	RecordID  string    `json:"record_id"`
	Operator  string    `json:"operator"`
	Succeeded bool      `json:"succeeded"`
	Message   string    `json:"message"`
	// Fields holds the remote per-field validation errors of a failed
	// mutation as "field: message".
	Fields   []string      `json:"fields,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

func subjectText(tpl, subject string) string {
	if subject == "" {
		subject = "the record"
	}
	return strings.ReplaceAll(tpl, "{{patient}}", subject)
}
