package casework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp decodes the date formats the remote API emits: RFC3339, a naive
// "2006-01-02T15:04:05" and a bare "2006-01-02". null and "" decode to the
// zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching layout.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// ID is a record identifier. The remote API sends both numeric and string
// keys; both decode to their string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes canonical integers as JSON numbers and everything else,
// including zero-padded or signed digits, as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

type Diagnosis struct {
	Diagnosis string `json:"diagnosis"`
}

// PatientRef is the patient block nested in every case record.
type PatientRef struct {
	PatientID  string      `json:"patient_id"`
	FullName   string      `json:"full_name,omitempty"`
	FirstName  string      `json:"first_name,omitempty"`
	MiddleName string      `json:"middle_name,omitempty"`
	LastName   string      `json:"last_name,omitempty"`
	Email      string      `json:"email,omitempty"`
	Phone      string      `json:"mobile_number,omitempty"`
	Barangay   string      `json:"barangay,omitempty"`
	City       string      `json:"city,omitempty"`
	Diagnosis  []Diagnosis `json:"diagnosis,omitempty"`
}

// Name returns full_name, or the name assembled from its parts.
func (p PatientRef) Name() string {
	if n := strings.TrimSpace(p.FullName); n != "" {
		return n
	}
	return strings.Join(strings.Fields(p.FirstName+" "+p.MiddleName+" "+p.LastName), " ")
}

// Surname returns last_name, falling back to the last word of the full name.
func (p PatientRef) Surname() string {
	if n := strings.TrimSpace(p.LastName); n != "" {
		return n
	}
	words := strings.Fields(p.Name())
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// PrimaryDiagnosis returns the first diagnosis, if any.
func (p PatientRef) PrimaryDiagnosis() string {
	for _, d := range p.Diagnosis {
		if s := strings.TrimSpace(d.Diagnosis); s != "" {
			return s
		}
	}
	return ""
}

// CaseRecord is the common shape of every record type listed by the console.
// Feature record types embed it and add their service fields.
type CaseRecord struct {
	ID            ID         `json:"id"`
	Patient       PatientRef `json:"patient"`
	Status        string     `json:"status"`
	DateSubmitted Timestamp  `json:"date_submitted"`
	CreatedAt     Timestamp  `json:"created_at"`
	Remarks       string     `json:"remarks,omitempty"`
}

func (r CaseRecord) RecordID() string     { return string(r.ID) }
func (r CaseRecord) PatientID() string    { return r.Patient.PatientID }
func (r CaseRecord) FullName() string     { return r.Patient.Name() }
func (r CaseRecord) LastName() string     { return r.Patient.Surname() }
func (r CaseRecord) RecordStatus() string { return r.Status }

// SubmittedAt prefers date_submitted over created_at.
func (r CaseRecord) SubmittedAt() time.Time {
	if !r.DateSubmitted.IsZero() {
		return r.DateSubmitted.Time
	}
	return r.CreatedAt.Time
}

// SetRecordStatus is used for optimistic status edits.
func (r *CaseRecord) SetRecordStatus(status string) { r.Status = status }

// StatusSetter is implemented by record types whose status can be edited
// locally before the server confirms.
type StatusSetter interface {
	SetRecordStatus(status string)
}

// FormatDate renders t for reports; the zero time renders empty.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}
