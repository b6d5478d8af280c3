package cancermgmt

import (
	"encoding/json"
	"time"

	"github.com/carecase/console/internal/domain/casework"
)

// Patient is an entry of the patient master list. Unlike the service
// requests, the patient fields sit at the top level of the record.
type Patient struct {
	ID casework.ID `json:"id"`
	casework.PatientRef
	DateOfBirth   casework.Timestamp `json:"date_of_birth"`
	Sex           string             `json:"sex,omitempty"`
	Status        string             `json:"status"`
	CreatedAt     casework.Timestamp `json:"created_at"`
	ValidatedDate casework.Timestamp `json:"validated_date"`
	Remarks       string             `json:"remarks,omitempty"`
}

func (p Patient) RecordID() string          { return string(p.ID) }
func (p Patient) PatientID() string         { return p.PatientRef.PatientID }
func (p Patient) FullName() string          { return p.PatientRef.Name() }
func (p Patient) LastName() string          { return p.PatientRef.Surname() }
func (p Patient) RecordStatus() string      { return p.Status }
func (p Patient) SubmittedAt() time.Time    { return p.CreatedAt.Time }
func (p *Patient) SetRecordStatus(s string) { p.Status = s }

// Age in whole years at the given time. Zero when the birth date is unknown.
func (p Patient) Age(at time.Time) int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	born := p.DateOfBirth.Time
	years := at.Year() - born.Year()
	if at.Month() < born.Month() || (at.Month() == born.Month() && at.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// MedicationRequest asks for the release of cancer medicines to a patient.
type MedicationRequest struct {
	casework.CaseRecord
	Medicine    string             `json:"medicine"`
	Dosage      string             `json:"dosage,omitempty"`
	Quantity    json.Number        `json:"quantity,omitempty"`
	ReleaseDate casework.Timestamp `json:"release_date"`
}
