package psychosocial

import (
	"strings"
	"time"

	"github.com/carecase/console/internal/domain/casework"
)

// Activity is a psychosocial support session for survivors and families. It
// is not tied to one patient, so the listing identifies it by title.
type Activity struct {
	ID          casework.ID        `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Date        casework.Timestamp `json:"date"`
	Venue       string             `json:"venue,omitempty"`
	Facilitator string             `json:"facilitator,omitempty"`
	Attendees   int                `json:"attendees,omitempty"`
	Status      string             `json:"status"`
	CreatedAt   casework.Timestamp `json:"created_at"`
}

func (a Activity) RecordID() string     { return string(a.ID) }
func (a Activity) PatientID() string    { return a.Facilitator }
func (a Activity) FullName() string     { return a.Title }
func (a Activity) RecordStatus() string { return a.Status }

func (a Activity) LastName() string {
	if f := strings.Fields(a.Title); len(f) > 0 {
		return f[0]
	}
	return ""
}

// SubmittedAt is the activity date, so date filters select sessions by when
// they take place.
func (a Activity) SubmittedAt() time.Time {
	if !a.Date.IsZero() {
		return a.Date.Time
	}
	return a.CreatedAt.Time
}

func (a *Activity) SetRecordStatus(s string) { a.Status = s }
