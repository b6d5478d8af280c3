package screening

import (
	"time"

	"github.com/carecase/console/internal/domain/casework"
)

// Application is a request for a cancer screening procedure.
type Application struct {
	casework.CaseRecord
	ScreeningType string             `json:"screening_type"`
	Procedure     string             `json:"procedure,omitempty"`
	Facility      string             `json:"facility,omitempty"`
	ScreeningDate casework.Timestamp `json:"screening_date"`
	ResultDate    casework.Timestamp `json:"result_date"`
}

// Scheduled reports whether the screening has a date on or after day.
func (a Application) Scheduled(day time.Time) bool {
	if a.ScreeningDate.IsZero() {
		return false
	}
	y, m, d := day.Date()
	return !a.ScreeningDate.Before(time.Date(y, m, d, 0, 0, 0, 0, day.Location()))
}

// PrecancerousMed is a medication request following an abnormal screening
// result.
type PrecancerousMed struct {
	casework.CaseRecord
	Medicine       string             `json:"medicine"`
	Interpretation string             `json:"interpretation_of_result,omitempty"`
	ReleaseDate    casework.Timestamp `json:"release_date"`
}
