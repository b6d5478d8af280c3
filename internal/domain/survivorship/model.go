package survivorship

import "github.com/carecase/console/internal/domain/casework"

// HomeVisit is a survivorship follow-up visit at the patient's home.
type HomeVisit struct {
	casework.CaseRecord
	Purpose   string             `json:"purpose"`
	VisitDate casework.Timestamp `json:"visit_date"`
	Findings  string             `json:"findings,omitempty"`
}

// HormonalReplacement requests hormone therapy medicines for a survivor.
type HormonalReplacement struct {
	casework.CaseRecord
	Medicine    string             `json:"medicine"`
	ReleaseDate casework.Timestamp `json:"release_date"`
}
