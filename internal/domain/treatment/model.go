package treatment

import (
	"encoding/json"

	"github.com/carecase/console/internal/domain/casework"
)

// Request asks for financial assistance with a cancer treatment.
type Request struct {
	casework.CaseRecord
	ServiceType   string             `json:"service_type"`
	Provider      string             `json:"service_provider,omitempty"`
	Amount        json.Number        `json:"amount,omitempty"`
	TreatmentDate casework.Timestamp `json:"treatment_date"`
}

// PostTreatment is a follow-up laboratory request after treatment.
type PostTreatment struct {
	casework.CaseRecord
	LaboratoryTest string             `json:"laboratory_test"`
	LaboratoryDate casework.Timestamp `json:"laboratory_date"`
	Findings       string             `json:"findings,omitempty"`
}
