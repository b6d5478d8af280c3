// Package treatment declares the treatment assistance and post-treatment
// laboratory screens.
package treatment

import (
	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
)

const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusCompleted = "Completed"
)

// ServiceTypes offered on the assistance form.
var ServiceTypes = []string{"Chemotherapy", "Radiation Therapy", "Surgery", "Laboratory", "Medicines"}

var documentTypes = []string{"application/pdf", "image/jpeg", "image/png"}

var statuses = []string{StatusPending, StatusApproved, StatusRejected, StatusCompleted}

// AssistanceFeature lists treatment assistance requests.
func AssistanceFeature() *casework.Feature[Request] {
	return &casework.Feature[Request]{
		Key:      "treatment-assistance",
		Title:    "Treatment Assistance",
		Report:   "Treatment Assistance Requests",
		Path:     "/treatment-assistance/requests/",
		Statuses: statuses,
		Actions: []action.Spec{
			casework.Approve("treatment_date", "Treatment date", StatusApproved, StatusPending),
			casework.Reject(StatusPending),
			casework.Transition("complete", "Complete", StatusCompleted, StatusApproved),
			casework.Delete(),
		},
		Schema: &form.Schema{
			Title: "New treatment assistance request",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "service_type", Label: "Service", Type: form.Select, Required: true, Options: ServiceTypes},
				{Name: "service_provider", Label: "Service provider", Type: form.Text, Required: true, MaxLength: 200},
				{Name: "amount", Label: "Amount requested", Type: form.Number},
			},
			Documents: []form.Slot{
				{Key: "quotation", Label: "Quotation", Accept: documentTypes},
				{Key: "medical_abstract", Label: "Medical abstract", Accept: documentTypes},
				{Key: "social_case_study", Label: "Social case study", Optional: true, Accept: documentTypes},
			},
		},
		Columns: []casework.Column[Request]{
			casework.PatientIDColumn[Request](),
			casework.NameColumn[Request](),
			{Header: "Service", Width: 18, Value: func(r Request) string { return r.ServiceType }},
			{Header: "Provider", Width: 22, Value: func(r Request) string { return r.Provider }},
			{Header: "Amount", Width: 12, Value: func(r Request) string { return r.Amount.String() }},
			casework.StatusColumn[Request](),
			{Header: "Treatment Date", Width: 16, Value: func(r Request) string { return casework.FormatDate(r.TreatmentDate.Time) }},
		},
	}
}

// PostTreatmentFeature lists post-treatment laboratory requests. Records are
// kept for follow-up and cannot be deleted from the console.
func PostTreatmentFeature() *casework.Feature[PostTreatment] {
	approve := casework.Approve("laboratory_date", "Laboratory date", StatusApproved, StatusPending)
	approve.Success = "Laboratory schedule of {{patient}} set."

	return &casework.Feature[PostTreatment]{
		Key:      "post-treatment",
		Title:    "Post-Treatment",
		Report:   "Post-Treatment Laboratory Requests",
		Path:     "/treatment-assistance/post-treatment/",
		Statuses: statuses,
		Actions: []action.Spec{
			approve,
			casework.Reject(StatusPending),
			casework.Transition("complete", "Complete", StatusCompleted, StatusApproved),
		},
		Schema: &form.Schema{
			Title: "New post-treatment laboratory request",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "laboratory_test", Label: "Laboratory test", Type: form.Text, Required: true, MaxLength: 200},
				{Name: "preferred_date", Label: "Preferred date", Type: form.Date},
			},
			Documents: []form.Slot{
				{Key: "lab_request", Label: "Laboratory request", Accept: documentTypes},
			},
		},
		Columns: []casework.Column[PostTreatment]{
			casework.PatientIDColumn[PostTreatment](),
			casework.NameColumn[PostTreatment](),
			{Header: "Laboratory Test", Width: 24, Value: func(r PostTreatment) string { return r.LaboratoryTest }},
			casework.StatusColumn[PostTreatment](),
			casework.SubmittedColumn[PostTreatment](),
			{Header: "Laboratory Date", Width: 16, Value: func(r PostTreatment) string { return casework.FormatDate(r.LaboratoryDate.Time) }},
		},
	}
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps,
		casework.For(AssistanceFeature()),
		casework.For(PostTreatmentFeature()),
	)
}
