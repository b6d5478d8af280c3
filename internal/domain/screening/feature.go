// Package screening declares the cancer screening application and the
// pre-cancerous medication screens.
package screening

import (
	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/reporting"
)

const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusCompleted = "Completed"
	StatusDone      = "Done"
)

// ScreeningTypes offered on the application form.
var ScreeningTypes = []string{"Mammogram", "Pap Smear", "Breast Ultrasound", "Colonoscopy", "Biopsy"}

var documentTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// ApplicationsFeature lists screening applications. An approved screening
// is verified once its result date is known.
func ApplicationsFeature() *casework.Feature[Application] {
	approve := casework.Approve("screening_date", "Screening date", StatusApproved, StatusPending)
	approve.Success = "Screening of {{patient}} scheduled."

	return &casework.Feature[Application]{
		Key:      "screenings",
		Title:    "Cancer Screening",
		Report:   "Screening Applications",
		Path:     "/cancer-screening/applications/",
		Statuses: []string{StatusPending, StatusApproved, StatusRejected, StatusCompleted},
		Actions: []action.Spec{
			approve,
			casework.Reject(StatusPending),
			{
				Type:         "verify",
				Label:        "Verify result",
				Title:        "Verify screening result",
				Description:  "Set the result date of the screening of {{patient}}.",
				ConfirmLabel: "Verify",
				From:         casework.From(StatusApproved),
				Aux:          action.AuxDate,
				AuxField:     "result_date",
				Effect:       action.EffectPatch,
				ToStatus:     StatusCompleted,
				Success:      "Screening result of {{patient}} verified.",
			},
			casework.Delete(),
		},
		Schema: &form.Schema{
			Title: "New screening application",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "screening_type", Label: "Screening", Type: form.Select, Required: true, Options: ScreeningTypes},
				{Name: "procedure", Label: "Procedure details", Type: form.TextArea, MaxLength: 500},
				{Name: "facility", Label: "Preferred facility", Type: form.Text},
				{Name: "preferred_date", Label: "Preferred date", Type: form.Date},
			},
			Documents: []form.Slot{
				{Key: "referral", Label: "Referral letter", Accept: documentTypes},
				{Key: "lab_request", Label: "Laboratory request", Accept: documentTypes},
				{Key: "consent", Label: "Signed consent", Optional: true, Accept: documentTypes},
			},
		},
		Columns: []casework.Column[Application]{
			casework.PatientIDColumn[Application](),
			casework.NameColumn[Application](),
			{Header: "Screening", Width: 18, Value: func(a Application) string { return a.ScreeningType }},
			casework.StatusColumn[Application](),
			casework.SubmittedColumn[Application](),
			{Header: "Screening Date", Width: 16, Value: func(a Application) string { return casework.FormatDate(a.ScreeningDate.Time) }},
			{Header: "Result Date", Width: 16, Value: func(a Application) string { return casework.FormatDate(a.ResultDate.Time) }},
		},
		PageSize: reporting.PageA4,
	}
}

// PrecancerousFeature lists pre-cancerous medication requests by last name.
func PrecancerousFeature() *casework.Feature[PrecancerousMed] {
	approve := casework.Approve("release_date", "Release date", StatusApproved, StatusPending)
	done := casework.Transition("done", "Mark as done", StatusDone, StatusApproved)
	done.Success = "Medicines of {{patient}} released."

	return &casework.Feature[PrecancerousMed]{
		Key:      "precancerous",
		Title:    "Pre-Cancerous Medication",
		Path:     "/cancer-screening/precancerous-meds/",
		Statuses: []string{StatusPending, StatusApproved, StatusRejected, StatusDone},
		Actions: []action.Spec{
			approve,
			casework.Reject(StatusPending),
			done,
		},
		Sort: listing.ByLastName,
		Schema: &form.Schema{
			Title: "New pre-cancerous medication request",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "medicine", Label: "Medicine", Type: form.Text, Required: true, MaxLength: 200},
				{Name: "interpretation_of_result", Label: "Interpretation of result", Type: form.TextArea, Required: true, MaxLength: 1000},
			},
			Documents: []form.Slot{
				{Key: "lab_result", Label: "Laboratory result", Accept: documentTypes},
			},
		},
		Columns: []casework.Column[PrecancerousMed]{
			casework.PatientIDColumn[PrecancerousMed](),
			casework.NameColumn[PrecancerousMed](),
			{Header: "Medicine", Width: 22, Value: func(r PrecancerousMed) string { return r.Medicine }},
			{Header: "Interpretation", Width: 30, Value: func(r PrecancerousMed) string { return r.Interpretation }},
			casework.StatusColumn[PrecancerousMed](),
			{Header: "Release Date", Width: 16, Value: func(r PrecancerousMed) string { return casework.FormatDate(r.ReleaseDate.Time) }},
		},
	}
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps,
		casework.For(ApplicationsFeature()),
		casework.For(PrecancerousFeature()),
	)
}
