// Package survivorship declares the home visit and hormonal replacement
// screens.
package survivorship

import (
	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
)

const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
	StatusDone     = "Done"
)

// HomeVisitsFeature lists home visit requests. Visits are scheduled on
// approval and closed once done.
func HomeVisitsFeature() *casework.Feature[HomeVisit] {
	approve := casework.Approve("visit_date", "Visit date", StatusApproved, StatusPending)
	approve.Title = "Schedule home visit"
	approve.Success = "Home visit of {{patient}} scheduled."
	done := casework.Transition("done", "Mark as done", StatusDone, StatusApproved)
	done.Success = "Home visit of {{patient}} completed."

	return &casework.Feature[HomeVisit]{
		Key:      "home-visits",
		Title:    "Home Visits",
		Path:     "/survivorship/home-visits/",
		Statuses: []string{StatusPending, StatusApproved, StatusDone},
		Actions:  []action.Spec{approve, done, casework.Delete()},
		Schema: &form.Schema{
			Title: "New home visit",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "purpose", Label: "Purpose of visit", Type: form.TextArea, Required: true, MaxLength: 1000},
				{Name: "preferred_date", Label: "Preferred date", Type: form.Date},
			},
		},
		Columns: []casework.Column[HomeVisit]{
			casework.PatientIDColumn[HomeVisit](),
			casework.NameColumn[HomeVisit](),
			{Header: "Barangay", Width: 16, Value: func(v HomeVisit) string { return v.Patient.Barangay }},
			{Header: "Purpose", Width: 30, Value: func(v HomeVisit) string { return v.Purpose }},
			casework.StatusColumn[HomeVisit](),
			{Header: "Visit Date", Width: 16, Value: func(v HomeVisit) string { return casework.FormatDate(v.VisitDate.Time) }},
		},
	}
}

// HormonalReplacementFeature lists hormone therapy requests.
func HormonalReplacementFeature() *casework.Feature[HormonalReplacement] {
	done := casework.Transition("done", "Mark as done", StatusDone, StatusApproved)
	done.Success = "Medicines of {{patient}} released."

	return &casework.Feature[HormonalReplacement]{
		Key:      "hormonal-replacement",
		Title:    "Hormonal Replacement",
		Report:   "Hormonal Replacement Requests",
		Path:     "/survivorship/hormonal-replacement/",
		Statuses: []string{StatusPending, StatusApproved, StatusRejected, StatusDone},
		Actions: []action.Spec{
			casework.Approve("release_date", "Release date", StatusApproved, StatusPending),
			casework.Reject(StatusPending),
			done,
		},
		Schema: &form.Schema{
			Title: "New hormonal replacement request",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "medicine", Label: "Medicine", Type: form.Text, Required: true, MaxLength: 200},
			},
			Documents: []form.Slot{
				{Key: "prescription", Label: "Prescription", Accept: []string{"application/pdf", "image/jpeg", "image/png"}},
			},
		},
		Columns: []casework.Column[HormonalReplacement]{
			casework.PatientIDColumn[HormonalReplacement](),
			casework.NameColumn[HormonalReplacement](),
			{Header: "Medicine", Width: 24, Value: func(r HormonalReplacement) string { return r.Medicine }},
			casework.StatusColumn[HormonalReplacement](),
			casework.SubmittedColumn[HormonalReplacement](),
			{Header: "Release Date", Width: 16, Value: func(r HormonalReplacement) string { return casework.FormatDate(r.ReleaseDate.Time) }},
		},
	}
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps,
		casework.For(HomeVisitsFeature()),
		casework.For(HormonalReplacementFeature()),
	)
}
