// Package cancermgmt declares the patient master list and the medication
// request screens of the cancer management section.
package cancermgmt

import (
	"strconv"
	"time"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/reporting"
)

// Patient statuses.
const (
	StatusPending   = "Pending"
	StatusValidated = "Validated"
	StatusRejected  = "Rejected"
)

// Request statuses.
const (
	StatusApproved  = "Approved"
	StatusCompleted = "Completed"
)

var documentTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// PatientsFeature is the patient master list. Registrations are verified
// with a validation date or rejected with remarks.
func PatientsFeature() *casework.Feature[Patient] {
	reject := casework.Reject(StatusPending)
	reject.Title = "Reject registration"
	reject.Description = "State the reason for rejecting the registration of {{patient}}."
	reject.Success = "Registration of {{patient}} rejected."

	return &casework.Feature[Patient]{
		Key:      "patients",
		Title:    "Patients",
		Report:   "Patient Master List",
		Path:     "/patients/",
		Statuses: []string{StatusPending, StatusValidated, StatusRejected},
		Actions: []action.Spec{
			{
				Type:         "verify",
				Label:        "Verify",
				Title:        "Verify registration",
				Description:  "Set the validation date of {{patient}}.",
				ConfirmLabel: "Verify",
				From:         casework.From(StatusPending),
				Aux:          action.AuxDate,
				AuxField:     "validated_date",
				Effect:       action.EffectPatch,
				ToStatus:     StatusValidated,
				Success:      "{{patient}} has been verified.",
			},
			reject,
			casework.Delete(),
		},
		Sort: listing.ByLastName,
		Schema: &form.Schema{
			Title: "Register patient",
			Fields: []form.Field{
				{Name: "first_name", Label: "First name", Type: form.Text, Required: true, MaxLength: 100},
				{Name: "middle_name", Label: "Middle name", Type: form.Text, MaxLength: 100},
				{Name: "last_name", Label: "Last name", Type: form.Text, Required: true, MaxLength: 100},
				{Name: "date_of_birth", Label: "Date of birth", Type: form.Date, Required: true},
				{Name: "sex", Label: "Sex", Type: form.Select, Required: true, Options: []string{"Male", "Female"}},
				{Name: "email", Label: "Email", Type: form.Email},
				{Name: "mobile_number", Label: "Mobile number", Type: form.Phone, Required: true},
				{Name: "barangay", Label: "Barangay", Type: form.Text, Required: true},
				{Name: "city", Label: "City / Municipality", Type: form.Text, Required: true},
				{Name: "diagnosis", Label: "Diagnosis", Type: form.Text},
			},
			Documents: []form.Slot{
				{Key: "valid_id", Label: "Valid ID", Accept: documentTypes},
				{Key: "medical_certificate", Label: "Medical certificate", Accept: documentTypes},
				{Key: "photo", Label: "2x2 photo", Optional: true, Accept: []string{"image/jpeg", "image/png"}},
			},
		},
		Columns: []casework.Column[Patient]{
			casework.PatientIDColumn[Patient](),
			casework.NameColumn[Patient](),
			{Header: "Age", Width: 6, Value: func(p Patient) string { return ageString(p.Age(time.Now())) }},
			{Header: "Diagnosis", Width: 24, Value: func(p Patient) string { return p.PrimaryDiagnosis() }},
			{Header: "City", Width: 16, Value: func(p Patient) string { return p.City }},
			casework.StatusColumn[Patient](),
			{Header: "Date Registered", Width: 16, Value: func(p Patient) string { return casework.FormatDate(p.CreatedAt.Time) }},
		},
		PageSize: reporting.PageA4,
	}
}

// MedicationRequestsFeature lists requests for cancer medicines.
func MedicationRequestsFeature() *casework.Feature[MedicationRequest] {
	complete := casework.Transition("complete", "Complete", StatusCompleted, StatusApproved)
	complete.Success = "Medicines of {{patient}} released."

	return &casework.Feature[MedicationRequest]{
		Key:      "medication-requests",
		Title:    "Medication Requests",
		Path:     "/cancer-management/medication-requests/",
		Statuses: []string{StatusPending, StatusApproved, StatusRejected, StatusCompleted},
		Actions: []action.Spec{
			casework.Approve("release_date", "Release date", StatusApproved, StatusPending),
			casework.Reject(StatusPending),
			complete,
			casework.Delete(),
		},
		Schema: &form.Schema{
			Title: "New medication request",
			Fields: []form.Field{
				{Name: "patient_id", Label: "Patient ID", Type: form.Text, Required: true},
				{Name: "medicine", Label: "Medicine", Type: form.Text, Required: true, MaxLength: 200},
				{Name: "dosage", Label: "Dosage", Type: form.Text, MaxLength: 100},
				{Name: "quantity", Label: "Quantity", Type: form.Number, Required: true},
			},
			Documents: []form.Slot{
				{Key: "prescription", Label: "Prescription", Accept: documentTypes},
				{Key: "medical_abstract", Label: "Medical abstract", Accept: documentTypes},
			},
		},
		Columns: []casework.Column[MedicationRequest]{
			casework.PatientIDColumn[MedicationRequest](),
			casework.NameColumn[MedicationRequest](),
			{Header: "Medicine", Width: 24, Value: func(r MedicationRequest) string { return r.Medicine }},
			{Header: "Qty", Width: 6, Value: func(r MedicationRequest) string { return r.Quantity.String() }},
			casework.StatusColumn[MedicationRequest](),
			casework.SubmittedColumn[MedicationRequest](),
			{Header: "Release Date", Width: 16, Value: func(r MedicationRequest) string { return casework.FormatDate(r.ReleaseDate.Time) }},
		},
	}
}

func ageString(years int) string {
	if years == 0 {
		return ""
	}
	return strconv.Itoa(years)
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps,
		casework.For(PatientsFeature()),
		casework.For(MedicationRequestsFeature()),
	)
}
