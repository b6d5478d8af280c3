// Package psychosocial declares the psychosocial activity screen.
package psychosocial

import (
	"strconv"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
)

const (
	StatusScheduled = "Scheduled"
	StatusDone      = "Done"
)

// ActivitiesFeature lists psychosocial activities.
func ActivitiesFeature() *casework.Feature[Activity] {
	done := casework.Transition("done", "Mark as done", StatusDone, StatusScheduled)
	done.Description = "Mark {{patient}} as done?"
	done.Success = "{{patient}} marked as done."
	del := casework.Delete()
	del.Description = "Delete {{patient}}? This cannot be undone."
	del.Success = "{{patient}} deleted."

	return &casework.Feature[Activity]{
		Key:      "psychosocial-activities",
		Title:    "Psychosocial Activities",
		Path:     "/psychosocial/activities/",
		Statuses: []string{StatusScheduled, StatusDone},
		Actions:  []action.Spec{done, del},
		Schema: &form.Schema{
			Title: "New activity",
			Fields: []form.Field{
				{Name: "title", Label: "Title", Type: form.Text, Required: true, MaxLength: 200},
				{Name: "description", Label: "Description", Type: form.TextArea, MaxLength: 2000},
				{Name: "date", Label: "Date", Type: form.Date, Required: true},
				{Name: "venue", Label: "Venue", Type: form.Text},
				{Name: "facilitator", Label: "Facilitator", Type: form.Text},
			},
			Documents: []form.Slot{
				{Key: "photo", Label: "Activity photo", Optional: true, Accept: []string{"image/jpeg", "image/png"}},
				{Key: "attendance", Label: "Attendance sheet", Optional: true, Accept: []string{"application/pdf", "image/jpeg", "image/png"}},
			},
		},
		Columns: []casework.Column[Activity]{
			{Header: "Title", Width: 30, Value: func(a Activity) string { return a.Title }},
			{Header: "Date", Width: 16, Value: func(a Activity) string { return casework.FormatDate(a.Date.Time) }},
			{Header: "Venue", Width: 20, Value: func(a Activity) string { return a.Venue }},
			{Header: "Facilitator", Width: 20, Value: func(a Activity) string { return a.Facilitator }},
			{Header: "Attendees", Width: 10, Value: func(a Activity) string {
				if a.Attendees == 0 {
					return ""
				}
				return strconv.Itoa(a.Attendees)
			}},
			casework.StatusColumn[Activity](),
		},
		Subject: func(a Activity) string { return "Activity " + strconv.Quote(a.Title) },
	}
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps, casework.For(ActivitiesFeature()))
}
