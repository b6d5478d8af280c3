// Package usermgmt declares the console account screen. Only administrators
// may open it.
package usermgmt

import (
	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/platform/auth"
)

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// UsersFeature lists console accounts.
func UsersFeature() *casework.Feature[User] {
	deactivate := casework.Transition("deactivate", "Deactivate", StatusInactive, StatusActive)
	deactivate.Description = "Deactivate the account of {{patient}}? They will no longer be able to sign in."
	deactivate.Success = "Account of {{patient}} deactivated."
	activate := casework.Transition("activate", "Activate", StatusActive, StatusInactive)
	activate.Description = "Activate the account of {{patient}}?"
	activate.Success = "Account of {{patient}} activated."
	del := casework.Delete()
	del.Description = "Delete the account of {{patient}}? This cannot be undone."
	del.Success = "Account of {{patient}} deleted."

	return &casework.Feature[User]{
		Key:      "users",
		Title:    "User Management",
		Report:   "Console Users",
		Path:     "/users/",
		Statuses: []string{StatusActive, StatusInactive},
		Actions:  []action.Spec{deactivate, activate, del},
		Schema: &form.Schema{
			Title: "New user",
			Fields: []form.Field{
				{Name: "username", Label: "Username", Type: form.Text, Required: true, MaxLength: 150},
				{Name: "email", Label: "Email", Type: form.Email, Required: true},
				{Name: "first_name", Label: "First name", Type: form.Text, Required: true, MaxLength: 150},
				{Name: "last_name", Label: "Last name", Type: form.Text, Required: true, MaxLength: 150},
				{Name: "role", Label: "Role", Type: form.Select, Required: true, Options: []string{auth.RoleStaff, auth.RoleAdmin}, Default: auth.RoleStaff},
			},
		},
		Columns: []casework.Column[User]{
			{Header: "Username", Width: 18, Value: func(u User) string { return u.Username }},
			casework.NameColumn[User](),
			{Header: "Email", Width: 28, Value: func(u User) string { return u.Email }},
			{Header: "Role", Width: 10, Value: func(u User) string { return u.Role }},
			casework.StatusColumn[User](),
			{Header: "Last Login", Width: 16, Value: func(u User) string { return casework.FormatDate(u.LastLogin.Time) }},
		},
		Roles:     []string{auth.RoleAdmin},
		Subject:   func(u User) string { return u.Username },
		PatchBody: activationBody,
	}
}

// activationBody turns a status change into the is_active flag the account
// API expects.
func activationBody(payload map[string]string) any {
	body := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "status" {
			body["is_active"] = v == StatusActive
			continue
		}
		body[k] = v
	}
	return body
}

// Modules builds the section's feature modules.
func Modules(deps casework.Deps) ([]casework.Mountable, error) {
	return casework.MountAll(deps, casework.For(UsersFeature()))
}
