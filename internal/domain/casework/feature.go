package casework

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/reporting"
)

// Column is one column of a feature's print document and spreadsheet.
type Column[T any] struct {
	Header string
	Width  float64
	Value  func(T) string
}

// Feature declares one list screen of the console: where its records live on
// the remote API, which statuses and actions apply, how the list is sorted
// and how it prints.
type Feature[T listing.Record] struct {
	Key   string
	Title string
	// Report names the print document; defaults to Title.
	Report   string
	Path     string
	Statuses []string
	Actions  []action.Spec
	Sort     listing.SortOrder
	// Schema is the add form. Nil means the feature does not create records.
	Schema   *form.Schema
	Columns  []Column[T]
	PageSize reporting.PageSize
	// Roles required to open the feature. Empty means any operator.
	Roles []string
	// Subject names a record in notifications; defaults to its full name.
	Subject func(T) string
	// PatchBody shapes the PATCH body of a status action. Nil sends the
	// payload built by the sequencer as is.
	PatchBody func(payload map[string]string) any
}

// Validate checks the declaration for mistakes that would only show up at
// runtime.
func (f *Feature[T]) Validate() error {
	if f.Key == "" || strings.ContainsAny(f.Key, "/ ") {
		return fmt.Errorf("feature key %q is invalid", f.Key)
	}
	if !strings.HasPrefix(f.Path, "/") || !strings.HasSuffix(f.Path, "/") {
		return fmt.Errorf("feature %s: path %q must start and end with /", f.Key, f.Path)
	}
	if len(f.Columns) == 0 {
		return fmt.Errorf("feature %s: no report columns", f.Key)
	}
	known := make(map[string]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		known[s] = true
	}
	seen := make(map[string]bool, len(f.Actions))
	for _, a := range f.Actions {
		if seen[a.Type] {
			return fmt.Errorf("feature %s: duplicate action %q", f.Key, a.Type)
		}
		seen[a.Type] = true
		if a.Type == action.TypeSubmit {
			return fmt.Errorf("feature %s: %q is reserved for the add form", f.Key, a.Type)
		}
		for st := range a.From {
			if !known[st] {
				return fmt.Errorf("feature %s: action %s allows unknown status %q", f.Key, a.Type, st)
			}
		}
		if a.ToStatus != "" && !known[a.ToStatus] {
			return fmt.Errorf("feature %s: action %s targets unknown status %q", f.Key, a.Type, a.ToStatus)
		}
		if a.Aux == action.AuxDate && a.AuxField == "" {
			return fmt.Errorf("feature %s: action %s collects a date without a field name", f.Key, a.Type)
		}
	}
	return nil
}

// ReportName returns the print document name.
func (f *Feature[T]) ReportName() string {
	if f.Report != "" {
		return f.Report
	}
	return f.Title
}

// RecordPath is the remote path of one record.
func (f *Feature[T]) RecordPath(id string) string {
	return f.Path + url.PathEscape(id) + "/"
}

// SubjectOf names r in notifications.
func (f *Feature[T]) SubjectOf(r T) string {
	if f.Subject != nil {
		return f.Subject(r)
	}
	return r.FullName()
}

// Specs returns the action specs including the submit action of the add
// form.
func (f *Feature[T]) Specs() []action.Spec {
	specs := append([]action.Spec(nil), f.Actions...)
	if f.Schema != nil {
		specs = append(specs, SubmitAction(f.ReportName()))
	}
	return specs
}

// ActionsFor returns the action types offered for a record in status, in
// declaration order.
func (f *Feature[T]) ActionsFor(status string) []string {
	out := make([]string, 0, len(f.Actions))
	for _, a := range f.Actions {
		if a.Allows(status) {
			out = append(out, a.Type)
		}
	}
	return out
}

// BuildReport turns records into a report with the feature's columns.
func (f *Feature[T]) BuildReport(records []T, criteria listing.Criteria, at time.Time) reporting.Report {
	cols := make([]reporting.Column, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = reporting.Column{Header: c.Header, Width: c.Width}
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(f.Columns))
		for j, c := range f.Columns {
			row[j] = c.Value(r)
		}
		rows[i] = row
	}
	pageSize := f.PageSize
	if pageSize == "" {
		pageSize = reporting.PageLetter
	}
	return reporting.Report{
		Name:        f.ReportName(),
		PageSize:    pageSize,
		Columns:     cols,
		Rows:        rows,
		Filters:     DescribeCriteria(criteria),
		GeneratedAt: at,
	}
}

// Common report columns.

func PatientIDColumn[T listing.Record]() Column[T] {
	return Column[T]{Header: "Patient ID", Width: 14, Value: func(r T) string { return r.PatientID() }}
}

func NameColumn[T listing.Record]() Column[T] {
	return Column[T]{Header: "Name", Width: 28, Value: func(r T) string { return r.FullName() }}
}

func StatusColumn[T listing.Record]() Column[T] {
	return Column[T]{Header: "Status", Width: 12, Value: func(r T) string { return r.RecordStatus() }}
}

func SubmittedColumn[T listing.Record]() Column[T] {
	return Column[T]{Header: "Date Submitted", Width: 16, Value: func(r T) string { return FormatDate(r.SubmittedAt()) }}
}

// DescribeCriteria renders the active filter clauses for a report header.
func DescribeCriteria(c listing.Criteria) []string {
	var out []string
	if c.Search != "" {
		out = append(out, fmt.Sprintf("Search: %q", c.Search))
	}
	if c.Status != "" {
		out = append(out, "Status: "+c.Status)
	}
	if c.Day > 0 {
		out = append(out, "Day: "+strconv.Itoa(c.Day))
	}
	if c.Month >= 1 && c.Month <= 12 {
		out = append(out, "Month: "+time.Month(c.Month).String())
	}
	if c.Year > 0 {
		out = append(out, "Year: "+strconv.Itoa(c.Year))
	}
	if c.Week > 0 {
		out = append(out, "Week: "+strconv.Itoa(c.Week))
	}
	return out
}

// ActionInfo is the catalogue view of an action spec.
type ActionInfo struct {
	action.Spec
	From []string `json:"from,omitempty"`
}

// FeatureInfo is the catalogue entry of a feature.
type FeatureInfo struct {
	Key      string       `json:"key"`
	Title    string       `json:"title"`
	Statuses []string     `json:"statuses"`
	Actions  []ActionInfo `json:"actions"`
	HasForm  bool         `json:"has_form"`
	Roles    []string     `json:"roles,omitempty"`
}

// Info returns the catalogue entry.
func (f *Feature[T]) Info() FeatureInfo {
	info := FeatureInfo{
		Key:      f.Key,
		Title:    f.Title,
		Statuses: f.Statuses,
		Actions:  make([]ActionInfo, 0, len(f.Actions)),
		HasForm:  f.Schema != nil,
		Roles:    f.Roles,
	}
	for _, a := range f.Actions {
		from := a.FromStatuses()
		sort.Strings(from)
		info.Actions = append(info.Actions, ActionInfo{Spec: a, From: from})
	}
	return info
}

// ---------------------------------------------------------------------------
// Action builders shared by the feature packages
// ---------------------------------------------------------------------------

// From builds an allowed-status set.
func From(statuses ...string) map[string]bool {
	m := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// Approve moves a record from one of from to status "to" after collecting
// the date stored in dateField.
func Approve(dateField, dateLabel, to string, from ...string) action.Spec {
	return action.Spec{
		Type:         "approve",
		Label:        "Approve",
		Title:        "Approve request",
		Description:  "Set the " + strings.ToLower(dateLabel) + " and approve the request of {{patient}}.",
		ConfirmLabel: "Approve",
		From:         From(from...),
		Aux:          action.AuxDate,
		AuxField:     dateField,
		Effect:       action.EffectPatch,
		ToStatus:     to,
		Success:      "Request of {{patient}} approved.",
	}
}

// Reject moves a record to "Rejected" after collecting remarks.
func Reject(from ...string) action.Spec {
	return action.Spec{
		Type:         "reject",
		Label:        "Reject",
		Title:        "Reject request",
		Description:  "State the reason for rejecting the request of {{patient}}.",
		ConfirmLabel: "Reject",
		From:         From(from...),
		Aux:          action.AuxRemarks,
		Effect:       action.EffectPatch,
		ToStatus:     "Rejected",
		Success:      "Request of {{patient}} rejected.",
	}
}

// Transition is a confirmation-only status change.
func Transition(typ, label, to string, from ...string) action.Spec {
	return action.Spec{
		Type:         typ,
		Label:        label,
		Title:        label,
		Description:  "Mark the record of {{patient}} as " + to + "?",
		ConfirmLabel: label,
		From:         From(from...),
		Effect:       action.EffectPatch,
		ToStatus:     to,
		Success:      "Record of {{patient}} marked as " + to + ".",
	}
}

// Delete removes a record.
func Delete() action.Spec {
	return action.Spec{
		Type:         "delete",
		Label:        "Delete",
		Title:        "Delete record",
		Description:  "Delete the record of {{patient}}? This cannot be undone.",
		ConfirmLabel: "Delete",
		Effect:       action.EffectDelete,
		Success:      "Record of {{patient}} deleted.",
	}
}

// SubmitAction is the confirmation of an add form.
func SubmitAction(report string) action.Spec {
	return action.Spec{
		Type:         action.TypeSubmit,
		Label:        "Submit",
		Title:        "Submit " + report,
		Description:  "Submit the new record for {{patient}}?",
		ConfirmLabel: "Submit",
		Effect:       action.EffectSubmit,
		Success:      report + " submitted successfully.",
	}
}
