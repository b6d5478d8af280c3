// Package listing derives the visible page of a record list from the raw
// collection fetched from the remote API and the operator's filter state.
package listing

import (
	"sort"
	"strings"
	"time"

	"github.com/carecase/console/pkg/pagination"
)

// Record is the view of a case record the filter pipeline needs.
type Record interface {
	RecordID() string
	PatientID() string
	FullName() string
	LastName() string
	RecordStatus() string
	// SubmittedAt returns the zero time when the record carries no
	// submission timestamp.
	SubmittedAt() time.Time
}

// Criteria are the filter clauses. A zero field passes every record.
type Criteria struct {
	Search string `json:"search"`
	Status string `json:"status"`
	Day    int    `json:"day"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
	// Week is the week of the month, 1 for days 1-7, 5 for days 29-31.
	Week int `json:"week"`
}

// IsEmpty reports whether no clause is set.
func (c Criteria) IsEmpty() bool {
	return c == Criteria{}
}

// FilterState is the local list state of one screen. It is never persisted.
type FilterState struct {
	Criteria
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

// DefaultFilterState starts on page 1 with the default page size.
func DefaultFilterState() FilterState {
	return FilterState{PerPage: pagination.DefaultPerPage, Page: 1}
}

// SortOrder selects the ordering applied after filtering.
type SortOrder int

const (
	// ServerOrder keeps the order the remote API returned.
	ServerOrder SortOrder = iota
	// ByLastName orders alphabetically by patient last name, then patient id.
	ByLastName
)

// Result is the derived list view.
type Result[T Record] struct {
	Filtered     []T `json:"-"`
	Paginated    []T `json:"records"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
	CurrentPage  int `json:"current_page"`
	PerPage      int `json:"per_page"`
}

// Derive applies filter, sort and pagination to records. It is a pure
// function: records is never modified and equal inputs give equal outputs.
func Derive[T Record](records []T, state FilterState, order SortOrder) Result[T] {
	filtered := Filter(records, state.Criteria)
	if order == ByLastName {
		SortByLastName(filtered)
	}

	perPage := pagination.NormalizePerPage(state.PerPage)
	total := len(filtered)
	pages := pagination.TotalPages(total, perPage)
	page := pagination.Clamp(state.Page, pages)
	start, end := pagination.Bounds(page, perPage, total)

	paginated := make([]T, end-start)
	copy(paginated, filtered[start:end])

	return Result[T]{
		Filtered:     filtered,
		Paginated:    paginated,
		TotalRecords: total,
		TotalPages:   pages,
		CurrentPage:  page,
		PerPage:      perPage,
	}
}

// Filter returns a new slice holding the records that match every set
// clause of c, in their original order.
func Filter[T Record](records []T, c Criteria) []T {
	out := make([]T, 0, len(records))
	needle := strings.ToLower(strings.TrimSpace(c.Search))
	for _, r := range records {
		if Matches(r, c, needle) {
			out = append(out, r)
		}
	}
	return out
}

// Matches evaluates the AND-combined clauses for a single record. needle is
// the lower-cased, trimmed search text.
func Matches(r Record, c Criteria, needle string) bool {
	if needle != "" {
		id := strings.ToLower(r.PatientID())
		name := strings.ToLower(r.FullName())
		if !strings.Contains(id, needle) && !strings.Contains(name, needle) {
			return false
		}
	}
	if c.Status != "" && r.RecordStatus() != c.Status {
		return false
	}
	if c.Day == 0 && c.Month == 0 && c.Year == 0 && c.Week == 0 {
		return true
	}

	ts := r.SubmittedAt()
	if ts.IsZero() {
		return false
	}
	if c.Day != 0 && ts.Day() != c.Day {
		return false
	}
	if c.Month != 0 && int(ts.Month()) != c.Month {
		return false
	}
	if c.Year != 0 && ts.Year() != c.Year {
		return false
	}
	if c.Week != 0 && WeekOfMonth(ts) != c.Week {
		return false
	}
	return true
}

// WeekOfMonth returns 1 for days 1-7, 2 for 8-14 and so on up to 5.
func WeekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// SortByLastName sorts in place by case-insensitive last name, tie-broken by
// patient id. The sort is stable so equal keys keep server order.
func SortByLastName[T Record](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		li := strings.ToLower(records[i].LastName())
		lj := strings.ToLower(records[j].LastName())
		if li != lj {
			return li < lj
		}
		return records[i].PatientID() < records[j].PatientID()
	})
}
