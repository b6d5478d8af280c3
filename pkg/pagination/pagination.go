package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds page-based pagination parameters extracted from a request.
// Zero values mean "not supplied".
type Params struct {
	Page    int
	PerPage int
}

// FromContext extracts page and per_page from the echo context. Missing or
// malformed values are left at zero so callers can tell an explicit page
// change from an untouched one.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}

	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	if perPage <= 0 {
		perPage, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if perPage < 0 {
		perPage = 0
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	return Params{Page: page, PerPage: perPage}
}

// NormalizePerPage falls back to DefaultPerPage for non-positive values.
func NormalizePerPage(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	return perPage
}

// TotalPages returns max(1, ceil(total/perPage)).
func TotalPages(total, perPage int) int {
	perPage = NormalizePerPage(perPage)
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// Clamp keeps page within [1, totalPages].
func Clamp(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Bounds returns the half-open slice bounds for page within a collection of
// total items. The page is expected to be clamped already.
func Bounds(page, perPage, total int) (start, end int) {
	perPage = NormalizePerPage(perPage)
	if page < 1 {
		page = 1
	}
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

// Page is the pagination block of a console list response.
type Page struct {
	TotalRecords int  `json:"total_records"`
	TotalPages   int  `json:"total_pages"`
	CurrentPage  int  `json:"current_page"`
	PerPage      int  `json:"per_page"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

// NewPage describes page of a collection of total items, clamping page.
func NewPage(total, page, perPage int) Page {
	pages := TotalPages(total, perPage)
	page = Clamp(page, pages)
	return Page{
		TotalRecords: total,
		TotalPages:   pages,
		CurrentPage:  page,
		PerPage:      NormalizePerPage(perPage),
		HasNext:      page < pages,
		HasPrevious:  page > 1,
	}
}
