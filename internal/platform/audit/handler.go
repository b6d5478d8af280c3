package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// SearchResult is a page of the trail.
type SearchResult struct {
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Handler exposes the trail to administrators.
type Handler struct {
	trail *Trail
}

func NewHandler(trail *Trail) *Handler {
	return &Handler{trail: trail}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit", h.HandleSearch)
	g.GET("/audit/export/csv", h.HandleExportCSV)
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func parseSearchParams(c echo.Context) SearchParams {
	p := SearchParams{
		Operator: c.QueryParam("operator"),
		Feature:  c.QueryParam("feature"),
		RecordID: c.QueryParam("record_id"),
		Outcome:  c.QueryParam("outcome"),
		Since:    parseTime(c.QueryParam("since")),
		Until:    parseTime(c.QueryParam("until")),
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		p.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		p.Offset = v
	}
	p.applyDefaults()
	return p
}

// HandleSearch handles GET /audit.
func (h *Handler) HandleSearch(c echo.Context) error {
	p := parseSearchParams(c)
	entries, total, err := h.trail.Search(c.Request().Context(), p)
	if err != nil {
		if errors.Is(err, ErrNoStore) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "audit search failed")
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, SearchResult{Entries: entries, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// HandleExportCSV handles GET /audit/export/csv.
func (h *Handler) HandleExportCSV(c echo.Context) error {
	p := parseSearchParams(c)
	entries, _, err := h.trail.Search(c.Request().Context(), p)
	if err != nil {
		if errors.Is(err, ErrNoStore) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "audit export failed")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=\"action_audit_%s.csv\"", time.Now().UTC().Format("20060102_150405")))
	c.Response().WriteHeader(http.StatusOK)

	cw := csv.NewWriter(c.Response())
	header := []string{"recorded_at", "operator", "feature", "action", "record_id", "outcome", "message", "duration_ms"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit export csv: write header: %w", err)
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.RecordedAt.Format(time.RFC3339),
			e.Operator, e.Feature, e.ActionType, e.RecordID, e.Outcome, e.Message,
			strconv.FormatInt(e.DurationMS, 10),
		}); err != nil {
			return fmt.Errorf("audit export csv: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
