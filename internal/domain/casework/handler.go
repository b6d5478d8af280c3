package casework

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/auth"
	"github.com/carecase/console/internal/platform/blobstore"
	"github.com/carecase/console/internal/platform/reporting"
	"github.com/carecase/console/pkg/pagination"
)

type Handler[T listing.Record] struct {
	mod *Module[T]
}

func NewHandler[T listing.Record](mod *Module[T]) *Handler[T] {
	return &Handler[T]{mod: mod}
}

// RegisterRoutes mounts the feature under /<key>.
func (h *Handler[T]) RegisterRoutes(api *echo.Group) {
	roles := h.mod.feature.Roles
	if len(roles) == 0 {
		roles = []string{auth.RoleStaff}
	}
	g := api.Group("/"+h.mod.feature.Key, auth.RequireRole(roles...))

	g.GET("/records", h.ListRecords)
	g.GET("/records/:id", h.GetRecord)
	g.POST("/records/:id/open", h.OpenRecord)
	g.GET("/form", h.GetForm)
	g.POST("/records", h.CreateRecord)

	g.POST("/actions", h.BeginAction)
	g.GET("/actions/current", h.CurrentAction)
	g.POST("/actions/current/input", h.ProvideInput)
	g.POST("/actions/current/confirm", h.ConfirmAction)
	g.POST("/actions/current/cancel", h.CancelAction)

	g.DELETE("/screen", h.Unmount)
	g.GET("/print", h.Print)
	g.GET("/export.xlsx", h.ExportXLSX)
}

// RegisterRoutes lets the module be mounted directly.
func (m *Module[T]) RegisterRoutes(api *echo.Group) {
	NewHandler(m).RegisterRoutes(api)
}

func operatorID(c echo.Context) (string, error) {
	op := auth.UserIDFromContext(c.Request().Context())
	if op == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return op, nil
}

// -- List & detail --

var criteriaParams = []string{"search", "status", "day", "month", "year", "week"}

func parseListQuery(c echo.Context) (ListQuery, error) {
	params := c.QueryParams()
	var q ListQuery

	present := false
	for _, p := range criteriaParams {
		if _, ok := params[p]; ok {
			present = true
			break
		}
	}
	if present {
		crit := listing.Criteria{
			Search: strings.TrimSpace(params.Get("search")),
			Status: strings.TrimSpace(params.Get("status")),
		}
		bounds := []struct {
			name string
			dst  *int
			max  int
		}{
			{"day", &crit.Day, 31},
			{"month", &crit.Month, 12},
			{"year", &crit.Year, 9999},
			{"week", &crit.Week, 5},
		}
		for _, b := range bounds {
			raw := strings.TrimSpace(params.Get(b.name))
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 || n > b.max {
				return q, fmt.Errorf("invalid %s %q", b.name, raw)
			}
			*b.dst = n
		}
		q.Criteria = &crit
	}

	pg := pagination.FromContext(c)
	q.Page = pg.Page
	q.PerPage = pg.PerPage
	q.Refresh, _ = strconv.ParseBool(params.Get("refresh"))
	return q, nil
}

func (h *Handler[T]) ListRecords(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	q, err := parseListQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.mod.List(c.Request().Context(), op, q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler[T]) GetRecord(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	rec, err := h.mod.Detail(c.Request().Context(), op, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler[T]) OpenRecord(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	if err := h.mod.Open(c.Request().Context(), op, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Add form --

func (h *Handler[T]) GetForm(c echo.Context) error {
	schema, defaults, err := h.mod.Form()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"schema":   schema,
		"defaults": defaults,
	})
}

// createRequest is the JSON body of an add form. Attachments reference files
// staged through /uploads, keyed by document key.
type createRequest struct {
	Fields      map[string]any    `json:"fields"`
	Attachments map[string]string `json:"attachments"`
}

func (h *Handler[T]) CreateRecord(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	schema, _, err := h.mod.Form()
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()

	var (
		values  form.Values
		uploads map[string]*multipart.FileHeader
		staged  map[string]string
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		mf, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
		}
		values = schema.FromURLValues(url.Values(mf.Value))
		uploads, staged = splitParts(mf)
	} else {
		var req createRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		values = schema.FromMap(req.Fields)
		staged = req.Attachments
	}

	at, err := h.mod.Attach(ctx, op, uploads, staged)
	if err != nil {
		return httpError(err)
	}
	modal, err := h.mod.Create(ctx, op, values, at)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"pending":      modal,
		"attachments":  at,
		"all_uploaded": schema.AllUploaded(at),
	})
}

// splitParts separates files.<key> uploads from files.<key> text parts that
// name an already staged blob.
func splitParts(mf *multipart.Form) (map[string]*multipart.FileHeader, map[string]string) {
	uploads := map[string]*multipart.FileHeader{}
	staged := map[string]string{}
	for name, fhs := range mf.File {
		if key, ok := form.KeyFromPart(name); ok && len(fhs) > 0 {
			uploads[key] = fhs[0]
		}
	}
	for name, vals := range mf.Value {
		if key, ok := form.KeyFromPart(name); ok && len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
			if _, dup := uploads[key]; !dup {
				staged[key] = strings.TrimSpace(vals[0])
			}
		}
	}
	return uploads, staged
}

// -- Actions --

type beginRequest struct {
	RecordID string `json:"record_id"`
	Type     string `json:"type"`
}

func (h *Handler[T]) BeginAction(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	var req beginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RecordID == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "record_id and type are required")
	}
	modal, err := h.mod.BeginAction(c.Request().Context(), op, req.RecordID, req.Type)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, modal)
}

func (h *Handler[T]) CurrentAction(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	modal, ok := h.mod.Pending(op)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, action.ErrNoPending.Error())
	}
	return c.JSON(http.StatusOK, modal)
}

func (h *Handler[T]) ProvideInput(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	var in action.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	modal, err := h.mod.ProvideInput(op, in)
	if err != nil {
		if errors.Is(err, action.ErrInvalidInput) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"message": strings.TrimPrefix(err.Error(), action.ErrInvalidInput.Error()+": "),
				"pending": modal,
			})
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, modal)
}

func (h *Handler[T]) ConfirmAction(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	out, err := h.mod.Confirm(c.Request().Context(), op)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"outcome": out})
}

func (h *Handler[T]) CancelAction(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	if err := h.mod.Cancel(op); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler[T]) Unmount(c echo.Context) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	h.mod.Unmount(op)
	return c.NoContent(http.StatusNoContent)
}

// -- Print & export --

func (h *Handler[T]) Print(c echo.Context) error {
	f, err := reporting.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.export(c, f, "inline")
}

func (h *Handler[T]) ExportXLSX(c echo.Context) error {
	return h.export(c, reporting.FormatXLSX, "attachment")
}

func (h *Handler[T]) export(c echo.Context, f reporting.Format, disposition string) error {
	op, err := operatorID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	report, err := h.mod.Report(ctx, op)
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := h.mod.Exporter().Export(ctx, &buf, f, report); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("%s; filename=%q", disposition, f.FileName(report)))
	return c.Blob(http.StatusOK, f.ContentType(), buf.Bytes())
}

// httpError maps service errors to HTTP responses. Remote failures become a
// 502 carrying the operator-facing message.
func httpError(err error) error {
	var fieldErrs form.FieldErrors
	var missing *MissingDocumentsError
	switch {
	case errors.As(err, &fieldErrs):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "Please correct the highlighted fields.",
			"fields":  fieldErrs,
		})
	case errors.As(err, &missing):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "Please upload all required documents.",
			"missing": missing.Keys,
		})
	case errors.Is(err, action.ErrBusy), errors.Is(err, action.ErrNotAllowed), errors.Is(err, action.ErrWrongState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, action.ErrUnknownAction), errors.Is(err, ErrUnknownDocument),
		errors.Is(err, blobstore.ErrMissingFileName), errors.Is(err, blobstore.ErrMissingKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, action.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, action.ErrNoPending), errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrNoForm),
		errors.Is(err, blobstore.ErrBlobNotFound), errors.Is(err, apiclient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, apiclient.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "Your session has expired. Please sign in again.")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrNoStaging):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, reporting.ErrPDFUnavailable):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, apiclient.UserMessage(err))
	}
}
