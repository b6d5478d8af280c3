// Package reporting renders the filtered record set of a console feature as a
// print document (HTML), a PDF and a spreadsheet.
package reporting

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var printTemplate = template.Must(template.ParseFS(templateFS, "templates/print.html.tmpl"))

// TitleDateLayout formats the date in report titles.
const TitleDateLayout = "Jan 2, 2006"

// PageSize is the paper size of a print document.
type PageSize string

const (
	PageLetter PageSize = "Letter"
	PageA4     PageSize = "A4"
)

// CSS returns the @page size value.
func (p PageSize) CSS() string {
	if p == PageA4 {
		return "A4 portrait"
	}
	return "letter portrait"
}

// Column is one report column.
type Column struct {
	Header string  `json:"header"`
	Width  float64 `json:"width,omitempty"`
}

// Report is a table ready to be rendered.
type Report struct {
	Name        string
	PageSize    PageSize
	Columns     []Column
	Rows        [][]string
	Filters     []string
	GeneratedAt time.Time
}

// Title is the report title shown on the document, "<Report> - Jan 2, 2006".
func (r Report) Title() string {
	return r.Name + " - " + r.GeneratedAt.Format(TitleDateLayout)
}

// DocumentTitle is the print document title.
func (r Report) DocumentTitle() string {
	return r.Title()
}

// Validate checks that every row has one cell per column.
func (r Report) Validate() error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("report %q has no columns", r.Name)
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("report %q row %d has %d cells, want %d", r.Name, i, len(row), len(r.Columns))
		}
	}
	return nil
}

// RenderHTML writes the standalone print document of r.
func RenderHTML(w io.Writer, r Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	if err := printTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render print document: %w", err)
	}
	return nil
}

// Format is an output format of Export.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts html, pdf and xlsx, case-insensitively. Empty means
// html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatPDF, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/html; charset=utf-8"
	}
}

// FileName returns a download name for r in format f.
func (f Format) FileName(r Report) string {
	slug := strings.ToLower(strings.Join(strings.Fields(r.Name), "-"))
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%s.%s", slug, r.GeneratedAt.Format("2006-01-02"), f)
}

// Exporter writes reports in any Format.
type Exporter struct {
	pdf *PDFRenderer
}

// NewExporter creates an Exporter. pdf may be nil, in which case PDF export
// fails with ErrPDFUnavailable.
func NewExporter(pdf *PDFRenderer) *Exporter {
	return &Exporter{pdf: pdf}
}

// Export renders r in format f to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, f Format, r Report) error {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	switch f {
	case FormatHTML:
		return RenderHTML(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatPDF:
		if e.pdf == nil {
			return ErrPDFUnavailable
		}
		var buf bytes.Buffer
		if err := RenderHTML(&buf, r); err != nil {
			return err
		}
		out, err := e.pdf.Render(ctx, buf.Bytes())
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}
