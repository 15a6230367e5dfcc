package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ops"
	"github.com/hpungsan/minutes/internal/recording"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "recordings", "search"
}

// ListPageData is the template data for the recording list page.
type ListPageData struct {
	PageData
	Items      []ops.RecordingSummary
	Pagination ops.Pagination
	Search     string
	State      string
	States     []recording.State
	Stats      *ops.StatsOutput
}

// DetailPageData is the template data for the recording detail page.
type DetailPageData struct {
	PageData
	Recording *ops.ShowOutput
	NotesHTML template.HTML
	Formats   []string
}

// SearchPageData is the template data for the search page.
type SearchPageData struct {
	PageData
	Query    string
	Items    []ops.SearchResultItem
	HasQuery bool
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.SugaredLogger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.SugaredLogger) *Renderer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"formatTime": formatTime,
		"ago":        ago,
		"duration":   formatDuration,
		"hms":        recording.FormatDuration,
		"timestamp":  recording.FormatTimestamp,
		"bytes":      func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
		"comma":      func(n int) string { return humanize.Comma(int64(n)) },
		"highlight":  highlight,
		"deref":      deref,
		"hasValue":   hasValue,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"list":   "list.html",
		"detail": "detail.html",
		"search": "search.html",
		"error":  "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Errorw("template not found", "name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Errorw("template execution failed", "name", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var mErr *errors.MinutesError
	if !stderrors.As(err, &mErr) {
		mErr = errors.NewInternal(err)
	}

	status := mErr.Status
	message := mErr.Message
	if mErr.Code == errors.ErrInternal {
		r.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
		message = "an internal error occurred"
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(mErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the input is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" local time.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}

// ago formats a Unix timestamp relative to now ("3 hours ago").
func ago(unix int64) string {
	return humanize.Time(time.Unix(unix, 0))
}

func formatDuration(secs *int64) string {
	if secs == nil {
		return "-"
	}
	return recording.FormatDuration(*secs)
}

// highlight turns the [term] markers of a search snippet into <mark> tags.
// The snippet text itself is escaped.
func highlight(snippet string) template.HTML {
	var b strings.Builder
	for {
		open := strings.IndexByte(snippet, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(snippet[open:], ']')
		if end < 0 {
			break
		}
		end += open
		b.WriteString(template.HTMLEscapeString(snippet[:open]))
		b.WriteString("<mark>")
		b.WriteString(template.HTMLEscapeString(snippet[open+1 : end]))
		b.WriteString("</mark>")
		snippet = snippet[end+1:]
	}
	b.WriteString(template.HTMLEscapeString(snippet))
	return template.HTML(b.String())
}

// deref dereferences a pointer, returning the zero value if nil.
// Supports *string and *int64 (the pointer types used in templates).
func deref(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface()
		}
		return rv.Elem().Interface()
	}
	return v
}

// hasValue checks if a pointer value is non-nil.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return !rv.IsNil()
	}
	return true
}
