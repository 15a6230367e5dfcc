package web

import (
	"database/sql"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ops"
	"github.com/hpungsan/minutes/internal/recording"
)

var filterStates = []recording.State{
	recording.StateCompleted,
	recording.StatePending,
	recording.StateTranscribing,
	recording.StateRecording,
	recording.StateFailed,
}

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	audioDir string
	renderer *Renderer
}

// HandleList handles GET /recordings: newest recordings first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.ListInput{
		Search: r.URL.Query().Get("search"),
		State:  r.URL.Query().Get("state"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	result, err := ops.List(h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	stats, err := ops.Stats(h.db, h.audioDir)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Recordings",
			Version: h.renderer.version,
			Nav:     "recordings",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Search:     input.Search,
		State:      input.State,
		States:     filterStates,
		Stats:      stats,
	})
}

// HandleDetail handles GET /recordings/{id}: notes and transcript.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("recording ID is required"))
		return
	}

	rec, err := ops.Show(h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, rec)
		return
	}

	var notes template.HTML
	if rec.Notes != nil && strings.TrimSpace(*rec.Notes) != "" {
		notes = renderMarkdown(*rec.Notes)
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   rec.Title,
			Version: h.renderer.version,
			Nav:     "recordings",
		},
		Recording: rec,
		NotesHTML: notes,
		Formats:   ops.Formats,
	})
}

// HandleExport handles GET /recordings/{id}/export?format=: a download of
// the rendered transcript.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("recording ID is required"))
		return
	}

	format := r.URL.Query().Get("format")
	out, err := ops.Export(h.db, ops.ExportInput{ID: id, Format: format})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	rec, err := ops.Show(h.db, out.ID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	name := ops.SanitizeForFilename(rec.Title) + "-" + recording.ShortID(rec.ID) + "." + out.Format
	w.Header().Set("Content-Type", contentTypes[out.Format])
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Content))
}

var contentTypes = map[string]string{
	ops.FormatText:     "text/plain; charset=utf-8",
	ops.FormatJSON:     "application/json",
	ops.FormatSRT:      "application/x-subrip; charset=utf-8",
	ops.FormatMarkdown: "text/markdown; charset=utf-8",
	ops.FormatHTML:     "text/html; charset=utf-8",
}

// HandleDelete handles DELETE /recordings/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("recording ID is required"))
		return
	}

	result, err := ops.Delete(h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/recordings", http.StatusFound)
}

// HandleSearch handles GET /search?q=: full-text transcript search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:    query,
		HasQuery: query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, "search", data)
		return
	}

	result, err := ops.Search(h.db, ops.SearchInput{
		Query: query,
		Limit: parseIntParam(r, "limit", ops.DefaultSearchLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Items = result.Items
	h.renderer.renderPage(w, "search", data)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
