package web

import (
	"database/sql"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/recording"
)

func stringPtr(s string) *string { return &s }

func setupTest(t *testing.T) *Handlers {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}

	return &Handlers{
		db:       database,
		audioDir: db.AudioDir(tmpDir),
		renderer: NewRenderer(templateSub, "test", nil),
	}
}

// seedRecording stores a completed recording with a short transcript.
func seedRecording(t *testing.T, database *sql.DB, title string, notes *string) *recording.Recording {
	t.Helper()
	rec := recording.New(title)
	rec.State = recording.StateCompleted
	dur := int64(95)
	rec.DurationSecs = &dur
	rec.Notes = notes
	if err := db.InsertRecording(database, rec); err != nil {
		t.Fatalf("seed recording %q: %v", title, err)
	}
	segs := []recording.Segment{
		{StartTime: 1, EndTime: 5, Text: "Welcome, let's look at the launch checklist."},
		{StartTime: 70, EndTime: 75, Text: "Marketing signs off on Friday.", Speaker: stringPtr("Priya")},
	}
	if err := db.InsertSegments(database, rec.ID, segs); err != nil {
		t.Fatalf("seed segments: %v", err)
	}
	return rec
}

// --- HandleList ---

func TestHandleList_Default(t *testing.T) {
	h := setupTest(t)
	seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/recordings", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Launch sync") {
		t.Error("expected recording title in response")
	}
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("expected full layout")
	}
	if !strings.Contains(body, "1:35") {
		t.Error("expected formatted duration 1:35")
	}
	if !strings.Contains(body, "1 recordings") {
		t.Error("expected stats line")
	}
}

func TestHandleList_Empty(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/recordings", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No recordings found") {
		t.Error("expected empty state message")
	}
}

func TestHandleList_Filters(t *testing.T) {
	h := setupTest(t)
	seedRecording(t, h.db, "Launch sync", nil)
	seedRecording(t, h.db, "Hiring loop", nil)

	req := httptest.NewRequest("GET", "/recordings?search=hiring", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Hiring loop") {
		t.Error("expected filtered recording")
	}
	if strings.Contains(body, ">Launch sync<") {
		t.Error("did not expect other recording in filtered results")
	}
}

func TestHandleList_BadState(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/recordings?state=archived", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleList_JSON(t *testing.T) {
	h := setupTest(t)
	seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/recordings?limit=notanumber", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0]["title"] != "Launch sync" {
		t.Errorf("items = %v", resp.Items)
	}
}

// --- HandleDetail ---

func TestHandleDetail_Found(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", stringPtr("## Decisions\n\n- Ship **Friday**\n\n<script>alert(1)</script>"))

	req := httptest.NewRequest("GET", "/recordings/"+r.ID, nil)
	req.SetPathValue("id", r.ShortID())
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>Decisions</h2>") {
		t.Error("expected notes rendered from markdown")
	}
	if !strings.Contains(body, "<strong>Friday</strong>") {
		t.Error("expected inline markdown rendered")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML in notes must not be rendered")
	}
	if !strings.Contains(body, "01:10") || !strings.Contains(body, "Priya:") {
		t.Error("expected transcript with timestamp and speaker")
	}
	if !strings.Contains(body, "/recordings/"+r.ID+"/export?format=srt") {
		t.Error("expected export links")
	}
}

func TestHandleDetail_NoNotes(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/recordings/"+r.ID, nil)
	req.SetPathValue("id", r.ID)
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if !strings.Contains(rec.Body.String(), "minutes summarize "+r.ShortID()) {
		t.Error("expected summarize hint when notes are missing")
	}
}

func TestHandleDetail_NotFound(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/recordings/00000000", nil)
	req.SetPathValue("id", "00000000")
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "recording not found") {
		t.Error("expected error page message")
	}
}

func TestHandleDetail_EmptyID(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/recordings/", nil)
	req.SetPathValue("id", "")
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- HandleExport ---

func TestHandleExport(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/recordings/"+r.ID+"/export?format=srt", nil)
	req.SetPathValue("id", r.ID)
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-subrip") {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `attachment; filename=Launch-sync-` + r.ShortID() + `.srt`
	if cd := rec.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Content-Disposition = %q, want %q", cd, want)
	}
	if !strings.HasPrefix(rec.Body.String(), "1\n00:00:01,000 --> 00:00:05,000\n") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleExport_BadFormat(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/recordings/"+r.ID+"/export?format=pdf", nil)
	req.SetPathValue("id", r.ID)
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- HandleDelete ---

func TestHandleDelete_JSONRequest(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("DELETE", "/recordings/"+r.ID, nil)
	req.SetPathValue("id", r.ID)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if resp["deleted"] != true {
		t.Errorf("deleted = %v, want true", resp["deleted"])
	}
	if resp["id"] != r.ID {
		t.Errorf("id = %v, want %s", resp["id"], r.ID)
	}
}

func TestHandleDelete_DefaultRedirect(t *testing.T) {
	h := setupTest(t)
	r := seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("DELETE", "/recordings/"+r.ID, nil)
	req.SetPathValue("id", r.ID)
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/recordings" {
		t.Errorf("Location = %q, want /recordings", loc)
	}
}

func TestHandleDelete_ActiveRecordingRefused(t *testing.T) {
	h := setupTest(t)
	live := recording.New("Live")
	if err := db.InsertRecording(h.db, live); err != nil {
		t.Fatalf("insert: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/recordings/"+live.ID, nil)
	req.SetPathValue("id", live.ID)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDelete_NotFound_JSON(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("DELETE", "/recordings/00000000", nil)
	req.SetPathValue("id", "00000000")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatal("expected error object in JSON response")
	}
	if errObj["status"] != float64(404) {
		t.Errorf("error.status = %v, want 404", errObj["status"])
	}
}

// --- HandleSearch ---

func TestHandleSearch_EmptyQuery(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/search", nil)
	rec := httptest.NewRecorder()
	h.HandleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "No matches") {
		t.Error("empty query should not show a no-matches message")
	}
}

func TestHandleSearch_WithQuery(t *testing.T) {
	h := setupTest(t)
	seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/search?q=checklist", nil)
	rec := httptest.NewRecorder()
	h.HandleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Launch sync") {
		t.Error("expected matching recording in results")
	}
	if !strings.Contains(body, "<mark>checklist</mark>") {
		t.Error("expected highlighted term in snippet")
	}
}

func TestHandleSearch_NoResults(t *testing.T) {
	h := setupTest(t)
	seedRecording(t, h.db, "Launch sync", nil)

	req := httptest.NewRequest("GET", "/search?q=kubernetes", nil)
	rec := httptest.NewRecorder()
	h.HandleSearch(rec, req)

	if !strings.Contains(rec.Body.String(), "No matches") {
		t.Error("expected no-matches message")
	}
}

// --- Server ---

func TestNewServer_RoutesAndHeaders(t *testing.T) {
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv, err := NewServer(database, db.AudioDir(tmpDir), "test", "", 0, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Addr != "127.0.0.1:8790" {
		t.Errorf("Addr = %q, want 127.0.0.1:8790", srv.Addr)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/", http.StatusFound},
		{"/recordings", http.StatusOK},
		{"/search?q=", http.StatusOK},
		{"/static/style.css", http.StatusOK},
		{"/recordings/00000000", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
			if rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Error("missing security headers")
			}
		})
	}
}

// --- Helpers ---

func TestHighlight(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"the [budget] review", "the <mark>budget</mark> review"},
		{"<b>[x]</b>", "&lt;b&gt;<mark>x</mark>&lt;/b&gt;"},
		{"unclosed [bracket", "unclosed [bracket"},
	}
	for _, tc := range tests {
		if got := string(highlight(tc.in)); got != tc.want {
			t.Errorf("highlight(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/recordings?"+tc.query, nil)
		if got := parseIntParam(req, "limit", 20); got != tc.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}
