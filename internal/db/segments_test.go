package db

import (
	"testing"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

func TestInsertSegments_ReplacesExisting(t *testing.T) {
	db := openTestDB(t)

	r := newTestRecording("a2000000-0000-4000-8000-000000000000", "Sync", 1)
	if err := InsertRecording(db, r); err != nil {
		t.Fatalf("InsertRecording failed: %v", err)
	}

	first := []recording.Segment{
		{StartTime: 5, EndTime: 6, Text: "second"},
		{StartTime: 0, EndTime: 2, Text: "first", Speaker: stringPtr("A")},
	}
	if err := InsertSegments(db, r.ID, first); err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}

	got, err := GetSegments(db, r.ID)
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("segments not ordered by start: %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Speaker == nil || *got[0].Speaker != "A" {
		t.Errorf("Speaker = %v, want A", got[0].Speaker)
	}
	if got[1].Speaker != nil || got[1].Confidence != nil {
		t.Errorf("nullable fields should stay nil")
	}

	// Re-transcription replaces instead of appending
	if err := InsertSegments(db, r.ID, []recording.Segment{{StartTime: 0, EndTime: 1, Text: "only"}}); err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}
	got, _ = GetSegments(db, r.ID)
	if len(got) != 1 || got[0].Text != "only" {
		t.Errorf("segments = %v, want just the replacement", got)
	}
}

func TestInsertSegments_UnknownRecording(t *testing.T) {
	db := openTestDB(t)

	err := InsertSegments(db, "missing", []recording.Segment{{Text: "orphan"}})
	if err == nil {
		t.Fatal("InsertSegments should fail the foreign key check")
	}

	hits, err := SearchTranscripts(db, "orphan", 10)
	if err != nil {
		t.Fatalf("SearchTranscripts failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("failed batch left %d rows behind", len(hits))
	}
}

func TestSearchTranscripts(t *testing.T) {
	db := openTestDB(t)

	a := newTestRecording("a3000000-0000-4000-8000-000000000000", "Budget review", 1)
	b := newTestRecording("b3000000-0000-4000-8000-000000000000", "Hiring", 2)
	for _, r := range []*recording.Recording{a, b} {
		if err := InsertRecording(db, r); err != nil {
			t.Fatalf("InsertRecording failed: %v", err)
		}
	}
	_ = InsertSegments(db, a.ID, []recording.Segment{
		{StartTime: 0, EndTime: 3, Text: "we need to cut the marketing budget"},
		{StartTime: 3, EndTime: 6, Text: "the budget budget budget is tight"},
	})
	_ = InsertSegments(db, b.ID, []recording.Segment{
		{StartTime: 0, EndTime: 3, Text: "we are hiring two engineers"},
	})

	hits, err := SearchTranscripts(db, "budget", 10)
	if err != nil {
		t.Fatalf("SearchTranscripts failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2", len(hits))
	}
	if hits[0].Title != "Budget review" {
		t.Errorf("Title = %q", hits[0].Title)
	}
	if hits[0].Segment.StartTime != 3 {
		t.Errorf("best match should be the denser segment, got start %v", hits[0].Segment.StartTime)
	}

	// Porter stemming
	hits, err = SearchTranscripts(db, "engineer", 10)
	if err != nil {
		t.Fatalf("SearchTranscripts failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Segment.RecordingID != b.ID {
		t.Errorf("stemmed search hits = %v", hits)
	}
}

func TestSearchTranscripts_SyntaxIsQuoted(t *testing.T) {
	db := openTestDB(t)

	if _, err := SearchTranscripts(db, `budget" OR "x`, 10); err != nil {
		t.Errorf("quoted query should not error, got %v", err)
	}
	if _, err := SearchTranscripts(db, "   ", 10); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty query should return ErrInvalidRequest, got %v", err)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"budget", `"budget"`},
		{"cut  budget", `"cut" "budget"`},
		{`say "hi"`, `"say" """hi"""`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFTSQuery(tt.in); got != tt.want {
			t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
