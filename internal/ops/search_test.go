package ops

import (
	"strings"
	"testing"

	"github.com/hpungsan/minutes/internal/errors"
)

func TestSearch_HappyPath(t *testing.T) {
	database, baseDir := openTestDB(t)
	rec := seedRecording(t, database, baseDir, "Standup", standupSegments)

	output, err := Search(database, SearchInput{Query: "budget"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(output.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(output.Items))
	}

	item := output.Items[0]
	if item.RecordingID != rec.ID {
		t.Errorf("RecordingID = %q, want %q", item.RecordingID, rec.ID)
	}
	if item.Timestamp != "01:05" {
		t.Errorf("Timestamp = %q, want 01:05", item.Timestamp)
	}
	if item.Title != "Standup" {
		t.Errorf("Title = %q, want Standup", item.Title)
	}
	if !strings.Contains(item.Snippet, "[budget]") {
		t.Errorf("Snippet = %q, want highlighted term", item.Snippet)
	}
	if output.Sort != "relevance" {
		t.Errorf("Sort = %q, want relevance", output.Sort)
	}
}

func TestSearch_NoMatches(t *testing.T) {
	database, baseDir := openTestDB(t)
	seedRecording(t, database, baseDir, "Standup", standupSegments)

	output, err := Search(database, SearchInput{Query: "kubernetes"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(output.Items) != 0 {
		t.Errorf("len(Items) = %d, want 0", len(output.Items))
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	database, _ := openTestDB(t)

	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", strings.Repeat("a", MaxQueryLength+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Search(database, SearchInput{Query: tc.query})
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestSearch_SyntaxIsQuoted(t *testing.T) {
	database, baseDir := openTestDB(t)
	seedRecording(t, database, baseDir, "Standup", standupSegments)

	// FTS5 operators in user input must not cause a query error
	if _, err := Search(database, SearchInput{Query: `deploy" OR "NEAR(`}); err != nil {
		t.Errorf("Search with FTS syntax failed: %v", err)
	}
}
