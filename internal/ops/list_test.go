package ops

import (
	"fmt"
	"testing"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

func TestList_HappyPath(t *testing.T) {
	database, baseDir := openTestDB(t)

	for i := range 3 {
		seedRecording(t, database, baseDir, fmt.Sprintf("Meeting %d", i), nil)
	}

	output, err := List(database, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(output.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(output.Items))
	}
	if output.Pagination.HasMore {
		t.Error("HasMore = true, want false")
	}
	if output.Pagination.Limit != DefaultListLimit {
		t.Errorf("Limit = %d, want %d", output.Pagination.Limit, DefaultListLimit)
	}
	if output.Sort != "created_at_desc" {
		t.Errorf("Sort = %q, want 'created_at_desc'", output.Sort)
	}
}

func TestList_Pagination(t *testing.T) {
	database, baseDir := openTestDB(t)

	for i := range 5 {
		seedRecording(t, database, baseDir, fmt.Sprintf("Meeting %d", i), nil)
	}

	page, err := List(database, ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 || !page.Pagination.HasMore {
		t.Errorf("page 1: len=%d has_more=%v, want 2 true", len(page.Items), page.Pagination.HasMore)
	}

	page, err = List(database, ListInput{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 || page.Pagination.HasMore {
		t.Errorf("last page: len=%d has_more=%v, want 1 false", len(page.Items), page.Pagination.HasMore)
	}
}

func TestList_LimitBounds(t *testing.T) {
	database, _ := openTestDB(t)

	output, err := List(database, ListInput{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if output.Pagination.Limit != MaxListLimit {
		t.Errorf("Limit = %d, want %d", output.Pagination.Limit, MaxListLimit)
	}
	if output.Pagination.Offset != 0 {
		t.Errorf("Offset = %d, want 0", output.Pagination.Offset)
	}
	if output.Items == nil {
		t.Error("Items is nil, want empty slice")
	}
}

func TestList_Filters(t *testing.T) {
	database, baseDir := openTestDB(t)

	seedRecording(t, database, baseDir, "Design review", nil)
	seedRecording(t, database, baseDir, "Standup", nil)
	pending := recording.New("Retro")
	pending.State = recording.StatePending
	if err := db.InsertRecording(database, pending); err != nil {
		t.Fatalf("InsertRecording failed: %v", err)
	}

	output, err := List(database, ListInput{Search: "review"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(output.Items) != 1 || output.Items[0].Title != "Design review" {
		t.Errorf("search filter returned %+v", output.Items)
	}

	output, err = List(database, ListInput{State: "pending"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(output.Items) != 1 || output.Items[0].ID != pending.ID {
		t.Errorf("state filter returned %+v", output.Items)
	}

	_, err = List(database, ListInput{State: "bogus"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestShow(t *testing.T) {
	database, baseDir := openTestDB(t)
	rec := seedRecording(t, database, baseDir, "Standup", standupSegments)

	out, err := Show(database, rec.ShortID())
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if out.ID != rec.ID {
		t.Errorf("ID = %q, want %q", out.ID, rec.ID)
	}
	if len(out.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(out.Segments))
	}
	if out.Segments[2].StartTime != 65 {
		t.Errorf("segments not ordered by start: %+v", out.Segments)
	}

	_, err = Show(database, "0000000")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestShow_NoSegments(t *testing.T) {
	database, baseDir := openTestDB(t)
	rec := seedRecording(t, database, baseDir, "Empty", nil)

	out, err := Show(database, rec.ID)
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if out.Segments == nil {
		t.Error("Segments is nil, want empty slice")
	}
}
