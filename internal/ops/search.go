package ops

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query string // required
	Limit int    // default: 20, max: 100
}

// SearchResultItem is one transcript match.
type SearchResultItem struct {
	RecordingID string  `json:"recording_id"`
	ShortID     string  `json:"short_id"`
	Title       string  `json:"title"`
	StartTime   float64 `json:"start_time"`
	Timestamp   string  `json:"timestamp"`
	Text        string  `json:"text"`
	// Snippet marks matched terms with [brackets].
	Snippet   string `json:"snippet"`
	CreatedAt int64  `json:"created_at"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items []SearchResultItem `json:"items"`
	Query string             `json:"query"`
	Sort  string             `json:"sort"` // "relevance"
}

// Search runs a full-text query over all transcripts, best match first.
func Search(database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	hits, err := db.SearchTranscripts(database, query, clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit))
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, SearchResultItem{
			RecordingID: h.Segment.RecordingID,
			ShortID:     recording.ShortID(h.Segment.RecordingID),
			Title:       h.Title,
			StartTime:   h.Segment.StartTime,
			Timestamp:   recording.FormatTimestamp(h.Segment.StartTime),
			Text:        h.Segment.Text,
			Snippet:     h.Snippet,
			CreatedAt:   h.CreatedAt,
		})
	}

	return &SearchOutput{Items: items, Query: query, Sort: "relevance"}, nil
}
