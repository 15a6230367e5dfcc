// Package ops implements the recording library operations shared by the
// CLI, the MCP server and the web UI.
package ops

import (
	"strings"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// Pagination limits
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryLength     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// RecordingSummary is the list view of a recording.
type RecordingSummary struct {
	ID           string          `json:"id"`
	ShortID      string          `json:"short_id"`
	Title        string          `json:"title"`
	State        recording.State `json:"state"`
	DurationSecs *int64          `json:"duration_secs,omitempty"`
	AudioPath    *string         `json:"audio_path,omitempty"`
	HasNotes     bool            `json:"has_notes"`
	CreatedAt    int64           `json:"created_at"`
}

// SummaryOf builds the list view of r.
func SummaryOf(r *recording.Recording) RecordingSummary {
	return RecordingSummary{
		ID:           r.ID,
		ShortID:      r.ShortID(),
		Title:        r.Title,
		State:        r.State,
		DurationSecs: r.DurationSecs,
		AudioPath:    r.AudioPath,
		HasNotes:     r.Notes != nil && strings.TrimSpace(*r.Notes) != "",
		CreatedAt:    r.CreatedAt,
	}
}

// clampLimit applies the default and the upper bound to a page size.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// parseStateFilter validates a state filter; empty means all states.
func parseStateFilter(s string) (recording.State, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	switch st := recording.State(s); st {
	case recording.StateRecording, recording.StatePending, recording.StateTranscribing,
		recording.StateCompleted, recording.StateFailed:
		return st, nil
	}
	return "", errors.NewInvalidRequest("unknown state filter: " + s)
}
