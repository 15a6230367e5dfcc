package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/summarize"
)

// SummarizeOutput contains the stored notes.
type SummarizeOutput struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	Provider string `json:"provider"`
}

// Summarize generates notes for a transcribed recording with client and
// stores them on the recording.
func Summarize(ctx context.Context, database *sql.DB, client summarize.Client, id string) (*SummarizeOutput, error) {
	rec, err := db.FindRecording(database, id)
	if err != nil {
		return nil, err
	}
	segs, err := db.GetSegments(database, rec.ID)
	if err != nil {
		return nil, err
	}

	notes, err := summarize.Summarize(ctx, client, rec.Title, segs)
	if err != nil {
		return nil, err
	}
	if err := db.UpdateNotes(database, rec.ID, notes); err != nil {
		return nil, err
	}

	return &SummarizeOutput{ID: rec.ID, Title: rec.Title, Notes: notes, Provider: client.Name()}, nil
}
