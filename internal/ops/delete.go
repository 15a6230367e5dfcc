package ops

import (
	"database/sql"
	"os"

	"github.com/hpungsan/minutes/internal/capture"
	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted      bool   `json:"deleted"`
	ID           string `json:"id"`
	AudioRemoved bool   `json:"audio_removed"`
}

// Delete removes a recording, its transcript and its audio file. Sessions
// that are still being captured or transcribed are refused.
func Delete(database *sql.DB, id string) (*DeleteOutput, error) {
	rec, err := db.FindRecording(database, id)
	if err != nil {
		return nil, err
	}
	if rec.State == recording.StateRecording || rec.State == recording.StateTranscribing {
		return nil, errors.NewInvalidRequest("cannot delete a recording that is " + string(rec.State))
	}

	if err := db.DeleteRecording(database, rec.ID); err != nil {
		return nil, err
	}

	out := &DeleteOutput{Deleted: true, ID: rec.ID}
	if rec.AudioPath != nil && *rec.AudioPath != "" {
		if err := os.Remove(*rec.AudioPath); err == nil {
			out.AudioRemoved = true
		}
		// Leftover microphone track from an interrupted dual capture
		_ = os.Remove(capture.MicPath(*rec.AudioPath))
	}
	return out, nil
}
