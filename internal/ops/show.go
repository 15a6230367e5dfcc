package ops

import (
	"database/sql"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/recording"
)

// ShowOutput is a recording with its transcript.
type ShowOutput struct {
	recording.Recording
	Segments []recording.Segment `json:"segments"`
}

// Show retrieves a recording by id or unique id prefix, with its segments.
func Show(database *sql.DB, id string) (*ShowOutput, error) {
	rec, err := db.FindRecording(database, id)
	if err != nil {
		return nil, err
	}

	segs, err := db.GetSegments(database, rec.ID)
	if err != nil {
		return nil, err
	}
	if segs == nil {
		segs = []recording.Segment{}
	}

	return &ShowOutput{Recording: *rec, Segments: segs}, nil
}
