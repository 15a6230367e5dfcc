package ops

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
)

// StatsOutput summarizes the library and its disk usage.
type StatsOutput struct {
	db.Stats
	AudioFiles int   `json:"audio_files"`
	AudioBytes int64 `json:"audio_bytes"`
}

// Stats counts recordings and segments and sums the audio directory.
func Stats(database *sql.DB, audioDir string) (*StatsOutput, error) {
	st, err := db.GetStats(database)
	if err != nil {
		return nil, err
	}
	out := &StatsOutput{Stats: *st}

	entries, err := os.ReadDir(audioDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.NewInternal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".wav", ".ogg":
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out.AudioFiles++
		out.AudioBytes += info.Size()
	}
	return out, nil
}
