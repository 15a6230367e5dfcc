package db

import (
	"database/sql"

	"github.com/hpungsan/minutes/internal/errors"
)

// Stats summarizes the library.
type Stats struct {
	Recordings        int            `json:"recordings"`
	ByState           map[string]int `json:"by_state"`
	Segments          int            `json:"segments"`
	TotalDurationSecs int64          `json:"total_duration_secs"`
}

// GetStats counts recordings per state, transcript segments, and recorded time.
func GetStats(db *sql.DB) (*Stats, error) {
	st := &Stats{ByState: map[string]int{}}

	if err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(duration_secs), 0) FROM recordings`,
	).Scan(&st.Recordings, &st.TotalDurationSecs); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM transcript_segments`).Scan(&st.Segments); err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := db.Query(`SELECT state, COUNT(*) FROM recordings GROUP BY state`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		st.ByState[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return st, nil
}
