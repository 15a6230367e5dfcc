package db

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// InsertSegments atomically replaces the transcript of a recording.
// Existing segments are removed first so re-transcription never duplicates text.
func InsertSegments(db *sql.DB, recordingID string, segments []recording.Segment) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_segments WHERE recording_id = ?`, recordingID); err != nil {
		return errors.NewInternal(err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO transcript_segments (recording_id, start_time, end_time, text, speaker, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for _, s := range segments {
		if _, err := stmt.Exec(recordingID, s.StartTime, s.EndTime, s.Text, toNullString(s.Speaker), toNullFloat64(s.Confidence)); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSegments returns the transcript of a recording ordered by start time.
func GetSegments(db *sql.DB, recordingID string) ([]recording.Segment, error) {
	rows, err := db.Query(`
		SELECT id, recording_id, start_time, end_time, text, speaker, confidence
		FROM transcript_segments
		WHERE recording_id = ?
		ORDER BY start_time ASC, id ASC
	`, recordingID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []recording.Segment{}
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SearchHit is one full-text match.
type SearchHit struct {
	Segment   recording.Segment `json:"segment"`
	Title     string            `json:"title"`
	Snippet   string            `json:"snippet"`
	CreatedAt int64             `json:"created_at"`
}

// SearchTranscripts runs a full-text query over transcript text, best match first.
func SearchTranscripts(db *sql.DB, query string, limit int) ([]SearchHit, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, errors.NewInvalidRequest("search query is empty")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT s.id, s.recording_id, s.start_time, s.end_time, s.text, s.speaker, s.confidence,
			r.title, r.created_at,
			snippet(transcript_fts, 1, '[', ']', '...', 12)
		FROM transcript_fts
		JOIN transcript_segments s ON s.id = transcript_fts.rowid
		JOIN recordings r ON r.id = s.recording_id
		WHERE transcript_fts MATCH ?
		ORDER BY bm25(transcript_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	hits := []SearchHit{}
	for rows.Next() {
		var (
			h          SearchHit
			speaker    sql.NullString
			confidence sql.NullFloat64
		)
		err := rows.Scan(
			&h.Segment.ID, &h.Segment.RecordingID, &h.Segment.StartTime, &h.Segment.EndTime,
			&h.Segment.Text, &speaker, &confidence,
			&h.Title, &h.CreatedAt, &h.Snippet,
		)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		h.Segment.Speaker = fromNullString(speaker)
		h.Segment.Confidence = fromNullFloat64(confidence)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return hits, nil
}

// sanitizeFTSQuery quotes every term so user input can't inject FTS5 syntax.
// Terms are ANDed together.
func sanitizeFTSQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}

func scanSegment(row rowScanner) (recording.Segment, error) {
	var (
		s          recording.Segment
		speaker    sql.NullString
		confidence sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.RecordingID, &s.StartTime, &s.EndTime, &s.Text, &speaker, &confidence); err != nil {
		return s, err
	}
	s.Speaker = fromNullString(speaker)
	s.Confidence = fromNullFloat64(confidence)
	return s, nil
}

func toNullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
