package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

const recordingColumns = `id, title, audio_path, duration_secs, state, created_at, updated_at, notes, tags`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// InsertRecording stores a new recording session.
func InsertRecording(db *sql.DB, r *recording.Recording) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO recordings (` + recordingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query,
		r.ID, r.Title, toNullString(r.AudioPath), toNullInt64(r.DurationSecs),
		string(r.State), r.CreatedAt, r.UpdatedAt, toNullString(r.Notes), tags,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// UpdateRecording writes the mutable fields of an existing recording.
// Sets updated_at to current timestamp.
func UpdateRecording(db *sql.DB, r *recording.Recording) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	query := `
		UPDATE recordings
		SET title = ?, audio_path = ?, duration_secs = ?, state = ?,
			notes = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.Exec(query,
		r.Title, toNullString(r.AudioPath), toNullInt64(r.DurationSecs), string(r.State),
		toNullString(r.Notes), tags, now,
		r.ID,
	)
	if err := checkAffected(result, err, r.ID); err != nil {
		return err
	}

	r.UpdatedAt = now
	return nil
}

// UpdateState changes only the lifecycle state of a recording.
func UpdateState(db *sql.DB, id string, state recording.State) error {
	result, err := db.Exec(
		`UPDATE recordings SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().Unix(), id,
	)
	return checkAffected(result, err, id)
}

// UpdateAudioPath records a new location for the recording's audio file.
func UpdateAudioPath(db *sql.DB, id, path string) error {
	result, err := db.Exec(
		`UPDATE recordings SET audio_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().Unix(), id,
	)
	return checkAffected(result, err, id)
}

// UpdateNotes stores the generated summary for a recording.
func UpdateNotes(db *sql.DB, id, notes string) error {
	result, err := db.Exec(
		`UPDATE recordings SET notes = ?, updated_at = ? WHERE id = ?`,
		notes, time.Now().Unix(), id,
	)
	return checkAffected(result, err, id)
}

// GetRecording retrieves a recording by its full id.
func GetRecording(db *sql.DB, id string) (*recording.Recording, error) {
	row := db.QueryRow(`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// FindRecording resolves a full id or a unique id prefix.
// An ambiguous prefix is rejected rather than guessed.
func FindRecording(db *sql.DB, idOrPrefix string) (*recording.Recording, error) {
	idOrPrefix = strings.ToLower(strings.TrimSpace(idOrPrefix))
	if idOrPrefix == "" {
		return nil, errors.NewInvalidRequest("recording id is required")
	}
	if !isIDPrefix(idOrPrefix) {
		return nil, errors.NewNotFound(idOrPrefix)
	}

	rows, err := db.Query(
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ? OR id LIKE ? ORDER BY (id = ?) DESC LIMIT 2`,
		idOrPrefix, idOrPrefix+"%", idOrPrefix,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var found []*recording.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	switch {
	case len(found) == 0:
		return nil, errors.NewNotFound(idOrPrefix)
	case found[0].ID == idOrPrefix || len(found) == 1:
		return found[0], nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("ambiguous recording id prefix %q", idOrPrefix))
	}
}

// ListOptions filters and paginates ListRecordings.
type ListOptions struct {
	Limit  int
	Offset int
	// Search matches titles case-insensitively.
	Search string
	State  recording.State
}

// ListRecordings returns recordings newest first.
func ListRecordings(db *sql.DB, opts ListOptions) ([]*recording.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE 1=1`
	var args []any

	if s := strings.TrimSpace(opts.Search); s != "" {
		query += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(s)+"%")
	}
	if opts.State != "" {
		query += ` AND state = ?`
		args = append(args, string(opts.State))
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	return queryRecordings(db, query, args...)
}

// ListPending returns recordings waiting for transcription, oldest first.
// Recordings created in the same second keep insertion order.
func ListPending(db *sql.DB) ([]*recording.Recording, error) {
	return queryRecordings(db,
		`SELECT `+recordingColumns+` FROM recordings WHERE state = ? ORDER BY created_at ASC, rowid ASC`,
		string(recording.StatePending),
	)
}

// DeleteRecording removes a recording and its transcript.
func DeleteRecording(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_segments WHERE recording_id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	result, err := tx.Exec(`DELETE FROM recordings WHERE id = ?`, id)
	if err := checkAffected(result, err, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func queryRecordings(db *sql.DB, query string, args ...any) ([]*recording.Recording, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []*recording.Recording{}
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanRecording scans a single row into a Recording struct.
func scanRecording(row rowScanner) (*recording.Recording, error) {
	var (
		r         recording.Recording
		audioPath sql.NullString
		duration  sql.NullInt64
		state     string
		notes     sql.NullString
		tags      sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.Title, &audioPath, &duration, &state,
		&r.CreatedAt, &r.UpdatedAt, &notes, &tags,
	)
	if err != nil {
		return nil, err
	}

	r.AudioPath = fromNullString(audioPath)
	r.Notes = fromNullString(notes)
	r.State = recording.ParseState(state)
	if duration.Valid {
		r.DurationSecs = &duration.Int64
	}

	r.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &r.Tags); err != nil {
			return nil, err
		}
	}

	return &r, nil
}

// checkAffected maps a zero-row update or delete to NOT_FOUND.
func checkAffected(result sql.Result, err error, id string) error {
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isIDPrefix reports whether s only contains characters of a rendered UUID.
func isIDPrefix(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c == '-') {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
