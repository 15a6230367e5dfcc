package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/minutes/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file under the base directory.
const FileName = "minutes.db"

// AudioDir returns the directory holding per-session audio files.
func AudioDir(baseDir string) string {
	return filepath.Join(baseDir, "audio")
}

// Init initializes the SQLite database at baseDir/minutes.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.minutes.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	audioDir := AudioDir(baseDir)
	if err := os.MkdirAll(audioDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	_ = os.Chmod(audioDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS recordings (
		  id            TEXT PRIMARY KEY,
		  title         TEXT NOT NULL,
		  audio_path    TEXT,
		  duration_secs INTEGER,
		  state         TEXT NOT NULL DEFAULT 'recording',
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL,
		  notes         TEXT,
		  tags          TEXT NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_recordings_created_at
		ON recordings(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_recordings_state
		ON recordings(state);

		CREATE TABLE IF NOT EXISTS transcript_segments (
		  id           INTEGER PRIMARY KEY AUTOINCREMENT,
		  recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		  start_time   REAL NOT NULL,
		  end_time     REAL NOT NULL,
		  text         TEXT NOT NULL,
		  speaker      TEXT,
		  confidence   REAL
		);

		CREATE INDEX IF NOT EXISTS idx_segments_recording
		ON transcript_segments(recording_id, start_time);

		CREATE VIRTUAL TABLE IF NOT EXISTS transcript_fts USING fts5(
		  recording_id UNINDEXED,
		  text,
		  content='transcript_segments',
		  content_rowid='id',
		  tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS transcript_segments_ai AFTER INSERT ON transcript_segments BEGIN
		  INSERT INTO transcript_fts(rowid, recording_id, text)
		  VALUES (new.id, new.recording_id, new.text);
		END;

		CREATE TRIGGER IF NOT EXISTS transcript_segments_ad AFTER DELETE ON transcript_segments BEGIN
		  INSERT INTO transcript_fts(transcript_fts, rowid, recording_id, text)
		  VALUES ('delete', old.id, old.recording_id, old.text);
		END;

		CREATE TRIGGER IF NOT EXISTS transcript_segments_au AFTER UPDATE ON transcript_segments BEGIN
		  INSERT INTO transcript_fts(transcript_fts, rowid, recording_id, text)
		  VALUES ('delete', old.id, old.recording_id, old.text);
		  INSERT INTO transcript_fts(rowid, recording_id, text)
		  VALUES (new.id, new.recording_id, new.text);
		END;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
