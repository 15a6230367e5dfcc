package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

func TestStats(t *testing.T) {
	database, baseDir := openTestDB(t)
	seedRecording(t, database, baseDir, "Standup", standupSegments)
	seedRecording(t, database, baseDir, "Retro", nil)
	pending := recording.New("Later")
	pending.State = recording.StatePending
	if err := db.InsertRecording(database, pending); err != nil {
		t.Fatalf("InsertRecording failed: %v", err)
	}

	audioDir := db.AudioDir(baseDir)
	// Ignored: not audio
	if err := os.WriteFile(filepath.Join(audioDir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := Stats(database, audioDir)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if out.Recordings != 3 {
		t.Errorf("Recordings = %d, want 3", out.Recordings)
	}
	if out.ByState["completed"] != 2 || out.ByState["pending"] != 1 {
		t.Errorf("ByState = %v", out.ByState)
	}
	if out.Segments != 3 {
		t.Errorf("Segments = %d, want 3", out.Segments)
	}
	if out.TotalDurationSecs != 2*754 {
		t.Errorf("TotalDurationSecs = %d, want %d", out.TotalDurationSecs, 2*754)
	}
	if out.AudioFiles != 2 {
		t.Errorf("AudioFiles = %d, want 2", out.AudioFiles)
	}
	if out.AudioBytes != int64(2*len("OggS fake")) {
		t.Errorf("AudioBytes = %d", out.AudioBytes)
	}
}

func TestStats_MissingAudioDir(t *testing.T) {
	database, baseDir := openTestDB(t)

	out, err := Stats(database, filepath.Join(baseDir, "missing"))
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if out.Recordings != 0 || out.AudioFiles != 0 {
		t.Errorf("out = %+v, want empty", out)
	}
}

type stubSummarizer struct {
	reply  string
	prompt string
}

func (s *stubSummarizer) Name() string { return "stub" }

func (s *stubSummarizer) Complete(_ context.Context, _, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, nil
}

func TestSummarize_StoresNotes(t *testing.T) {
	database, baseDir := openTestDB(t)
	rec := seedRecording(t, database, baseDir, "Standup", standupSegments)
	client := &stubSummarizer{reply: "## Summary\n\nBudget review Thursday.\n"}

	out, err := Summarize(context.Background(), database, client, rec.ShortID())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.ID != rec.ID || out.Provider != "stub" {
		t.Errorf("out = %+v", out)
	}
	if out.Notes != "## Summary\n\nBudget review Thursday." {
		t.Errorf("Notes = %q", out.Notes)
	}
	if !strings.Contains(client.prompt, "[01:05] Let's review the budget on Thursday.") {
		t.Errorf("prompt missing transcript:\n%s", client.prompt)
	}

	stored, err := db.GetRecording(database, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording failed: %v", err)
	}
	if stored.Notes == nil || *stored.Notes != out.Notes {
		t.Errorf("stored notes = %v", stored.Notes)
	}
}

func TestSummarize_NoTranscript(t *testing.T) {
	database, baseDir := openTestDB(t)
	rec := seedRecording(t, database, baseDir, "Empty", nil)

	_, err := Summarize(context.Background(), database, &stubSummarizer{reply: "x"}, rec.ID)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}
