package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/errors"
)

// WhisperCLI runs whisper.cpp's whisper-cli on each window.
type WhisperCLI struct {
	Command   string
	ModelPath string
	Threads   int
}

// NewWhisperCLI builds the engine from config.
func NewWhisperCLI(cfg *config.Config) *WhisperCLI {
	cmd := cfg.Whisper.Command
	if cmd == "" {
		cmd = "whisper-cli"
	}
	return &WhisperCLI{Command: cmd, ModelPath: cfg.ModelPath(), Threads: cfg.Whisper.Threads}
}

// OptionsFromConfig returns the engine options in cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Language: cfg.Whisper.Language, Translate: cfg.Whisper.Translate}
}

// Check verifies the model file exists and the command is on PATH.
func (w *WhisperCLI) Check() error {
	if _, err := os.Stat(w.ModelPath); err != nil {
		return errors.NewTranscription(fmt.Sprintf("whisper model not found at %s", w.ModelPath), nil)
	}
	if _, err := exec.LookPath(w.Command); err != nil {
		return errors.NewTranscription(w.Command+" not found on PATH", err)
	}
	return nil
}

// whisperOutput is the subset of whisper-cli's -oj output that is used.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *WhisperCLI) Transcribe(ctx context.Context, samples []float32, opts Options) ([]Span, error) {
	if _, err := os.Stat(w.ModelPath); err != nil {
		return nil, errors.NewTranscription(fmt.Sprintf("whisper model not found at %s", w.ModelPath), nil)
	}

	dir, err := os.MkdirTemp("", "minutes-whisper-")
	if err != nil {
		return nil, errors.NewTranscription("create temp dir", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "window.wav")
	if err := audio.WriteWAVFloat(wavPath, samples, SampleRate, 1); err != nil {
		return nil, errors.NewTranscription("write window", err)
	}
	prefix := filepath.Join(dir, "window")

	args := []string{"-m", w.ModelPath, "-f", wavPath, "-oj", "-of", prefix, "-np"}
	if opts.Language != "" {
		args = append(args, "-l", opts.Language)
	}
	if opts.Translate {
		args = append(args, "-tr")
	}
	if w.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.Threads))
	}

	cmd := exec.CommandContext(ctx, w.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.NewTranscription(w.Command+" failed", fmt.Errorf("%w: %s", err, lastLine(stderr.String())))
	}

	data, err := os.ReadFile(prefix + ".json")
	if err != nil {
		return nil, errors.NewTranscription("read whisper output", err)
	}
	return parseWhisperJSON(data)
}

func parseWhisperJSON(data []byte) ([]Span, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewTranscription("parse whisper output", err)
	}

	spans := make([]Span, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		spans = append(spans, Span{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return spans, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
