package capture

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/errors"
)

// Fallback records the default ALSA capture device with arecord.
// It has no access to system audio.
type Fallback struct {
	opts   Options
	logger *zap.SugaredLogger

	mu   sync.Mutex
	path string
	proc *recorderProcess
}

// NewFallback creates an arecord backend.
func NewFallback(opts Options, logger *zap.SugaredLogger) *Fallback {
	return &Fallback{opts: opts.withDefaults(), logger: logger}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Start(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.proc != nil {
		return errors.NewAudio("capture already running", nil)
	}

	args := []string{
		"-q",
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.opts.SampleRate),
		"-c", strconv.Itoa(f.opts.Channels),
		"-t", "wav",
		path,
	}
	proc, err := startRecorder("microphone", path, f.opts.ArecordCommand, args, f.logger)
	if err != nil {
		return errors.NewAudio("failed to start microphone capture", err)
	}
	f.logger.Infow("recording microphone via arecord", "path", path)

	f.proc = proc
	f.path = path
	return nil
}

func (f *Fallback) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.proc == nil {
		return errors.NewNotRecording()
	}
	proc := f.proc
	f.proc = nil
	return proc.Stop()
}

func (f *Fallback) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proc != nil
}

// Level reports the RMS of the most recent 100 ms of the recording.
func (f *Fallback) Level() float32 {
	f.mu.Lock()
	path := f.path
	running := f.proc != nil
	window := f.opts.SampleRate / 10 * f.opts.Channels
	f.mu.Unlock()

	if !running {
		return 0
	}
	lvl, err := audio.TailLevel(path, window)
	if err != nil {
		return 0
	}
	return lvl
}
