package capture

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/errors"
)

// MicPath is the temporary microphone track recorded next to path.
func MicPath(path string) string {
	return strings.TrimSuffix(path, ".wav") + ".mic.wav"
}

// PipeWire records the default sink monitor and the default source with
// two pw-record processes and mixes the tracks on stop.
type PipeWire struct {
	opts     Options
	resolver *Resolver
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	path    string
	system  *recorderProcess
	mic     *recorderProcess
	targets []Target
}

// NewPipeWire creates a PipeWire backend.
func NewPipeWire(opts Options, resolver *Resolver, logger *zap.SugaredLogger) *PipeWire {
	return &PipeWire{opts: opts.withDefaults(), resolver: resolver, logger: logger}
}

func (p *PipeWire) Name() string { return "pipewire" }

func (p *PipeWire) Start(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.system != nil || p.mic != nil {
		return errors.NewAudio("capture already running", nil)
	}
	if !p.opts.CaptureSystem && !p.opts.CaptureMicrophone {
		return errors.NewAudio("no capture sources enabled", nil)
	}

	targets := p.resolver.ResolveAll(ctx, p.opts.CaptureSystem, p.opts.CaptureMicrophone)
	for _, t := range targets {
		p.logger.Infow("capture target resolved", "kind", t.Kind.String(), "target", t.ID, "method", string(t.Method))
	}

	var system, mic *recorderProcess
	for _, t := range targets {
		switch t.Kind {
		case System:
			proc, err := p.spawn(t, path)
			if err != nil {
				return errors.NewAudio("failed to start system capture", err)
			}
			system = proc
		case Microphone:
			if system == nil {
				// Microphone only: record straight to the output file.
				proc, err := p.spawn(t, path)
				if err != nil {
					return errors.NewAudio("failed to start microphone capture", err)
				}
				mic = proc
				continue
			}
			proc, err := p.spawn(t, MicPath(path))
			if err != nil {
				p.logger.Warnw("microphone capture failed, recording system audio only", "error", err)
				_ = os.Remove(MicPath(path))
				continue
			}
			mic = proc
		}
	}

	p.path = path
	p.system = system
	p.mic = mic
	p.targets = targets
	return nil
}

func (p *PipeWire) spawn(t Target, path string) (*recorderProcess, error) {
	args := []string{
		"--target", t.ID,
		"--rate", strconv.Itoa(p.opts.SampleRate),
		"--channels", strconv.Itoa(p.opts.Channels),
		"--format", "s16",
		path,
	}
	return startRecorder(t.Kind.String(), path, p.opts.PipeWireCommand, args, p.logger)
}

func (p *PipeWire) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.system == nil && p.mic == nil {
		return errors.NewNotRecording()
	}
	system, mic, path := p.system, p.mic, p.path
	p.system, p.mic, p.targets = nil, nil, nil

	var firstErr error
	for _, proc := range []*recorderProcess{system, mic} {
		if proc == nil {
			continue
		}
		if err := proc.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if system != nil {
		if err := mergeMicTrack(path, MicPath(path), p.opts.MicBoost, p.logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *PipeWire) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.system != nil || p.mic != nil
}

// Targets returns the targets of the running capture.
func (p *PipeWire) Targets() []Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Target(nil), p.targets...)
}

// Level reports the RMS of the most recent 100 ms of the microphone track,
// or the system track when there is no microphone.
func (p *PipeWire) Level() float32 {
	p.mu.Lock()
	path := p.path
	if p.system != nil && p.mic != nil {
		path = MicPath(p.path)
	} else if p.system == nil && p.mic == nil {
		path = ""
	}
	window := p.opts.SampleRate / 10 * p.opts.Channels
	p.mu.Unlock()

	if path == "" {
		return 0
	}
	lvl, err := audio.TailLevel(path, window)
	if err != nil {
		return 0
	}
	return lvl
}

// mergeMicTrack mixes micPath into path when the microphone track holds
// samples, then removes it. A missing or empty microphone track leaves the
// system recording untouched.
func mergeMicTrack(path, micPath string, boost float32, logger *zap.SugaredLogger) error {
	micFrames, err := audio.DeclaredFrames(micPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnw("unreadable microphone track, keeping system audio only", "path", micPath, "error", err)
			_ = os.Remove(micPath)
		}
		return nil
	}
	if micFrames == 0 {
		logger.Infow("microphone track is empty, keeping system audio only", "path", micPath)
		return os.Remove(micPath)
	}

	sysFrames, err := audio.DeclaredFrames(path)
	if err != nil || sysFrames == 0 {
		logger.Infow("system track is empty, keeping microphone audio only", "path", path)
		return os.Rename(micPath, path)
	}

	if err := audio.MixMicrophoneTrack(path, micPath, boost); err != nil {
		return errors.NewAudio("failed to mix microphone track", err)
	}
	logger.Debugw("mixed microphone track", "system_frames", sysFrames, "mic_frames", micFrames)
	return os.Remove(micPath)
}
