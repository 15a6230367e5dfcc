// Package capture records meeting audio to WAV files through external
// recorder tools: pw-record for system and microphone audio, or arecord
// for microphone-only capture.
package capture

import (
	"context"
	"os/exec"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/errors"
)

// Backend records audio to a WAV file.
type Backend interface {
	// Start begins recording to path. It returns once the recorders are running.
	Start(ctx context.Context, path string) error
	// Stop ends the recording and leaves a finished WAV file at path.
	Stop() error
	IsRecording() bool
	Name() string
}

// Leveler is implemented by backends that can report the current input level.
type Leveler interface {
	Level() float32
}

// Options configures a backend.
type Options struct {
	Backend           string
	PipeWireCommand   string
	ArecordCommand    string
	SampleRate        int
	Channels          int
	CaptureSystem     bool
	CaptureMicrophone bool
	MicBoost          float32
}

// OptionsFromConfig builds Options from the audio section of the config.
func OptionsFromConfig(cfg config.AudioConfig) Options {
	return Options{
		Backend:           cfg.Backend,
		SampleRate:        cfg.SampleRate,
		Channels:          cfg.Channels,
		CaptureSystem:     config.Enabled(cfg.CaptureSystem, true),
		CaptureMicrophone: config.Enabled(cfg.CaptureMicrophone, true),
		MicBoost:          float32(cfg.MicBoost),
	}
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = config.BackendAuto
	}
	if o.PipeWireCommand == "" {
		o.PipeWireCommand = "pw-record"
	}
	if o.ArecordCommand == "" {
		o.ArecordCommand = "arecord"
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	return o
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// New selects a backend. Auto mode prefers PipeWire when pw-record is on
// PATH and otherwise falls back to microphone-only arecord capture.
func New(opts Options, resolver *Resolver, logger *zap.SugaredLogger) (Backend, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if resolver == nil {
		resolver = NewResolver(nil, logger)
	}

	hasPipeWire := available(opts.PipeWireCommand)

	switch opts.Backend {
	case config.BackendPipeWire:
		if !hasPipeWire {
			return nil, errors.NewAudio(opts.PipeWireCommand+" not found (install pipewire-tools)", nil)
		}
		return NewPipeWire(opts, resolver, logger), nil
	case config.BackendFallback:
		if !available(opts.ArecordCommand) {
			return nil, errors.NewAudio(opts.ArecordCommand+" not found (install alsa-utils)", nil)
		}
		return NewFallback(opts, logger), nil
	default:
		if hasPipeWire {
			return NewPipeWire(opts, resolver, logger), nil
		}
		if available(opts.ArecordCommand) {
			logger.Infow("pw-record not available, using microphone-only capture", "recorder", opts.ArecordCommand)
			return NewFallback(opts, logger), nil
		}
		return nil, errors.NewAudio("no capture backend available (install pipewire-tools or alsa-utils)", nil)
	}
}

func available(command string) bool {
	_, err := lookPath(command)
	return err == nil
}
