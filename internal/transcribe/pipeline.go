// Package transcribe turns recorded audio into transcript segments.
package transcribe

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

const (
	// SampleRate is the rate engines receive audio at.
	SampleRate = 16000
	// WindowSecs is the length of each window handed to the engine.
	WindowSecs = 30
	// MergeGap is the largest gap in seconds bridged when merging spans.
	MergeGap = 0.5
)

// Span is a piece of recognized text. Times are in seconds.
type Span struct {
	Start   float64
	End     float64
	Text    string
	Speaker *string
}

// Options are passed through to the engine.
type Options struct {
	// Language is a language hint; empty means auto-detect.
	Language  string
	Translate bool
}

// Engine recognizes speech in 16 kHz mono samples. Span times are relative
// to the start of samples.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) ([]Span, error)
}

// Pipeline splits audio into windows, runs the engine on each and merges
// the results.
type Pipeline struct {
	engine Engine
	opts   Options
	window int
	logger *zap.SugaredLogger
}

// NewPipeline creates a Pipeline with 30 second windows.
func NewPipeline(engine Engine, opts Options, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{engine: engine, opts: opts, window: WindowSecs * SampleRate, logger: logger}
}

// Transcribe loads audioPath and returns merged segments. Progress values
// in [0, 1] are sent on progress, which may be nil.
func (p *Pipeline) Transcribe(ctx context.Context, audioPath string, progress chan<- float32) ([]recording.Segment, error) {
	samples, err := LoadAudio(audioPath)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("transcribing", "path", audioPath, "secs", len(samples)/SampleRate)

	spans, err := p.Run(ctx, samples, progress)
	if err != nil {
		return nil, err
	}

	segments := make([]recording.Segment, 0, len(spans))
	for _, s := range spans {
		segments = append(segments, recording.Segment{
			StartTime: s.Start,
			EndTime:   s.End,
			Text:      s.Text,
			Speaker:   s.Speaker,
		})
	}
	p.logger.Infow("transcription complete", "path", audioPath, "segments", len(segments))
	return segments, nil
}

// Run transcribes samples window by window. Progress is reported before
// each window as (i+0.5)/n and as 1.0 at the end.
func (p *Pipeline) Run(ctx context.Context, samples []float32, progress chan<- float32) ([]Span, error) {
	total := (len(samples) + p.window - 1) / p.window

	var all []Span
	offset := 0.0
	for i := 0; i < total; i++ {
		chunk := samples[i*p.window : min((i+1)*p.window, len(samples))]
		if err := sendProgress(ctx, progress, (float32(i)+0.5)/float32(total)); err != nil {
			return nil, err
		}
		p.logger.Debugw("transcribing window", "window", i+1, "of", total)

		spans, err := p.engine.Transcribe(ctx, chunk, p.opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, errors.ErrTranscription) {
				return nil, err
			}
			return nil, errors.NewTranscription("engine failed", err)
		}
		for _, s := range spans {
			s.Start += offset
			s.End += offset
			all = append(all, s)
		}
		offset += float64(len(chunk)) / SampleRate
	}

	if err := sendProgress(ctx, progress, 1.0); err != nil {
		return nil, err
	}
	return Merge(all), nil
}

func sendProgress(ctx context.Context, ch chan<- float32, v float32) error {
	if ch == nil {
		return nil
	}
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sameSpeaker decides whether two spans may be merged. Two unset speakers
// count as the same speaker, which treats undiarized transcripts as a
// single voice.
func sameSpeaker(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Merge joins consecutive spans from the same speaker separated by less
// than MergeGap seconds.
func Merge(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}

	merged := make([]Span, 0, len(spans))
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.Start-cur.End < MergeGap && sameSpeaker(cur.Speaker, s.Speaker) {
			cur.End = s.End
			cur.Text += " " + s.Text
			continue
		}
		merged = append(merged, cur)
		cur = s
	}
	return append(merged, cur)
}

// LoadAudio reads a WAV file as 16 kHz mono samples.
func LoadAudio(path string) ([]float32, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" {
		return nil, errors.NewTranscription("unsupported audio format "+ext+" (only WAV can be transcribed)", nil)
	}

	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return nil, errors.NewTranscription("failed to load audio", err)
	}
	samples := audio.DownmixToMono(pcm.Samples, pcm.Channels)
	if pcm.SampleRate != SampleRate {
		samples = audio.Resample(samples, pcm.SampleRate, SampleRate)
	}
	return samples, nil
}
