// Package libopus adapts the libopus bindings to ogg.FrameEncoder.
package libopus

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/hpungsan/minutes/internal/ogg"
)

// New creates a VoIP-tuned libopus encoder. It satisfies ogg.FrameEncoderFactory.
func New(sampleRate, channels, bitrate int) (ogg.FrameEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("set opus bitrate %d: %w", bitrate, err)
		}
	}
	return enc, nil
}
