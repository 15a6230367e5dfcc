package ogg

import (
	"encoding/binary"
)

// Vendor is written into the OpusTags packet.
const Vendor = "minutes"

// PreSkip is the decoder delay advertised in OpusHead, in 48 kHz samples.
const PreSkip = 312

// IDHeader builds the OpusHead identification packet.
func IDHeader(channels int, sampleRate int) []byte {
	h := make([]byte, 19)
	copy(h[0:8], "OpusHead")
	h[8] = 1 // version
	h[9] = byte(channels)
	binary.LittleEndian.PutUint16(h[10:12], PreSkip)
	binary.LittleEndian.PutUint32(h[12:16], uint32(sampleRate))
	binary.LittleEndian.PutUint16(h[16:18], 0) // output gain
	h[18] = 0                                  // channel mapping family
	return h
}

// CommentHeader builds the OpusTags packet with an empty comment list.
func CommentHeader() []byte {
	h := make([]byte, 0, 8+4+len(Vendor)+4)
	h = append(h, "OpusTags"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(len(Vendor)))
	h = append(h, Vendor...)
	h = binary.LittleEndian.AppendUint32(h, 0)
	return h
}

// FrameEncoder compresses one frame of interleaved 16-bit PCM into out and
// returns the packet length.
type FrameEncoder interface {
	Encode(pcm []int16, out []byte) (int, error)
}

// FrameEncoderFactory creates a FrameEncoder for a stream format.
type FrameEncoderFactory func(sampleRate, channels, bitrate int) (FrameEncoder, error)
