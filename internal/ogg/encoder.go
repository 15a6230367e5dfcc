package ogg

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/errors"
)

// DefaultBitrate suits speech.
const DefaultBitrate = 24000

// maxPacketSize bounds a single encoded Opus packet.
const maxPacketSize = 4000

// Encoder compresses WAV recordings to Ogg Opus.
type Encoder struct {
	bitrate    int
	newEncoder FrameEncoderFactory
	logger     *zap.SugaredLogger
	serial     func() uint32
}

// NewEncoder creates an encoder producing the given bitrate with frames
// compressed by newEncoder.
func NewEncoder(bitrate int, newEncoder FrameEncoderFactory, logger *zap.SugaredLogger) *Encoder {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return &Encoder{
		bitrate:    bitrate,
		newEncoder: newEncoder,
		logger:     logger,
		serial:     timeSerial,
	}
}

// timeSerial derives a stream serial from the wall clock.
func timeSerial() uint32 {
	return uint32(time.Now().UnixNano() & 0xFFFFFFFF)
}

// Encode writes wavPath as an Ogg Opus file at oggPath. On failure any
// partial output is removed.
func (e *Encoder) Encode(wavPath, oggPath string) error {
	pcm, err := audio.ReadWAV16(wavPath)
	if err != nil {
		return err
	}
	if len(pcm.Samples) == 0 {
		return errors.NewCodec("WAV file contains no samples")
	}
	if pcm.Channels != 1 && pcm.Channels != 2 {
		return errors.NewCodec(fmt.Sprintf("unsupported channel count: %d", pcm.Channels))
	}

	fe, err := e.newEncoder(pcm.SampleRate, pcm.Channels, e.bitrate)
	if err != nil {
		return errors.NewCodec(err.Error())
	}

	f, err := os.Create(oggPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", oggPath, err)
	}

	if err := e.writeStream(f, pcm, fe); err != nil {
		f.Close()
		os.Remove(oggPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(oggPath)
		return err
	}

	e.logSizes(wavPath, oggPath)
	return nil
}

func (e *Encoder) writeStream(f *os.File, pcm *audio.PCM16, fe FrameEncoder) error {
	bw := bufio.NewWriter(f)
	pw := NewPageWriter(bw, e.serial())

	if err := pw.WritePage(FlagBOS, 0, IDHeader(pcm.Channels, pcm.SampleRate)); err != nil {
		return err
	}
	if err := pw.WritePage(0, 0, CommentHeader()); err != nil {
		return err
	}

	frameSize := pcm.SampleRate / 50 // 20 ms per channel
	samplesPerFrame := frameSize * pcm.Channels
	frame := make([]int16, samplesPerFrame)
	packet := make([]byte, maxPacketSize)

	// One packet is held back so the final page can carry EOS.
	var (
		pending []byte
		granule uint64
	)
	for off := 0; off < len(pcm.Samples); off += samplesPerFrame {
		end := min(off+samplesPerFrame, len(pcm.Samples))
		n := copy(frame, pcm.Samples[off:end])
		clear(frame[n:])

		size, err := fe.Encode(frame, packet)
		if err != nil {
			return errors.NewCodec(fmt.Sprintf("opus encoding failed: %v", err))
		}
		if size <= 0 {
			continue
		}

		if pending != nil {
			if err := pw.WritePage(0, granule, pending); err != nil {
				return err
			}
		}
		granule += uint64(frameSize)
		pending = append(pending[:0], packet[:size]...)
	}

	if pending != nil {
		if err := pw.WritePage(FlagEOS, granule, pending); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func (e *Encoder) logSizes(wavPath, oggPath string) {
	wavInfo, err1 := os.Stat(wavPath)
	oggInfo, err2 := os.Stat(oggPath)
	if err1 != nil || err2 != nil || oggInfo.Size() == 0 {
		return
	}
	e.logger.Infow("encoded to ogg",
		"wav", humanize.Bytes(uint64(wavInfo.Size())),
		"ogg", humanize.Bytes(uint64(oggInfo.Size())),
		"ratio", fmt.Sprintf("%.1fx", float64(wavInfo.Size())/float64(oggInfo.Size())),
	)
}

// EncodeAndCleanup encodes wavPath next to itself with a .ogg extension and
// deletes the WAV only once a non-empty Ogg file is confirmed.
func (e *Encoder) EncodeAndCleanup(wavPath string) (string, error) {
	oggPath := OggPath(wavPath)

	if err := e.Encode(wavPath, oggPath); err != nil {
		return "", err
	}
	if err := verifyOutput(oggPath); err != nil {
		return "", err
	}

	if err := os.Remove(wavPath); err != nil {
		return "", fmt.Errorf("delete %s: %w", wavPath, err)
	}
	e.logger.Infow("deleted original wav", "path", wavPath)

	return oggPath, nil
}

// verifyOutput requires path to exist and hold data.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ogg file not found after encoding: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ogg file is empty after encoding: %s", path)
	}
	return nil
}

// OggPath replaces a trailing .wav extension with .ogg.
func OggPath(wavPath string) string {
	return strings.TrimSuffix(wavPath, ".wav") + ".ogg"
}
