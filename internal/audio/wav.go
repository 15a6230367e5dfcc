package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/hpungsan/minutes/internal/errors"
)

// wavFormatFloat is the WAVE_FORMAT_IEEE_FLOAT format tag.
const wavFormatFloat = 3

// PCM is a decoded WAV file with normalized interleaved samples.
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// PCM16 is a decoded WAV file converted to 16-bit integers.
type PCM16 struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// decoded is the raw integer view of a WAV file.
type decoded struct {
	data       []int
	sampleRate int
	channels   int
	bitDepth   int
	float      bool
}

func decodeFile(path string) (*decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.NewCodec(fmt.Sprintf("not a valid WAV file: %s", path))
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &decoded{
		data:       buf.Data,
		sampleRate: int(d.SampleRate),
		channels:   int(d.NumChans),
		bitDepth:   int(d.BitDepth),
		float:      d.WavAudioFormat == wavFormatFloat,
	}, nil
}

// ReadWAV reads a 16-bit or 32-bit integer, or 32-bit float WAV file as
// normalized samples.
func ReadWAV(path string) (*PCM, error) {
	d, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(d.data))
	switch {
	case d.float && d.bitDepth == 32:
		for i, v := range d.data {
			out[i] = math.Float32frombits(uint32(int32(v)))
		}
	case !d.float && d.bitDepth == 16:
		for i, v := range d.data {
			out[i] = float32(v) / 32768
		}
	case !d.float && d.bitDepth == 32:
		for i, v := range d.data {
			out[i] = float32(float64(v) / 2147483648)
		}
	default:
		return nil, unsupportedFormat(path, d)
	}

	return &PCM{Samples: out, SampleRate: d.sampleRate, Channels: d.channels}, nil
}

// ReadWAV16 reads a WAV file as 16-bit samples. 16-bit input passes through,
// 32-bit integer input is shifted right by 16 and 32-bit float input is
// clamped and scaled by 32767.
func ReadWAV16(path string) (*PCM16, error) {
	d, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	out := make([]int16, len(d.data))
	switch {
	case d.float && d.bitDepth == 32:
		for i, v := range d.data {
			out[i] = ToInt16(math.Float32frombits(uint32(int32(v))))
		}
	case !d.float && d.bitDepth == 16:
		for i, v := range d.data {
			out[i] = int16(v)
		}
	case !d.float && d.bitDepth == 32:
		for i, v := range d.data {
			out[i] = int16(int32(v) >> 16)
		}
	default:
		return nil, unsupportedFormat(path, d)
	}

	return &PCM16{Samples: out, SampleRate: d.sampleRate, Channels: d.channels}, nil
}

func unsupportedFormat(path string, d *decoded) error {
	kind := "int"
	if d.float {
		kind = "float"
	}
	return errors.NewCodec(fmt.Sprintf("unsupported WAV format in %s: %s %d-bit", path, kind, d.bitDepth))
}

// WriteWAV16 writes interleaved 16-bit samples as a PCM WAV file.
func WriteWAV16(path string, samples []int16, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i := range samples {
		buf.Data[i] = int(samples[i])
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// WriteWAVFloat writes normalized samples as a 16-bit PCM WAV file.
func WriteWAVFloat(path string, samples []float32, sampleRate, channels int) error {
	return WriteWAV16(path, SamplesToInt16(samples), sampleRate, channels)
}

// DeclaredFrames returns the sample frame count declared by the WAV data
// chunk header, without decoding the samples.
func DeclaredFrames(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, errors.NewCodec(fmt.Sprintf("not a valid WAV file: %s", path))
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("locate data chunk in %s: %w", path, err)
	}

	blockAlign := int64(d.NumChans) * int64(d.BitDepth) / 8
	if blockAlign <= 0 {
		return 0, errors.NewCodec(fmt.Sprintf("invalid WAV block alignment in %s", path))
	}
	return d.PCMLen() / blockAlign, nil
}

// MixMicrophoneTrack mixes the microphone recording at micPath into the
// system recording at systemPath, in place. Both tracks are folded to mono
// and the microphone is resampled to the system rate first. The result is
// a mono 16-bit file.
func MixMicrophoneTrack(systemPath, micPath string, micBoost float32) error {
	system, err := ReadWAV(systemPath)
	if err != nil {
		return err
	}
	mic, err := ReadWAV(micPath)
	if err != nil {
		return err
	}

	sys := DownmixToMono(system.Samples, system.Channels)
	m := DownmixToMono(mic.Samples, mic.Channels)
	if mic.SampleRate != system.SampleRate {
		m = Resample(m, mic.SampleRate, system.SampleRate)
	}

	mixed := Mix(sys, m, micBoost)

	tmp := systemPath + ".mix"
	if err := WriteWAVFloat(tmp, mixed, system.SampleRate, 1); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, systemPath)
}

// TailLevel reports the RMS level of the last window 16-bit samples of a
// WAV file that may still be growing. It assumes a canonical 44-byte header.
func TailLevel(path string, window int) (float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	const header = 44
	size := info.Size()
	if size <= header || window <= 0 {
		return 0, nil
	}

	off := max(int64(header), size-int64(window)*2)
	off -= (off - header) % 2
	buf := make([]byte, size-off)
	n, err := f.ReadAt(buf, off)
	if n < 2 {
		return 0, err
	}
	buf = buf[:n-n%2]

	var sum float64
	for i := 0; i < len(buf); i += 2 {
		s := float64(int16(uint16(buf[i])|uint16(buf[i+1])<<8)) / 32768
		sum += s * s
	}
	return float32(math.Sqrt(sum / float64(len(buf)/2))), nil
}
