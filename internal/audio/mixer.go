// Package audio holds the sample-level DSP used to combine capture tracks
// and the WAV reading and writing around it. Samples are float32 in [-1, 1].
package audio

import (
	"math"
)

// DefaultMicBoost is the microphone gain applied when mixing.
const DefaultMicBoost = 1.2

// Mix sums system and microphone tracks sample by sample.
// The output is as long as the longer input; the shorter one is padded with
// silence. Microphone samples are scaled by micBoost and every sum is soft clipped.
func Mix(system, mic []float32, micBoost float32) []float32 {
	n := max(len(system), len(mic))
	out := make([]float32, n)
	for i := range out {
		var s, m float32
		if i < len(system) {
			s = system[i]
		}
		if i < len(mic) {
			m = mic[i] * micBoost
		}
		out[i] = SoftClip(s + m)
	}
	return out
}

// SoftClip leaves |x| <= 0.5 untouched and saturates larger values smoothly
// toward ±1 with a tanh knee.
func SoftClip(x float32) float32 {
	a := math.Abs(float64(x))
	if a <= 0.5 {
		return x
	}
	y := 0.5 + 0.5*math.Tanh(2*(a-0.5))
	if x < 0 {
		return float32(-y)
	}
	return float32(y)
}

// StereoToMono averages interleaved sample pairs.
// A trailing unpaired sample passes through unchanged.
func StereoToMono(stereo []float32) []float32 {
	out := make([]float32, 0, (len(stereo)+1)/2)
	for i := 0; i < len(stereo); i += 2 {
		if i+1 < len(stereo) {
			out = append(out, (stereo[i]+stereo[i+1])/2)
		} else {
			out = append(out, stereo[i])
		}
	}
	return out
}

// DownmixToMono averages each interleaved frame of the given channel count.
func DownmixToMono(samples []float32, channels int) []float32 {
	switch {
	case channels <= 1:
		return samples
	case channels == 2:
		return StereoToMono(samples)
	}
	out := make([]float32, 0, len(samples)/channels+1)
	for i := 0; i < len(samples); i += channels {
		end := min(i+channels, len(samples))
		var sum float32
		for _, v := range samples[i:end] {
			sum += v
		}
		out = append(out, sum/float32(end-i))
	}
	return out
}

// Resample converts between sample rates with linear interpolation.
// Equal rates return the input unchanged. The output holds
// ceil(len(samples) / (from/to)) samples; good enough for speech.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}

	ratio := float64(from) / float64(to)
	n := int(math.Ceil(float64(len(samples)) / ratio))
	out := make([]float32, n)

	for i := range out {
		pos := float64(i) * ratio
		idx := int(math.Floor(pos))
		frac := float32(pos - float64(idx))

		switch {
		case idx+1 < len(samples):
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		case idx < len(samples):
			out[i] = samples[idx]
		}
	}
	return out
}

// ToInt16 clamps to [-1, 1], scales by 32767 and truncates.
func ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767)
}

// FromInt16 normalizes a 16-bit sample.
func FromInt16(s int16) float32 {
	return float32(s) / 32768
}

// SamplesToInt16 converts a whole track with ToInt16.
func SamplesToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = ToInt16(s)
	}
	return out
}
