// Package audio owns the microphone. It captures a continuous stream of
// fixed-duration mono PCM frames and fans them out to any number of
// subscribers. Frames are immutable once produced; subscribers get read-only
// ownership and must not modify the sample slice.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is one fixed-duration slice of mono PCM16 samples.
type Frame struct {
	PCM        []int16
	SampleRate int
	Time       time.Time
}

// Duration returns the frame length in wall time.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// RMS computes the root-mean-square energy of PCM16 samples, normalized
// to [0, 1].
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// DecodePCM converts raw Int16LE bytes to an int16 slice.
func DecodePCM(raw []byte) []int16 {
	n := len(raw) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return pcm
}

// downmix averages interleaved stereo Int16LE samples to mono. For mono
// input it is equivalent to DecodePCM.
func downmix(raw []byte, channels int) []int16 {
	if channels <= 1 {
		return DecodePCM(raw)
	}
	frames := len(raw) / (2 * channels)
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var acc int
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			acc += int(int16(binary.LittleEndian.Uint16(raw[off:])))
		}
		out[i] = int16(acc / channels)
	}
	return out
}
