// Package audio converts between the raw sample formats used on the wire and
// the float samples handed to playback.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// FullScale maps a float sample of 1.0 onto signed 16-bit PCM.
const FullScale = 32767

// Accepted sample rate range for received audio.
const (
	MinRate = 8000
	MaxRate = 48000
)

var (
	ErrOddLength = errors.New("pcm16 payload has odd length")
	ErrRate      = errors.New("sample rate out of range")
)

// ValidRate reports whether rate lies within [MinRate, MaxRate].
func ValidRate(rate int) bool {
	return rate >= MinRate && rate <= MaxRate
}

// DecodePCM16 reads little-endian signed 16-bit mono samples.
func DecodePCM16(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / FullScale
	}
	return out, nil
}

// EncodePCM16 clamps samples to [-1, 1] and writes them as little-endian
// signed 16-bit mono.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * FullScale))
}

// Duration of n samples at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Resample converts samples from one rate to another by linear interpolation.
// The returned slice covers the same duration as the input.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
