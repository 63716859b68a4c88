package audio

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Analyser defaults match the browser AnalyserNode so loudness thresholds
// tuned there carry over.
const (
	DefaultFFTSize     = 2048
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultSmoothing   = 0.8
)

// Analyser produces byte-scaled frequency magnitudes from a PCM stream.
//
// It keeps the most recent FFT-size samples, applies a Blackman window,
// smooths magnitudes over time and maps decibels linearly onto 0..255.
// An Analyser is stateful and must not be shared between streams or used
// from more than one goroutine.
type Analyser struct {
	size        int
	minDecibels float64
	maxDecibels float64
	smoothing   float64

	window   []float64
	input    []float64
	smoothed []float64
	scratch  []complex128
}

// NewAnalyser returns an Analyser with the browser defaults.
func NewAnalyser() *Analyser {
	a, _ := NewAnalyserSize(DefaultFFTSize)
	return a
}

// NewAnalyserSize returns an Analyser for the given FFT size, which must be a
// power of two between 32 and 32768.
func NewAnalyserSize(size int) (*Analyser, error) {
	if size < 32 || size > 32768 || size&(size-1) != 0 {
		return nil, fmt.Errorf("audio: fft size %d is not a power of two in [32, 32768]", size)
	}
	a := &Analyser{
		size:        size,
		minDecibels: DefaultMinDecibels,
		maxDecibels: DefaultMaxDecibels,
		smoothing:   DefaultSmoothing,
		window:      make([]float64, size),
		input:       make([]float64, size),
		smoothed:    make([]float64, size/2),
		scratch:     make([]complex128, size),
	}
	for n := range a.window {
		x := 2 * math.Pi * float64(n) / float64(size)
		a.window[n] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return a, nil
}

// BinCount returns the number of frequency bins, half the FFT size.
func (a *Analyser) BinCount() int { return a.size / 2 }

// Write appends samples to the analysis window, discarding the oldest.
func (a *Analyser) Write(samples []int16) {
	if len(samples) >= a.size {
		samples = samples[len(samples)-a.size:]
		for i, s := range samples {
			a.input[i] = float64(s) / 32768
		}
		return
	}
	copy(a.input, a.input[len(samples):])
	off := a.size - len(samples)
	for i, s := range samples {
		a.input[off+i] = float64(s) / 32768
	}
}

// ByteFrequencyData analyses the current window and returns BinCount
// magnitudes scaled to 0..255. Each call advances the smoothing state.
func (a *Analyser) ByteFrequencyData() []uint8 {
	for i, v := range a.input {
		a.scratch[i] = complex(v*a.window[i], 0)
	}
	fft(a.scratch)

	out := make([]uint8, len(a.smoothed))
	scale := 1 / float64(a.size)
	span := a.maxDecibels - a.minDecibels
	for k := range a.smoothed {
		mag := cmplx.Abs(a.scratch[k]) * scale
		s := a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s

		if s <= 0 {
			continue
		}
		db := 20 * math.Log10(s)
		v := 255 * (db - a.minDecibels) / span
		switch {
		case v <= 0:
			out[k] = 0
		case v >= 255:
			out[k] = 255
		default:
			out[k] = uint8(v)
		}
	}
	return out
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform. len(x) must be
// a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		w := cmplx.Exp(complex(0, -2*math.Pi/float64(length)))
		for start := 0; start < n; start += length {
			wn := complex(1, 0)
			half := length / 2
			for k := range half {
				u := x[start+k]
				v := x[start+k+half] * wn
				x[start+k] = u + v
				x[start+k+half] = u - v
				wn *= w
			}
		}
	}
}
