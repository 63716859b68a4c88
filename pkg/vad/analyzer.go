package vad

import "github.com/MrWong99/voxloop/pkg/audio"

// Loudness is a normalized level in [0, 1].
type Loudness float64

// Analyze returns the mean magnitude of a byte-scaled spectrum, normalized to
// [0, 1]. An empty spectrum is silent.
func Analyze(spectrum []uint8) Loudness {
	if len(spectrum) == 0 {
		return 0
	}
	var sum int
	for _, b := range spectrum {
		sum += int(b)
	}
	return Loudness(float64(sum) / float64(len(spectrum)) / 255)
}

// IsSoundPresent reports whether l is above cfg.SilenceThreshold.
func IsSoundPresent(l Loudness, cfg Config) bool {
	return float64(l) > cfg.SilenceThreshold
}

// Meter reduces one frame to a Loudness sample. Meters may keep state across
// frames and are used by one Session at a time.
type Meter interface {
	Measure(frame audio.AudioFrame) Loudness
}

// SpectrumMeter measures loudness as the mean of the frame's byte frequency
// spectrum.
type SpectrumMeter struct {
	analyser *audio.Analyser
}

// NewSpectrumMeter returns a SpectrumMeter with browser-default analysis
// parameters.
func NewSpectrumMeter() *SpectrumMeter {
	return &SpectrumMeter{analyser: audio.NewAnalyser()}
}

// Measure implements Meter.
func (m *SpectrumMeter) Measure(frame audio.AudioFrame) Loudness {
	m.analyser.Write(audio.Samples(frame.Data))
	return Analyze(m.analyser.ByteFrequencyData())
}
