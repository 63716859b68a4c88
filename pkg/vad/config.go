package vad

import (
	"errors"
	"fmt"
	"time"
)

// Default tuning. The threshold suits the byte-scaled spectrum produced by
// SpectrumMeter.
const (
	DefaultSilenceThreshold     = 0.015
	DefaultSilenceDuration      = 2 * time.Second
	DefaultDetectionDelay       = 500 * time.Millisecond
	DefaultMaxRecordingDuration = 30 * time.Second
	DefaultMinSpeechDuration    = 500 * time.Millisecond
)

// Config tunes a Session. It is copied into the Session at construction and
// never mutated afterwards.
type Config struct {
	// SilenceThreshold is the loudness above which sound counts as present.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDuration is the continuous silence that ends a recording.
	SilenceDuration time.Duration `yaml:"silence_duration"`

	// DetectionDelay is the continuous sound required before a recording is
	// confirmed.
	DetectionDelay time.Duration `yaml:"detection_delay"`

	// MaxRecordingDuration caps one utterance, measured from confirmed start.
	MaxRecordingDuration time.Duration `yaml:"max_recording_duration"`

	// MinSpeechDuration is the shortest utterance submitted for processing.
	// Shorter ones are discarded.
	MinSpeechDuration time.Duration `yaml:"min_speech_duration"`

	// RequireExplicitListeningState gates recording behind the Detecting
	// debounce. When false, sound in Listening confirms a recording at once.
	RequireExplicitListeningState bool `yaml:"require_explicit_listening_state"`
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:              DefaultSilenceThreshold,
		SilenceDuration:               DefaultSilenceDuration,
		DetectionDelay:                DefaultDetectionDelay,
		MaxRecordingDuration:          DefaultMaxRecordingDuration,
		MinSpeechDuration:             DefaultMinSpeechDuration,
		RequireExplicitListeningState: true,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	if c.SilenceThreshold < 0 || c.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad: silence_threshold %v must be in [0, 1)", c.SilenceThreshold))
	}
	if c.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: silence_duration must be positive, got %v", c.SilenceDuration))
	}
	if c.DetectionDelay < 0 {
		errs = append(errs, fmt.Errorf("vad: detection_delay must not be negative, got %v", c.DetectionDelay))
	}
	if c.MaxRecordingDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: max_recording_duration must be positive, got %v", c.MaxRecordingDuration))
	}
	if c.MinSpeechDuration < 0 {
		errs = append(errs, fmt.Errorf("vad: min_speech_duration must not be negative, got %v", c.MinSpeechDuration))
	}
	if c.MaxRecordingDuration > 0 && c.MinSpeechDuration >= c.MaxRecordingDuration {
		errs = append(errs, fmt.Errorf("vad: min_speech_duration %v must be shorter than max_recording_duration %v",
			c.MinSpeechDuration, c.MaxRecordingDuration))
	}
	return errors.Join(errs...)
}
