package vad

import "time"

// Status is the human-readable label shown to the user.
type Status string

const (
	StatusReady           Status = "Ready"
	StatusListening       Status = "Listening for speech..."
	StatusRecording       Status = "Recording..."
	StatusTooShort        Status = "Speech too short"
	StatusNoAudio         Status = "No audio detected"
	StatusProcessing      Status = "Processing audio..."
	StatusNoSpeech        Status = "No speech detected"
	StatusProcessingError Status = "Error processing audio"
	StatusMicrophoneError Status = "Error: Could not access microphone"
	StatusRecordingError  Status = "Error: Could not start recording"
)

// GracePeriods controls how long transient labels stay visible before the
// label reverts to the one matching the current state.
type GracePeriods struct {
	TooShort        time.Duration `yaml:"too_short"`
	NoSpeech        time.Duration `yaml:"no_speech"`
	ProcessingError time.Duration `yaml:"processing_error"`
}

// DefaultGracePeriods returns the default label timings.
func DefaultGracePeriods() GracePeriods {
	return GracePeriods{
		TooShort:        1500 * time.Millisecond,
		NoSpeech:        2000 * time.Millisecond,
		ProcessingError: 3000 * time.Millisecond,
	}
}

func (g GracePeriods) forStatus(s Status) time.Duration {
	switch s {
	case StatusTooShort:
		return g.TooShort
	case StatusNoSpeech, StatusNoAudio:
		return g.NoSpeech
	case StatusProcessingError, StatusRecordingError:
		return g.ProcessingError
	default:
		return 0
	}
}

// statusForState is the resting label of a state.
func statusForState(s State) Status {
	switch s {
	case StateListening, StateDetecting:
		return StatusListening
	case StateRecording:
		return StatusRecording
	default:
		return StatusReady
	}
}
