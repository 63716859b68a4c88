package vad

import "time"

// State is a Session's position in the recording state machine.
type State int

const (
	// StateIdle means listening is disabled and no device is open.
	StateIdle State = iota
	// StateListening means the microphone is open and waiting for sound.
	StateListening
	// StateDetecting means sound was heard and is being debounced.
	StateDetecting
	// StateRecording means an utterance is being captured.
	StateRecording
	// StateDiscarding is the transient state for dropping a clip.
	StateDiscarding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateDetecting:
		return "detecting"
	case StateRecording:
		return "recording"
	case StateDiscarding:
		return "discarding"
	default:
		return "unknown"
	}
}

// Event names the input that caused a transition.
type Event string

const (
	EventEnableListening       Event = "enableListening"
	EventDisableListening      Event = "disableListening"
	EventSoundPresent          Event = "soundPresent"
	EventSoundAbsent           Event = "soundAbsent"
	EventDetectionTimerFired   Event = "detectionTimerFired"
	EventSilenceTimerFired     Event = "silenceTimerFired"
	EventMaxDurationTimerFired Event = "maxDurationTimerFired"
	EventImmediate             Event = "immediate"
	EventDeviceError           Event = "deviceError"
)

// StateChange describes one transition.
type StateChange struct {
	From  State
	To    State
	Event Event
	At    time.Time
}

var validTransitions = map[State][]State{
	StateIdle:       {StateListening},
	StateListening:  {StateDetecting, StateRecording, StateIdle},
	StateDetecting:  {StateListening, StateRecording, StateIdle},
	StateRecording:  {StateListening, StateDiscarding, StateIdle},
	StateDiscarding: {StateListening, StateIdle},
}

// ValidTransition reports whether the state machine may move from one state to
// another.
func ValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is logged when the Session attempts a transition
// outside the table. It indicates a bug.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "vad: invalid state transition from " + e.From.String() + " to " + e.To.String()
}
