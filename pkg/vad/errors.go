package vad

import "errors"

// ErrAlreadyRecording is returned by Sink.Start when the sink is already
// capturing.
var ErrAlreadyRecording = errors.New("vad: capture sink already recording")

// ErrAlreadyListening is returned by Session.Enable when the Session is not
// idle.
var ErrAlreadyListening = errors.New("vad: session already listening")

// ErrSessionClosed is returned by Session.Enable when Disable was called while
// the microphone was still opening.
var ErrSessionClosed = errors.New("vad: session disabled while opening microphone")

// DeviceError reports that the microphone could not be opened or failed while
// streaming.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return "vad: audio device: " + e.Err.Error()
	}
	return "vad: audio device " + e.Device + ": " + e.Err.Error()
}

func (e *DeviceError) Unwrap() error { return e.Err }
