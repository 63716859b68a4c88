package vad

import (
	"context"

	"github.com/MrWong99/voxloop/pkg/audio"
)

// FrameHandler receives frames and terminal errors from an open Stream.
// OnFrame is called from the stream's delivery goroutine in capture order.
// OnError is called at most once when the device fails; no frames follow it.
type FrameHandler struct {
	OnFrame func(audio.AudioFrame)
	OnError func(error)
}

// Microphone opens capture streams.
type Microphone interface {
	// Open starts delivering frames to h. It fails with a *DeviceError when
	// the device is unavailable.
	Open(ctx context.Context, h FrameHandler) (Stream, error)
}

// Stream is an open capture stream.
type Stream interface {
	// Close stops delivery and releases the device. It blocks until no
	// further handler calls will be made, so it must not be called from
	// inside a handler. Calling Close more than once is safe.
	Close() error
}
