// Package mock provides test doubles for the vad.Microphone, vad.Stream,
// vad.Sink and vad.Meter interfaces.
//
// Microphone captures the FrameHandler passed to Open so tests can deliver
// frames synchronously:
//
//	mic := &mock.Microphone{}
//	sess, _ := vad.NewSession(cfg, mic, &mock.Sink{}, adapter, vad.WithMeter(mock.NewMeter))
//	_ = sess.Enable(ctx)
//	mic.Deliver(mock.Frame(0.5))
package mock

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Microphone = (*Microphone)(nil)
	_ vad.Stream     = (*Stream)(nil)
	_ vad.Sink       = (*Sink)(nil)
	_ vad.Meter      = Meter{}
)

// Microphone is a mock implementation of vad.Microphone.
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// CloseErr is returned by the Close method of opened streams.
	CloseErr error

	// OpenCalls counts invocations of Open.
	OpenCalls int

	// Streams records every stream returned by Open.
	Streams []*Stream

	handlers []vad.FrameHandler
}

// Open records the handler and returns a new Stream.
func (m *Microphone) Open(_ context.Context, h vad.FrameHandler) (vad.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.handlers = append(m.handlers, h)
	s := &Stream{closeErr: m.CloseErr}
	m.Streams = append(m.Streams, s)
	return s, nil
}

// Deliver passes f to the handler of the most recently opened stream.
func (m *Microphone) Deliver(f audio.AudioFrame) {
	m.DeliverTo(-1, f)
}

// DeliverTo passes f to the handler given to the i-th Open call, or the
// latest one when i is negative. Closed streams still receive the frame so
// tests can check that stale deliveries are ignored.
func (m *Microphone) DeliverTo(i int, f audio.AudioFrame) {
	if h, ok := m.handler(i); ok && h.OnFrame != nil {
		h.OnFrame(f)
	}
}

// Fail passes err to the error handler of the most recently opened stream.
func (m *Microphone) Fail(err error) {
	if h, ok := m.handler(-1); ok && h.OnError != nil {
		h.OnError(err)
	}
}

func (m *Microphone) handler(i int) (vad.FrameHandler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handlers) == 0 {
		return vad.FrameHandler{}, false
	}
	if i < 0 {
		i = len(m.handlers) - 1
	}
	if i >= len(m.handlers) {
		return vad.FrameHandler{}, false
	}
	return m.handlers[i], true
}

// OpenStreams returns how many returned streams have not been closed.
func (m *Microphone) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Stream is a mock implementation of vad.Stream.
type Stream struct {
	mu         sync.Mutex
	closeErr   error
	closeCalls int
}

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return s.closeErr
}

// Closed reports whether Close was called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls > 0
}

// CloseCalls returns the number of Close calls.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Sink is a mock implementation of vad.Sink. Stop returns the concatenated
// Data of every frame written while active, or an empty clip when none were.
type Sink struct {
	mu sync.Mutex

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// DropFrames makes Write ignore frames, simulating a device that yields
	// no chunks.
	DropFrames bool

	active bool
	buf    []byte

	// StartCalls, StartErrors and StopCalls count invocations.
	StartCalls  int
	StartErrors int
	StopCalls   int
}

// Start implements vad.Sink.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.active {
		s.StartErrors++
		return vad.ErrAlreadyRecording
	}
	s.active = true
	s.buf = nil
	return nil
}

// Write implements vad.Sink.
func (s *Sink) Write(f audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && !s.DropFrames {
		s.buf = append(s.buf, f.Data...)
	}
}

// Stop implements vad.Sink.
func (s *Sink) Stop() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	wasActive := s.active
	s.active = false
	clip := s.buf
	s.buf = nil
	if s.StopErr != nil {
		return nil, s.StopErr
	}
	if !wasActive {
		return nil, nil
	}
	return clip, nil
}

// ContentType implements vad.Sink.
func (s *Sink) ContentType() string { return "audio/test" }

// Active reports whether the sink is buffering.
func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Frame returns a frame whose loudness, as read by Meter, is level.
func Frame(level float64) audio.AudioFrame {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(level))
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

// Meter decodes the loudness stored by Frame.
type Meter struct{}

// NewMeter returns a Meter. Its signature matches vad.WithMeter.
func NewMeter() vad.Meter { return Meter{} }

// Measure implements vad.Meter.
func (Meter) Measure(f audio.AudioFrame) vad.Loudness {
	if len(f.Data) < 8 {
		return 0
	}
	return vad.Loudness(math.Float64frombits(binary.LittleEndian.Uint64(f.Data)))
}
