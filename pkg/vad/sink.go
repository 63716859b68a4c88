package vad

import (
	"fmt"
	"sync"

	"github.com/MrWong99/voxloop/pkg/audio"
)

// Sink buffers frames between Start and Stop and produces the finished clip.
// The Session starts and stops it; frames are written unconditionally and
// ignored while the sink is inactive.
type Sink interface {
	// Start begins buffering. Returns ErrAlreadyRecording if already active.
	Start() error

	// Write offers one frame. Inactive sinks drop it.
	Write(frame audio.AudioFrame)

	// Stop ends buffering and returns the encoded clip, then clears the
	// buffer. A sink that buffered nothing returns an empty clip. Calling Stop
	// on an inactive sink returns an empty clip and no error.
	Stop() ([]byte, error)

	// ContentType is the MIME type of clips returned by Stop.
	ContentType() string
}

// BufferSink accumulates PCM in memory and encodes it as WAV on Stop.
// It is safe for concurrent use.
type BufferSink struct {
	mu     sync.Mutex
	active bool
	format audio.Format
	conv   *audio.FormatConverter
	pcm    []byte
	chunks int
}

// Compile-time assertion that BufferSink implements Sink.
var _ Sink = (*BufferSink)(nil)

// NewBufferSink returns a sink producing clips in format f. Frames in other
// formats are converted.
func NewBufferSink(f audio.Format) *BufferSink {
	return &BufferSink{format: f, conv: &audio.FormatConverter{Target: f}}
}

// Start implements Sink.
func (b *BufferSink) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return ErrAlreadyRecording
	}
	b.active = true
	b.pcm = b.pcm[:0]
	b.chunks = 0
	return nil
}

// Write implements Sink.
func (b *BufferSink) Write(frame audio.AudioFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	f := b.conv.Convert(frame)
	if len(f.Data) == 0 {
		return
	}
	b.pcm = append(b.pcm, f.Data...)
	b.chunks++
}

// Stop implements Sink.
func (b *BufferSink) Stop() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil, nil
	}
	b.active = false
	defer func() {
		b.pcm = b.pcm[:0]
		b.chunks = 0
	}()
	if b.chunks == 0 {
		return nil, nil
	}
	clip, err := audio.EncodeWAV(b.pcm, b.format)
	if err != nil {
		return nil, fmt.Errorf("vad: finalize clip: %w", err)
	}
	return clip, nil
}

// ContentType implements Sink.
func (b *BufferSink) ContentType() string { return audio.WAVContentType }

// Active reports whether the sink is buffering.
func (b *BufferSink) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}
