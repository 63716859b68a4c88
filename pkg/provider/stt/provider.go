// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (an OpenAI-compatible
// /audio/transcriptions endpoint such as faster-whisper-server, or a local
// whisper.cpp server) and turns one encoded audio clip into text.
//
// Implementations must be safe for concurrent use. Several clips may be in
// flight at once when utterances are captured faster than they are answered.
package stt

import (
	"context"
	"strings"
)

// DefaultFilename is sent as the upload filename when Request.Filename is empty.
const DefaultFilename = "recording.wav"

// Request is one clip to transcribe.
type Request struct {
	// Audio is the encoded clip (usually a WAV file).
	Audio []byte

	// Filename is the name reported for the upload. Several servers infer
	// the container format from its extension.
	Filename string

	// ContentType is the MIME type of Audio, e.g. "audio/wav".
	ContentType string

	// Language is an ISO-639-1 hint ("en", "de"). Empty lets the server detect it.
	Language string
}

// FilenameOrDefault returns Filename, or DefaultFilename when it is empty.
func (r Request) FilenameOrDefault() string {
	if r.Filename == "" {
		return DefaultFilename
	}
	return r.Filename
}

// Transcript is the recognised text of a clip.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding whitespace.
	Text string

	// Language is the language reported by the server, if any.
	Language string
}

// Blank reports whether the transcript contains no speech.
func (t *Transcript) Blank() bool {
	return t == nil || strings.TrimSpace(t.Text) == ""
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads req.Audio and blocks until the server returns the
	// transcript or ctx is cancelled. An empty transcript is not an error.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
