// Package pipeline defines the contract between the listening client and the
// service that turns a recorded utterance into a spoken reply.
//
// An Adapter receives one finished Clip and returns the transcript, the
// assistant's reply text and a URL for the synthesized reply audio. The three
// stages (transcription, chat completion, speech synthesis) succeed or fail
// as a unit: a non-nil error means no partial Result is available.
//
// A blank transcript is not an error. It yields a Result whose NoSpeech
// method reports true and whose AudioURL is empty.
package pipeline

import (
	"context"
	"strings"
)

// NoSpeechReply is the reply text returned when transcription produced no
// words.
const NoSpeechReply = "No speech detected."

// Clip is a finished, immutable recording handed off for processing.
type Clip struct {
	// Data is the encoded audio.
	Data []byte

	// ContentType is the MIME type of Data, e.g. "audio/wav".
	ContentType string

	// Filename is the name presented to multipart upload endpoints. Defaults
	// to "recording.wav" when empty.
	Filename string
}

// FilenameOrDefault returns Filename or "recording.wav".
func (c Clip) FilenameOrDefault() string {
	if c.Filename == "" {
		return "recording.wav"
	}
	return c.Filename
}

// Result is the outcome of processing one Clip.
type Result struct {
	// Transcript is the recognised text. May be empty.
	Transcript string `json:"transcription"`

	// Reply is the assistant's answer, or NoSpeechReply.
	Reply string `json:"response"`

	// AudioURL locates the synthesized reply. Empty when nothing was
	// synthesized.
	AudioURL string `json:"audioUrl"`
}

// NoSpeech reports whether the transcript is empty or whitespace only.
func (r *Result) NoSpeech() bool {
	return r == nil || strings.TrimSpace(r.Transcript) == ""
}

// Adapter processes recorded utterances. Implementations must be safe for
// concurrent use: the listening client submits each utterance on its own
// goroutine and does not wait for earlier ones to finish.
type Adapter interface {
	Process(ctx context.Context, clip Clip) (*Result, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, clip Clip) (*Result, error)

// Process calls f(ctx, clip).
func (f AdapterFunc) Process(ctx context.Context, clip Clip) (*Result, error) {
	return f(ctx, clip)
}
