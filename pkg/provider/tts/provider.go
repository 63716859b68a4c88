// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Piper HTTP server
// or an OpenAI-compatible /audio/speech endpoint) and turns the assistant's
// reply into one playable audio file.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice selects how the reply is spoken.
type Voice struct {
	// ID is the provider-specific voice or model identifier
	// (e.g. "en_US-ryan-high" for Piper, "alloy" for OpenAI).
	// Empty selects the provider default.
	ID string

	// Speed adjusts the speaking rate (0.25–4.0, 1.0 = default). Zero means default.
	Speed float64
}

// Audio is a synthesised clip.
type Audio struct {
	// Data is the encoded audio file.
	Data []byte

	// ContentType is the MIME type of Data, e.g. "audio/wav".
	ContentType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and blocks until the complete audio
	// file is available or ctx is cancelled. Empty text is an error.
	Synthesize(ctx context.Context, text string, voice Voice) (*Audio, error)
}
