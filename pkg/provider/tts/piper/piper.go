// Package piper provides a TTS provider for a Piper HTTP server.
//
// The server accepts POST /synthesize/ with an application/x-www-form-urlencoded
// body carrying "text" and "model" and answers with a complete WAV file. The
// provider checks that the reply is well-formed WAV before handing it on, so
// a misconfigured server surfaces as an error rather than an unplayable file.
//
// Typical usage:
//
//	p, err := piper.New("http://localhost:8038", piper.WithModel("en_US-ryan-high"))
//	a, err := p.Synthesize(ctx, "Hello there.", tts.Voice{})
package piper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultModel is the voice model used when neither WithModel nor
	// tts.Voice.ID name one.
	DefaultModel = "en_US-ryan-high"

	defaultTimeout     = 30 * time.Second
	synthesizeEndpoint = "/synthesize/"
	maxErrorBody       = 512
)

// Option is a functional option for configuring a Piper Provider.
type Option func(*Provider)

// WithModel sets the default voice model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTimeout sets the HTTP timeout for each synthesis request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a Piper HTTP server.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Provider for the Piper server at serverURL
// (e.g. "http://localhost:8038").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	if _, err := url.ParseRequestURI(serverURL); err != nil {
		return nil, fmt.Errorf("piper: invalid serverURL: %w", err)
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("piper: text must not be empty")
	}

	form := url.Values{}
	form.Set("text", text)
	model := voice.ID
	if model == "" {
		model = p.model
	}
	form.Set("model", model)
	if voice.Speed > 0 && voice.Speed != 1 {
		// Piper expresses speed as length_scale: larger is slower.
		form.Set("length_scale", strconv.FormatFloat(1/voice.Speed, 'f', 3, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesizeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", audio.WAVContentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: POST %s: %w", synthesizeEndpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, fmt.Errorf("piper: POST %s returned status %d: %s", synthesizeEndpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if !audio.IsWAV(data) {
		return nil, fmt.Errorf("piper: %w: response is not a WAV file", audio.ErrInvalidWAV)
	}
	return &tts.Audio{Data: data, ContentType: audio.WAVContentType}, nil
}
