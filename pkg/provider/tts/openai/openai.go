// Package openai provides a TTS provider for OpenAI-compatible /audio/speech
// endpoints. Replies are requested as WAV so they can be served next to Piper
// output without transcoding.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

const (
	// DefaultVoice is used when tts.Voice.ID is empty.
	DefaultVoice = "alloy"

	localAPIKey = "sk-no-key-required"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the speech API.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	instructions string
}

type config struct {
	apiKey       string
	baseURL      string
	voice        string
	instructions string
	timeout      time.Duration
	maxRetries   int
	httpClient   *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey sets the bearer token. Self-hosted servers usually need none.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithBaseURL points the provider at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithVoice sets the default voice.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithInstructions sets style instructions for models that accept them.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithHTTPClient replaces the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a speech provider for model (e.g. "tts-1").
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai tts: model must not be empty")
	}
	cfg := &config{maxRetries: -1, voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	key := cfg.apiKey
	if key == "" {
		key = localAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		voice:        cfg.voice,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	resp, err := p.client.Audio.Speech.New(ctx, p.buildParams(text, voice))
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read response: %w", err)
	}
	if !audio.IsWAV(data) {
		return nil, fmt.Errorf("openai tts: %w: response is not a WAV file", audio.ErrInvalidWAV)
	}
	return &tts.Audio{Data: data, ContentType: audio.WAVContentType}, nil
}

func (p *Provider) buildParams(text string, voice tts.Voice) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = p.voice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if voice.Speed > 0 && voice.Speed != 1 {
		params.Speed = oai.Float(voice.Speed)
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}
	return params
}
