// Package openai provides an STT provider for OpenAI-compatible
// /audio/transcriptions endpoints. Besides the hosted OpenAI API this covers
// faster-whisper-server, Speaches and LocalAI through WithBaseURL.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxloop/pkg/provider/stt"
)

// localAPIKey is sent when no key is configured. Self-hosted servers ignore
// the Authorization header but the SDK always sets one.
const localAPIKey = "sk-no-key-required"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the transcriptions API.
type Provider struct {
	client      oai.Client
	model       string
	language    string
	prompt      string
	temperature float64
}

type config struct {
	apiKey      string
	baseURL     string
	language    string
	prompt      string
	temperature float64
	timeout     time.Duration
	maxRetries  int
	httpClient  *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey sets the bearer token. Self-hosted servers usually need none.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithBaseURL points the provider at an OpenAI-compatible server, e.g.
// "http://localhost:8111/v1".
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt sets a prompt that biases recognition towards its vocabulary.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithTemperature sets the sampling temperature. Zero keeps the server default.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
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

// New constructs a transcription provider for model
// (e.g. "whisper-1" or "Systran/faster-whisper-tiny.en").
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai stt: model must not be empty")
	}
	cfg := &config{maxRetries: -1}
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
		client:      oai.NewClient(reqOpts...),
		model:       model,
		language:    cfg.language,
		prompt:      cfg.prompt,
		temperature: cfg.temperature,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("openai stt: audio must not be empty")
	}
	res, err := p.client.Audio.Transcriptions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return &stt.Transcript{Text: strings.TrimSpace(res.Text)}, nil
}

func (p *Provider) buildParams(req stt.Request) oai.AudioTranscriptionNewParams {
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(req.Audio), req.FilenameOrDefault(), ct),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}
	if p.temperature != 0 {
		params.Temperature = oai.Float(p.temperature)
	}
	return params
}
