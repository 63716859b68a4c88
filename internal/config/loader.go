package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai", "whisper"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"piper", "openai"},
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Variables that are already set are left untouched and missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults and validates the result. An empty
// document yields [Default].
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := Default()
	cfg.Providers = ProvidersConfig{}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyProviderDefaults(&cfg.Providers)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateProvider("stt", cfg.Providers.STT)...)
	errs = append(errs, validateProvider("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateProvider("tts", cfg.Providers.TTS)...)

	// Pipeline
	if cfg.Pipeline.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens must not be negative, got %d", cfg.Pipeline.MaxTokens))
	}
	if cfg.Pipeline.Temperature < 0 || cfg.Pipeline.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", cfg.Pipeline.Temperature))
	}
	if sf := cfg.Pipeline.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("pipeline.voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	if cfg.Pipeline.ResponseTTL <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.response_ttl must be positive, got %v", cfg.Pipeline.ResponseTTL))
	}
	if cfg.Pipeline.MaxResponses <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_responses must be positive, got %d", cfg.Pipeline.MaxResponses))
	}
	if cfg.Pipeline.SystemPrompt == "" {
		slog.Warn("pipeline.system_prompt is empty; the model receives only the transcript")
	}

	// VAD
	if err := cfg.VAD.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if g := cfg.VAD.Grace; g.TooShort < 0 || g.NoSpeech < 0 || g.ProcessingError < 0 {
		errs = append(errs, errors.New("vad.grace periods must not be negative"))
	}

	// Capture
	if !cfg.Capture.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("capture.backend %q is invalid; valid values: auto, arecord, ffmpeg", cfg.Capture.Backend))
	}
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be positive, got %d", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("capture.frame_samples must be positive, got %d", cfg.Capture.FrameSamples))
	}

	// Client
	if !cfg.Client.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("client.mode %q is invalid; valid values: remote, local", cfg.Client.Mode))
	}
	if cfg.Client.Mode == ClientRemote {
		if u, err := url.Parse(cfg.Client.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.server_url %q must be an absolute http(s) URL", cfg.Client.ServerURL))
		}
	}
	if cfg.Client.Mode == ClientLocal {
		if _, _, err := net.SplitHostPort(cfg.Client.ResponsesAddr); err != nil {
			errs = append(errs, fmt.Errorf("client.responses_addr %q must be host:port: %w", cfg.Client.ResponsesAddr, err))
		}
	}

	return errors.Join(errs...)
}

// validateProvider checks one stage and its fallbacks.
func validateProvider(kind string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
	}
	validateProviderName(kind, e.Name)
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("providers.%s.timeout must not be negative", kind))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s must not declare nested fallbacks", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
