// Package config provides the configuration schema, loader, and provider registry
// for the voxloop server and listening client.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxloop/pkg/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ClientMode selects where the listening client sends captured utterances.
type ClientMode string

const (
	// ClientRemote posts utterances to a voxloop server.
	ClientRemote ClientMode = "remote"

	// ClientLocal runs the STT → LLM → TTS cascade in-process.
	ClientLocal ClientMode = "local"
)

// IsValid reports whether m is a recognised client mode.
func (m ClientMode) IsValid() bool {
	return m == ClientRemote || m == ClientLocal
}

// CaptureBackend selects the program used to read the microphone.
type CaptureBackend string

const (
	// CaptureAuto picks the platform default.
	CaptureAuto    CaptureBackend = "auto"
	CaptureARecord CaptureBackend = "arecord"
	CaptureFFmpeg  CaptureBackend = "ffmpeg"
)

// IsValid reports whether b is a recognised capture backend.
func (b CaptureBackend) IsValid() bool {
	switch b {
	case CaptureAuto, CaptureARecord, CaptureFFmpeg:
		return true
	}
	return false
}

// Config is the root configuration structure for voxloop.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	VAD       VADConfig       `yaml:"vad"`
	Capture   CaptureConfig   `yaml:"capture"`
	Client    ClientConfig    `yaml:"client"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":3131").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity for both binaries.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes bounds the size of an uploaded clip.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "piper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Timeout bounds a single request. Zero keeps the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Fallback entries must not declare fallbacks themselves.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// PipelineConfig tunes the STT → LLM → TTS cascade.
type PipelineConfig struct {
	// SystemPrompt is sent before every transcript.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTokens caps the reply length.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature for the LLM. Zero keeps the provider default.
	Temperature float64 `yaml:"temperature"`

	// Language is the transcription language hint. Empty lets the server detect it.
	Language string `yaml:"language"`

	// Voice configures the reply voice.
	Voice VoiceConfig `yaml:"voice"`

	// Timeout bounds one whole cascade run.
	Timeout time.Duration `yaml:"timeout"`

	// ResponseTTL is how long synthesised replies stay downloadable.
	ResponseTTL time.Duration `yaml:"response_ttl"`

	// MaxResponses bounds the number of stored replies. The oldest are evicted first.
	MaxResponses int `yaml:"max_responses"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier. Empty keeps the
	// provider's configured model or default voice.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// VADConfig is the voice activity detection section. The tuning fields of
// [vad.Config] are inlined; status grace periods live under "grace".
type VADConfig struct {
	vad.Config `yaml:",inline"`

	Grace vad.GracePeriods `yaml:"grace"`
}

// CaptureConfig selects and tunes the microphone capture backend.
type CaptureConfig struct {
	Backend CaptureBackend `yaml:"backend"`

	// Device is the backend-specific input device ("default", "hw:1,0",
	// ":0" for avfoundation). Empty uses the platform default.
	Device string `yaml:"device"`

	// SampleRate of the captured PCM in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameSamples is the number of samples delivered per frame.
	FrameSamples int `yaml:"frame_samples"`

	// StartTimeout bounds how long opening the device may take.
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// ClientConfig configures the listening client.
type ClientConfig struct {
	Mode ClientMode `yaml:"mode"`

	// ServerURL is the voxloop server used in remote mode.
	ServerURL string `yaml:"server_url"`

	// RequestTimeout bounds one remote pipeline request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MetricsAddr, when set, serves /metrics from the client.
	MetricsAddr string `yaml:"metrics_addr"`

	// ResponsesAddr is where local mode serves synthesized replies. Port 0
	// picks a free port.
	ResponsesAddr string `yaml:"responses_addr"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Defaults per binary.
	ServiceName string `yaml:"service_name"`

	// Metrics enables the Prometheus exporter and /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}
