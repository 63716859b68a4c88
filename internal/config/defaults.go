package config

import (
	"os"
	"time"

	"github.com/MrWong99/voxloop/pkg/vad"
)

// Default values applied by [Default] and [LoadFromReader].
const (
	DefaultListenAddr      = ":3131"
	DefaultMaxUploadBytes  = 25 << 20
	DefaultShutdownTimeout = 10 * time.Second

	DefaultSystemPrompt    = "You are a helpful assistant. Provide concise and informative responses."
	DefaultMaxTokens       = 300
	DefaultPipelineTimeout = 2 * time.Minute
	DefaultResponseTTL     = 10 * time.Minute
	DefaultMaxResponses    = 256
	DefaultSampleRate      = 16000
	DefaultFrameSamples    = 2048
	DefaultStartTimeout    = 3 * time.Second
	DefaultServerURL       = "http://localhost:3131"
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultResponsesAddr   = "127.0.0.1:3132"
	DefaultServerService   = "voxloop"
	DefaultClientService   = "voxlisten"
)

// DefaultProviders returns the provider stack used when the config file
// leaves a stage unset: faster-whisper-server for STT, OpenAI for the LLM and
// a local Piper server for TTS. The LLM key is read from OPENAI_API_KEY.
func DefaultProviders() ProvidersConfig {
	return ProvidersConfig{
		STT: ProviderEntry{
			Name:    "openai",
			BaseURL: "http://localhost:8111/v1",
			Model:   "Systran/faster-whisper-tiny.en",
		},
		LLM: ProviderEntry{
			Name:   "openai",
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  "gpt-4o-mini",
		},
		TTS: ProviderEntry{
			Name:    "piper",
			BaseURL: "http://localhost:8038",
			Model:   "en_US-ryan-high",
		},
	}
}

// Default returns a complete configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			LogLevel:        LogInfo,
			MaxUploadBytes:  DefaultMaxUploadBytes,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Providers: DefaultProviders(),
		Pipeline: PipelineConfig{
			SystemPrompt: DefaultSystemPrompt,
			MaxTokens:    DefaultMaxTokens,
			Timeout:      DefaultPipelineTimeout,
			ResponseTTL:  DefaultResponseTTL,
			MaxResponses: DefaultMaxResponses,
		},
		VAD: VADConfig{
			Config: vad.DefaultConfig(),
			Grace:  vad.DefaultGracePeriods(),
		},
		Capture: CaptureConfig{
			Backend:      CaptureAuto,
			SampleRate:   DefaultSampleRate,
			FrameSamples: DefaultFrameSamples,
			StartTimeout: DefaultStartTimeout,
		},
		Client: ClientConfig{
			Mode:           ClientRemote,
			ServerURL:      DefaultServerURL,
			RequestTimeout: DefaultRequestTimeout,
			ResponsesAddr:  DefaultResponsesAddr,
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
		},
	}
}

// applyProviderDefaults fills stages the file left unset. A stage whose name
// is set is taken verbatim so defaults of one provider never leak into another.
func applyProviderDefaults(p *ProvidersConfig) {
	def := DefaultProviders()
	if p.STT.Name == "" {
		p.STT = def.STT
	}
	if p.LLM.Name == "" {
		p.LLM = def.LLM
	}
	if p.TTS.Name == "" {
		p.TTS = def.TTS
	}
}
