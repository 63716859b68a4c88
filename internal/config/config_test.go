package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxloop/pkg/provider/llm/mock"
	"github.com/MrWong99/voxloop/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxloop/pkg/provider/stt/mock"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxloop/pkg/provider/tts/mock"
	"github.com/MrWong99/voxloop/pkg/vad"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  max_upload_bytes: 1048576

providers:
  stt:
    name: whisper
    base_url: http://whisper:8080
    timeout: 20s
  llm:
    name: openai
    api_key: ${VOXLOOP_TEST_KEY}
    model: gpt-4o
    fallbacks:
      - name: ollama
        model: llama3
  tts:
    name: piper
    base_url: http://piper:8038
    model: en_GB-alan-medium

pipeline:
  system_prompt: "Answer in one sentence."
  max_tokens: 120
  response_ttl: 5m
  voice:
    speed_factor: 1.2

vad:
  silence_threshold: 0.02
  silence_duration: 1500ms
  grace:
    no_speech: 4s

capture:
  backend: ffmpeg
  device: ":1"

client:
  mode: local
`

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Setenv("VOXLOOP_TEST_KEY", "sk-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes != 1<<20 {
		t.Errorf("max_upload_bytes: got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.ShutdownTimeout != config.DefaultShutdownTimeout {
		t.Errorf("shutdown_timeout should keep its default, got %v", cfg.Server.ShutdownTimeout)
	}

	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("llm.api_key not expanded from environment: %q", cfg.Providers.LLM.APIKey)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "ollama" {
		t.Errorf("llm.fallbacks: got %+v", cfg.Providers.LLM.Fallbacks)
	}
	if cfg.Providers.STT.Timeout != 20*time.Second {
		t.Errorf("stt.timeout: got %v", cfg.Providers.STT.Timeout)
	}
	if cfg.Providers.STT.Model != "" {
		t.Errorf("stt.model should not inherit the default provider's model, got %q", cfg.Providers.STT.Model)
	}
	if cfg.Providers.TTS.Model != "en_GB-alan-medium" {
		t.Errorf("tts.model: got %q", cfg.Providers.TTS.Model)
	}

	if cfg.Pipeline.SystemPrompt != "Answer in one sentence." || cfg.Pipeline.MaxTokens != 120 {
		t.Errorf("pipeline: got %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ResponseTTL != 5*time.Minute {
		t.Errorf("response_ttl: got %v", cfg.Pipeline.ResponseTTL)
	}
	if cfg.Pipeline.MaxResponses != config.DefaultMaxResponses {
		t.Errorf("max_responses should keep its default, got %d", cfg.Pipeline.MaxResponses)
	}

	if cfg.VAD.SilenceThreshold != 0.02 || cfg.VAD.SilenceDuration != 1500*time.Millisecond {
		t.Errorf("vad tuning: got %+v", cfg.VAD.Config)
	}
	if cfg.VAD.DetectionDelay != vad.DefaultDetectionDelay {
		t.Errorf("detection_delay should keep its default, got %v", cfg.VAD.DetectionDelay)
	}
	if !cfg.VAD.RequireExplicitListeningState {
		t.Error("require_explicit_listening_state should default to true")
	}
	if cfg.VAD.Grace.NoSpeech != 4*time.Second {
		t.Errorf("grace.no_speech: got %v", cfg.VAD.Grace.NoSpeech)
	}
	if cfg.VAD.Grace.TooShort != vad.DefaultGracePeriods().TooShort {
		t.Errorf("grace.too_short should keep its default, got %v", cfg.VAD.Grace.TooShort)
	}

	if cfg.Capture.Backend != config.CaptureFFmpeg || cfg.Capture.Device != ":1" {
		t.Errorf("capture: got %+v", cfg.Capture)
	}
	if cfg.Client.Mode != config.ClientLocal {
		t.Errorf("client.mode: got %q", cfg.Client.Mode)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Default()

	if cfg.Server.ListenAddr != ":3131" {
		t.Errorf("listen_addr: got %q, want :3131", cfg.Server.ListenAddr)
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:8111/v1" || cfg.Providers.STT.Model != "Systran/faster-whisper-tiny.en" {
		t.Errorf("stt defaults: got %+v", cfg.Providers.STT)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm defaults: got %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.TTS.Name != "piper" || cfg.Providers.TTS.Model != "en_US-ryan-high" {
		t.Errorf("tts defaults: got %+v", cfg.Providers.TTS)
	}
	if cfg.Pipeline != def.Pipeline {
		t.Errorf("pipeline defaults: got %+v, want %+v", cfg.Pipeline, def.Pipeline)
	}
	if cfg.Pipeline.MaxTokens != 300 {
		t.Errorf("max_tokens: got %d, want 300", cfg.Pipeline.MaxTokens)
	}
	if cfg.VAD.Config != vad.DefaultConfig() {
		t.Errorf("vad defaults: got %+v", cfg.VAD.Config)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adress: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxloop.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("VOXLOOP_DOTENV_A=from-file\nVOXLOOP_DOTENV_B=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOXLOOP_DOTENV_B", "from-env")
	t.Setenv("VOXLOOP_DOTENV_A", "")
	os.Unsetenv("VOXLOOP_DOTENV_A")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("VOXLOOP_DOTENV_A"); got != "from-file" {
		t.Errorf("VOXLOOP_DOTENV_A: got %q, want from-file", got)
	}
	if got := os.Getenv("VOXLOOP_DOTENV_B"); got != "from-env" {
		t.Errorf("existing variables must win, got %q", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("stt: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("llm: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantSTT, wantLLM, wantTTS := &sttmock.Provider{}, &llmmock.Provider{}, &ttsmock.Provider{}

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return wantSTT, nil
	})
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })

	entry := config.ProviderEntry{Name: "stub", Model: "m"}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT: got %v, %v", got, err)
	}
	if gotEntry.Model != "m" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM: got %v, %v", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS: got %v, %v", got, err)
	}
	if names := reg.Names("llm"); !slices.Equal(names, []string{"stub"}) {
		t.Errorf("Names(llm): got %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}
