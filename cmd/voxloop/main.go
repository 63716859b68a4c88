// Command voxloop is the voice-chat server behind the listening client. It
// accepts recorded clips on POST /api/transcribe, runs them through the
// STT → LLM → TTS cascade and serves the synthesized replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/internal/health"
	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/pipeline"
	"github.com/MrWong99/voxloop/internal/providers"
	"github.com/MrWong99/voxloop/internal/responses"
	"github.com/MrWong99/voxloop/internal/server"
)

const defaultConfigPath = "voxloop.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "voxloop: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxloop: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voxloop starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultServerService
	}
	met, shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	var gatherer prometheus.Gatherer
	if cfg.Telemetry.Metrics {
		gatherer = promReg
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	providers.RegisterBuiltins(reg)

	stages, err := providers.Build(cfg.Providers, reg, met)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	store := responses.New(cfg.Pipeline.ResponseTTL, cfg.Pipeline.MaxResponses)
	cascade, err := pipeline.New(stages, store, pipeline.SettingsFromConfig(cfg.Pipeline),
		pipeline.WithMetrics(met),
		pipeline.WithTimeout(cfg.Pipeline.Timeout),
	)
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{
		Adapter:        cascade,
		Store:          store,
		Health:         health.New(providers.Checkers(cfg.Providers)...),
		Metrics:        met,
		Gatherer:       gatherer,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, stages)

	g, gctx := errgroup.WithContext(ctx)

	var certFile, keyFile string
	if cfg.Server.TLS != nil {
		certFile, keyFile = cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
	}
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.ListenAddr, certFile, keyFile, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return store.Run(gctx, time.Minute)
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(*configPath, config.ReloadHandlers{
			LogLevel: func(l config.LogLevel) {
				level.Set(l.Level())
				slog.Info("config reload: log level changed", "level", l)
			},
			Pipeline: func(p config.PipelineConfig) {
				cascade.UpdateSettings(pipeline.SettingsFromConfig(p))
				slog.Info("config reload: pipeline settings updated")
			},
			Restart: func(sections []string) {
				slog.Warn("config reload: some changes need a restart", "sections", sections)
			},
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in defaults; watch reports whether the file exists to be watched.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		fmt.Fprintf(os.Stderr, "voxloop: %s not found, using built-in defaults\n", path)
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

func printStartupSummary(cfg *config.Config, stages pipeline.Stages) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxloop server summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", stages.STTName, cfg.Providers.STT.Model)
	printProvider("LLM", stages.LLMName, cfg.Providers.LLM.Model)
	printProvider("TTS", stages.TTSName, cfg.Providers.TTS.Model)
	fmt.Printf("║  Max tokens      : %-19d ║\n", cfg.Pipeline.MaxTokens)
	fmt.Printf("║  Reply TTL       : %-19s ║\n", cfg.Pipeline.ResponseTTL)
	if cfg.Telemetry.Metrics {
		fmt.Printf("║  Metrics         : %-19s ║\n", "/metrics")
	} else {
		fmt.Printf("║  Metrics         : %-19s ║\n", "(disabled)")
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", scheme+" "+cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
