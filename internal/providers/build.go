package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/internal/health"
	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/pipeline"
	"github.com/MrWong99/voxloop/internal/resilience"
	"github.com/MrWong99/voxloop/pkg/provider/llm"
	"github.com/MrWong99/voxloop/pkg/provider/stt"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

// Build instantiates the configured STT, LLM and TTS providers. A stage with
// fallbacks is wrapped in the matching resilience fallback type, labelled
// "primary>fallback..." in metrics. Failed attempts of individual backends
// are counted on met when it is non-nil.
func Build(cfg config.ProvidersConfig, reg *config.Registry, met *observe.Metrics) (pipeline.Stages, error) {
	var st pipeline.Stages
	var err error

	st.STT, st.STTName, err = buildStage(cfg.STT, "stt", reg.CreateSTT, resilienceOpts(met, "stt"),
		func(p stt.Provider, name string, fc resilience.FallbackConfig) (stt.Provider, func(string, stt.Provider)) {
			fb := resilience.NewSTTFallback(p, name, fc)
			return fb, fb.AddFallback
		})
	if err != nil {
		return pipeline.Stages{}, err
	}

	st.LLM, st.LLMName, err = buildStage(cfg.LLM, "llm", reg.CreateLLM, resilienceOpts(met, "llm"),
		func(p llm.Provider, name string, fc resilience.FallbackConfig) (llm.Provider, func(string, llm.Provider)) {
			fb := resilience.NewLLMFallback(p, name, fc)
			return fb, fb.AddFallback
		})
	if err != nil {
		return pipeline.Stages{}, err
	}

	st.TTS, st.TTSName, err = buildStage(cfg.TTS, "tts", reg.CreateTTS, resilienceOpts(met, "tts"),
		func(p tts.Provider, name string, fc resilience.FallbackConfig) (tts.Provider, func(string, tts.Provider)) {
			fb := resilience.NewTTSFallback(p, name, fc)
			return fb, fb.AddFallback
		})
	if err != nil {
		return pipeline.Stages{}, err
	}
	return st, nil
}

// buildStage creates the primary provider of one stage and, if the entry has
// fallbacks, a failover group around it.
func buildStage[P any](
	entry config.ProviderEntry,
	kind string,
	create func(config.ProviderEntry) (P, error),
	fc resilience.FallbackConfig,
	wrap func(primary P, name string, fc resilience.FallbackConfig) (P, func(string, P)),
) (P, string, error) {
	var zero P

	primary, err := create(entry)
	if err != nil {
		return zero, "", fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	if len(entry.Fallbacks) == 0 {
		return primary, entry.Name, nil
	}

	group, add := wrap(primary, entry.Name, fc)
	names := []string{entry.Name}
	for i, fb := range entry.Fallbacks {
		p, err := create(fb)
		if err != nil {
			return zero, "", fmt.Errorf("create %s fallback %d %q: %w", kind, i, fb.Name, err)
		}
		add(fb.Name, p)
		names = append(names, fb.Name)
		slog.Info("fallback provider created", "kind", kind, "name", fb.Name, "model", fb.Model)
	}
	return group, strings.Join(names, ">"), nil
}

func resilienceOpts(met *observe.Metrics, kind string) resilience.FallbackConfig {
	var fc resilience.FallbackConfig
	if met != nil {
		fc.OnError = func(provider string, _ error) {
			met.RecordProviderError(context.Background(), provider, kind)
		}
	}
	return fc
}

// Checkers returns readiness checkers for every configured provider that
// lives at an explicit base URL. Hosted APIs without a base URL are not
// probed.
func Checkers(cfg config.ProvidersConfig) []health.Checker {
	var out []health.Checker
	add := func(kind string, e config.ProviderEntry) {
		if e.BaseURL == "" {
			return
		}
		out = append(out, health.HTTPChecker(kind+"/"+e.Name, e.BaseURL, nil))
	}
	for _, stage := range []struct {
		kind  string
		entry config.ProviderEntry
	}{
		{"stt", cfg.STT},
		{"llm", cfg.LLM},
		{"tts", cfg.TTS},
	} {
		add(stage.kind, stage.entry)
		for _, fb := range stage.entry.Fallbacks {
			add(stage.kind, fb)
		}
	}
	return out
}
