package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] looks at the file.
const DefaultWatchInterval = 5 * time.Second

// ReloadHandlers receives the hot-reloadable sections of a changed config.
// Each handler is called only when its section differs from the previous
// config; nil handlers are skipped.
type ReloadHandlers struct {
	// LogLevel receives server.log_level.
	LogLevel func(LogLevel)

	// VAD receives the detection tuning and grace periods. Listening
	// periods that are already running keep their settings.
	VAD func(VADConfig)

	// Pipeline receives the prompt, token limit, temperature, language and
	// voice of the cascade.
	Pipeline func(PipelineConfig)

	// Restart receives the sections that changed but are only read at
	// startup, e.g. ["capture", "providers"].
	Restart func(sections []string)
}

// dispatch calls the handlers for every section d reports.
func (h ReloadHandlers) dispatch(d ConfigDiff, cfg *Config) {
	if d.LogLevelChanged && h.LogLevel != nil {
		h.LogLevel(d.NewLogLevel)
	}
	if d.VADChanged && h.VAD != nil {
		h.VAD(cfg.VAD)
	}
	if d.PipelineChanged && h.Pipeline != nil {
		h.Pipeline(cfg.Pipeline)
	}
	if len(d.RestartRequired) > 0 && h.Restart != nil {
		h.Restart(d.RestartRequired)
	}
}

// Watcher reloads a config file when its content changes and hands the
// changed sections to [ReloadHandlers]. A file that fails to parse or
// validate is logged and ignored; the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	handlers ReloadHandlers

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval of Run. Default:
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a Watcher holding it as the current
// config. Nothing is polled until Run is called.
func NewWatcher(path string, h ReloadHandlers, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, handlers: h}
	for _, opt := range opts {
		opt(w)
	}
	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.mtime, w.sum = snap.cfg, snap.mtime, snap.sum
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file every interval until ctx is done. It always returns nil
// so it can run in an errgroup next to the component it reconfigures.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config reload failed; keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload checks the file once. If its content changed and still validates,
// the new config becomes current, the changed sections are dispatched and
// their diff is returned. An unchanged file, including one that was only
// touched, yields an empty diff.
func (w *Watcher) Reload() (ConfigDiff, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: stat %s: %w", w.path, err)
	}

	w.mu.Lock()
	if info.ModTime().Equal(w.mtime) {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	snap, err := w.read()
	if err != nil {
		w.mu.Unlock()
		if errors.Is(err, fs.ErrNotExist) {
			return ConfigDiff{}, fmt.Errorf("config: %s disappeared: %w", w.path, err)
		}
		return ConfigDiff{}, err
	}
	w.mtime = snap.mtime
	if snap.sum == w.sum {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	old := w.current
	w.current, w.sum = snap.cfg, snap.sum
	w.mu.Unlock()

	// Handlers may call Current.
	d := Diff(old, snap.cfg)
	if d.Changed() {
		slog.Info("config reloaded", "path", w.path,
			"log_level", d.LogLevelChanged, "vad", d.VADChanged, "pipeline", d.PipelineChanged,
			"restart_required", d.RestartRequired)
		w.handlers.dispatch(d, snap.cfg)
	}
	return d, nil
}

type snapshot struct {
	cfg   *Config
	mtime time.Time
	sum   [sha256.Size]byte
}

// read parses and validates the file, remembering its mtime and content hash.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, fmt.Errorf("config: parse %q: %w", w.path, err)
	}
	return snapshot{cfg: cfg, mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
