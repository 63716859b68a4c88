// Package app wires the listening client together.
//
// The App struct owns the full lifecycle. New builds the pipeline adapter,
// the microphone and the [SessionManager]. Run reads toggle commands until
// the user quits or ctx ends, and Shutdown stops listening.
//
// In local mode the App also serves synthesized replies on
// client.responses_addr, so the printed audio URLs resolve.
//
// For testing, inject doubles via functional options ([WithMicrophone],
// [WithAdapter], ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxloop/internal/capture"
	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/pipeline"
	"github.com/MrWong99/voxloop/internal/providers"
	"github.com/MrWong99/voxloop/internal/responses"
	"github.com/MrWong99/voxloop/pkg/audio"
	vpipeline "github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/pipeline/remote"
	"github.com/MrWong99/voxloop/pkg/vad"
)

// sweepInterval is how often the local response store drops expired replies.
const sweepInterval = time.Minute

// responsesShutdownTimeout bounds draining the local reply listener.
const responsesShutdownTimeout = 5 * time.Second

// App owns the listening client.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics
	out     io.Writer
	printer *Printer

	mic      vad.Microphone
	format   audio.Format
	adapter  vpipeline.Adapter
	cascade  *pipeline.Cascade
	store    *responses.Store
	registry *config.Registry
	respLn   net.Listener
	sessions *SessionManager
	sessOpts []vad.Option

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMicrophone injects a microphone delivering frames in format f instead
// of starting a capture process.
func WithMicrophone(m vad.Microphone, f audio.Format) Option {
	return func(a *App) {
		a.mic = m
		a.format = f
	}
}

// WithAdapter injects the pipeline adapter instead of building one from
// client.mode.
func WithAdapter(p vpipeline.Adapter) Option {
	return func(a *App) { a.adapter = p }
}

// WithProviderRegistry makes local mode build its providers from reg instead
// of the built-in set.
func WithProviderRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutput sets where status labels and results are printed.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithSessionOptions appends options to every vad.Session the App creates.
func WithSessionOptions(opts ...vad.Option) Option {
	return func(a *App) { a.sessOpts = append(a.sessOpts, opts...) }
}

// New creates an App from cfg. Options replace individual subsystems.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, out: io.Discard}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.printer = NewPrinter(a.out)

	if err := a.initAdapter(); err != nil {
		return nil, fmt.Errorf("app: init adapter: %w", err)
	}
	if err := a.initMicrophone(); err != nil {
		a.closeResponses()
		return nil, fmt.Errorf("app: init microphone: %w", err)
	}

	sm, err := NewSessionManager(SessionManagerConfig{
		Microphone:     a.mic,
		Adapter:        a.adapter,
		Format:         a.format,
		VAD:            cfg.VAD,
		Metrics:        a.metrics,
		Reporter:       a.printer,
		SessionOptions: a.sessOpts,
	})
	if err != nil {
		a.closeResponses()
		return nil, err
	}
	a.sessions = sm
	return a, nil
}

// initAdapter picks the remote server or the in-process cascade.
func (a *App) initAdapter() error {
	if a.adapter != nil {
		return nil
	}

	switch a.cfg.Client.Mode {
	case config.ClientLocal:
		reg := a.registry
		if reg == nil {
			reg = config.NewRegistry()
			providers.RegisterBuiltins(reg)
		}
		stages, err := providers.Build(a.cfg.Providers, reg, a.metrics)
		if err != nil {
			return err
		}
		a.store = responses.New(a.cfg.Pipeline.ResponseTTL, a.cfg.Pipeline.MaxResponses)
		c, err := pipeline.New(stages, a.store, pipeline.SettingsFromConfig(a.cfg.Pipeline),
			pipeline.WithMetrics(a.metrics),
			pipeline.WithTimeout(a.cfg.Pipeline.Timeout),
		)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", a.cfg.Client.ResponsesAddr)
		if err != nil {
			return fmt.Errorf("listen for replies: %w", err)
		}
		a.respLn = ln
		a.cascade = c
		a.adapter = linkReplies(c, "http://"+ln.Addr().String())
		slog.Info("pipeline: local cascade",
			"stt", stages.STTName, "llm", stages.LLMName, "tts", stages.TTSName,
			"replies", "http://"+ln.Addr().String()+responses.URLPrefix)

	default:
		c, err := remote.New(a.cfg.Client.ServerURL, remote.WithTimeout(a.cfg.Client.RequestTimeout))
		if err != nil {
			return err
		}
		a.adapter = c
		slog.Info("pipeline: remote server", "url", a.cfg.Client.ServerURL)
	}
	return nil
}

// initMicrophone starts nothing yet; the capture process is spawned on every
// Start.
func (a *App) initMicrophone() error {
	if a.mic != nil {
		return nil
	}
	c := a.cfg.Capture
	m, err := capture.New(capture.Config{
		Backend:      string(c.Backend),
		Device:       c.Device,
		SampleRate:   c.SampleRate,
		FrameSamples: c.FrameSamples,
		StartTimeout: c.StartTimeout,
	})
	if err != nil {
		return err
	}
	slog.Info("capture configured", "cmd", m.Command())
	a.mic = m
	a.format = m.Format()
	return nil
}

// Sessions returns the listening toggle.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Cascade returns the in-process pipeline in local mode, or nil.
func (a *App) Cascade() *pipeline.Cascade { return a.cascade }

// ResponsesAddr returns the address replies are served on in local mode, or
// nil in remote mode.
func (a *App) ResponsesAddr() net.Addr {
	if a.respLn == nil {
		return nil
	}
	return a.respLn.Addr()
}

// Run reads commands from in until the user quits, in reaches EOF or ctx is
// done. An empty line toggles listening; "q" quits. Listening is stopped
// before Run returns.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.store != nil {
		g.Go(func() error {
			return a.store.Run(gctx, sweepInterval)
		})
	}
	if a.respLn != nil {
		g.Go(func() error {
			return a.serveResponses(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return a.loop(gctx, in)
	})

	err := g.Wait()
	if a.sessions.IsActive() {
		_ = a.sessions.Stop()
	}
	return err
}

// serveResponses serves the local store on respLn until ctx is done.
func (a *App) serveResponses(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("GET "+responses.URLPrefix+"{file}", a.store.Handler())
	srv := &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(a.respLn) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("app: serve replies: %w", err)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), responsesShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("app: shutdown reply server: %w", err)
	}
	<-errCh
	return nil
}

func (a *App) closeResponses() {
	if a.respLn != nil {
		_ = a.respLn.Close()
	}
}

func (a *App) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.printer.Printf("Press Enter to toggle listening, q to quit.")
	a.printer.Status(vad.StatusReady)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
				a.toggle(ctx)
			case "q", "quit", "exit":
				return nil
			default:
				a.printer.Printf("Unknown command %q. Press Enter to toggle listening, q to quit.", line)
			}
		}
	}
}

func (a *App) toggle(ctx context.Context) {
	listening, err := a.sessions.Toggle(ctx)
	if err != nil {
		var devErr *vad.DeviceError
		if errors.As(err, &devErr) {
			slog.Error("microphone unavailable", "err", err)
			return
		}
		slog.Error("toggle listening", "err", err)
		return
	}
	if !listening {
		// Disabling a session whose device already failed reports nothing.
		a.printer.Status(vad.StatusReady)
	}
}

// ReloadHandlers returns the [config.Watcher] handlers for the settings the
// client can change at runtime. VAD tuning applies from the next listening
// period; pipeline settings apply to the next utterance in local mode.
func (a *App) ReloadHandlers() config.ReloadHandlers {
	return config.ReloadHandlers{
		VAD: func(v config.VADConfig) {
			if err := a.sessions.SetVADConfig(v); err != nil {
				slog.Warn("config reload: vad settings rejected", "err", err)
				return
			}
			slog.Info("config reload: vad settings apply to the next listening period")
		},
		Pipeline: func(p config.PipelineConfig) {
			if a.cascade == nil {
				return
			}
			a.cascade.UpdateSettings(pipeline.SettingsFromConfig(p))
			slog.Info("config reload: pipeline settings updated")
		},
		Restart: func(sections []string) {
			slog.Warn("config reload: some changes need a restart", "sections", sections)
		},
	}
}

// Shutdown stops listening and waits for in-flight requests to be
// cancelled. If ctx expires first, the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := a.sessions.Stop(); err != nil && !errors.Is(err, ErrNoSession) {
				slog.Warn("stop listening", "err", err)
			}
			a.closeResponses()
		}()
		select {
		case <-done:
			slog.Info("shutdown complete")
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded")
			shutdownErr = ctx.Err()
		}
	})
	return shutdownErr
}

// linkReplies turns the store-relative audio URLs returned by next into
// absolute URLs under base.
func linkReplies(next vpipeline.Adapter, base string) vpipeline.Adapter {
	return vpipeline.AdapterFunc(func(ctx context.Context, clip vpipeline.Clip) (*vpipeline.Result, error) {
		res, err := next.Process(ctx, clip)
		if err != nil || res == nil {
			return res, err
		}
		if strings.HasPrefix(res.AudioURL, "/") {
			res.AudioURL = base + res.AudioURL
		}
		return res, nil
	})
}
