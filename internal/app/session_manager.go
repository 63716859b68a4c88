package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/vad"
)

var (
	// ErrSessionActive is returned by Start while a listening period is running.
	ErrSessionActive = errors.New("app: already listening")

	// ErrNoSession is returned by Stop when nothing is listening.
	ErrNoSession = errors.New("app: not listening")
)

// SessionInfo holds metadata about the active listening period.
type SessionInfo struct {
	// SessionID is a random identifier used in logs.
	SessionID string

	// StartedAt is when the microphone was opened.
	StartedAt time.Time
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Microphone vad.Microphone
	Adapter    pipeline.Adapter

	// Format is the PCM format delivered by Microphone. Captured clips are
	// encoded with it.
	Format audio.Format

	// VAD is the detection tuning for the first listening period. Use
	// [SessionManager.SetVADConfig] to change it later.
	VAD config.VADConfig

	// Metrics records utterance outcomes and the active-session gauge.
	// Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Reporter receives status labels and pipeline results. May be nil.
	Reporter Reporter

	// SessionOptions are appended to the options of every vad.Session, after
	// the ones the manager sets itself.
	SessionOptions []vad.Option
}

// SessionManager owns the listening toggle. Every listening period gets a
// fresh vad.Session and capture sink; stopping discards both. Only one period
// is active at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	mic      vad.Microphone
	adapter  pipeline.Adapter
	format   audio.Format
	metrics  *observe.Metrics
	reporter Reporter
	extra    []vad.Option

	mu     sync.Mutex
	vadCfg config.VADConfig
	active bool
	sess   *vad.Session
	cancel context.CancelFunc
	info   SessionInfo
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Microphone == nil || cfg.Adapter == nil {
		return nil, errors.New("app: microphone and adapter are required")
	}
	if err := cfg.VAD.Config.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &SessionManager{
		mic:      cfg.Microphone,
		adapter:  cfg.Adapter,
		format:   cfg.Format,
		metrics:  met,
		reporter: cfg.Reporter,
		extra:    cfg.SessionOptions,
		vadCfg:   cfg.VAD,
	}, nil
}

// Start opens the microphone and begins a listening period. On failure
// nothing stays open and the error wraps the *vad.DeviceError.
func (sm *SessionManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.startLocked(ctx)
}

func (sm *SessionManager) startLocked(ctx context.Context) error {
	if sm.active {
		return fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	id := uuid.NewString()
	log := slog.With("session_id", id)

	// Submissions run on this context so Stop can abort them.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sessCtx = observe.WithCorrelationID(sessCtx, id)

	opts := []vad.Option{
		vad.WithLogger(log),
		vad.WithContext(sessCtx),
		vad.WithGracePeriods(sm.vadCfg.Grace),
		vad.WithUtteranceListener(func(u vad.Utterance, o vad.Outcome) {
			sm.metrics.RecordUtterance(sessCtx, string(o), u.Speech)
			log.Info("utterance finished", "outcome", o, "speech", u.Speech, "reason", u.Reason)
		}),
		vad.WithLevelListener(func(l vad.Loudness) {
			log.Debug("level", "loudness", float64(l))
		}),
	}
	if sm.reporter != nil {
		opts = append(opts,
			vad.WithStatusListener(sm.reporter.Status),
			vad.WithResultListener(sm.reporter.Result),
		)
	}
	// Filled in below; the listener only fires after Enable succeeded.
	var sess *vad.Session
	opts = append(opts, vad.WithStateListener(func(c vad.StateChange) {
		if c.Event == vad.EventDeviceError {
			// Listeners run under the session lock, which Stop also takes.
			go sm.release(sess)
		}
	}))
	opts = append(opts, sm.extra...)

	sess, err := vad.NewSession(sm.vadCfg.Config, sm.mic, vad.NewBufferSink(sm.format), sm.adapter, opts...)
	if err != nil {
		cancel()
		return fmt.Errorf("app: create session: %w", err)
	}
	if err := sess.Enable(ctx); err != nil {
		cancel()
		return fmt.Errorf("app: enable listening: %w", err)
	}

	sm.active = true
	sm.sess = sess
	sm.cancel = cancel
	sm.info = SessionInfo{SessionID: id, StartedAt: time.Now().UTC()}
	sm.metrics.ActiveSessions.Add(ctx, 1)

	log.Info("listening started",
		"silence_threshold", sm.vadCfg.SilenceThreshold,
		"silence_duration", sm.vadCfg.SilenceDuration,
		"max_recording_duration", sm.vadCfg.MaxRecordingDuration,
	)
	return nil
}

// Stop ends the active listening period. A partial recording is discarded
// and in-flight pipeline requests are cancelled.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.stopLocked()
}

func (sm *SessionManager) stopLocked() error {
	if !sm.active {
		return ErrNoSession
	}
	id := sm.info.SessionID

	sm.sess.Disable()
	sm.cancel()
	sm.sess.Wait()

	sm.metrics.ActiveSessions.Add(context.Background(), -1)
	sm.active = false
	sm.sess = nil
	sm.cancel = nil
	sm.info = SessionInfo{}

	slog.Info("listening stopped", "session_id", id)
	return nil
}

// release ends the listening period of sess after its microphone failed.
// It does nothing if sess was already stopped or replaced.
func (sm *SessionManager) release(sess *vad.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active || sm.sess != sess {
		return
	}
	id := sm.info.SessionID
	_ = sm.stopLocked()
	slog.Warn("listening ended by microphone failure", "session_id", id)
}

// Toggle starts listening when idle and stops it otherwise. It reports
// whether the manager is listening afterwards. A period whose device failed
// counts as stopped.
func (sm *SessionManager) Toggle(ctx context.Context) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active && sm.sess.State() != vad.StateIdle {
		return false, sm.stopLocked()
	}
	if sm.active {
		// The device failed and release has not run yet.
		_ = sm.stopLocked()
	}
	if err := sm.startLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// IsActive reports whether a listening period is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active listening period.
// Returns zero value if nothing is listening.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Session returns the active vad.Session, or nil.
func (sm *SessionManager) Session() *vad.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sess
}

// SetVADConfig replaces the detection tuning. It takes effect at the next
// Start; the running period keeps its settings.
func (sm *SessionManager) SetVADConfig(cfg config.VADConfig) error {
	if err := cfg.Config.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.vadCfg = cfg
	return nil
}

// VADConfig returns the tuning used for the next listening period.
func (sm *SessionManager) VADConfig() config.VADConfig {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.vadCfg
}
