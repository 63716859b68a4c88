package vad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/clock"
	"github.com/MrWong99/voxloop/pkg/pipeline"
)

// StopReason says which timer ended a recording.
type StopReason string

const (
	StopSilence     StopReason = "silence"
	StopMaxDuration StopReason = "max_duration"
)

// Outcome is what happened to a finished recording.
type Outcome string

const (
	// OutcomeEmitted means the clip was submitted to the pipeline.Adapter.
	OutcomeEmitted Outcome = "emitted"
	// OutcomeTooShort means speech lasted less than MinSpeechDuration.
	OutcomeTooShort Outcome = "too_short"
	// OutcomeEmpty means the sink produced no audio.
	OutcomeEmpty Outcome = "empty"
)

// Utterance is one finished recording.
type Utterance struct {
	Clip pipeline.Clip

	// StartedAt is when the recording was confirmed.
	StartedAt time.Time

	// StoppedAt is when the stopping timer fired.
	StoppedAt time.Time

	// Speech runs from StartedAt to the last frame with sound, or to
	// StoppedAt when the max-duration cap ended the recording.
	Speech time.Duration

	Reason StopReason
}

type timerKind int

const (
	timerDetection timerKind = iota
	timerSilence
	timerMaxDuration
	timerStatus
	numTimers
)

type armedTimer struct {
	timer clock.Timer
	token uint64
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithClock replaces the wall clock. Tests use a fake clock to drive timers.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithContext sets the context passed to the pipeline.Adapter. Submissions
// are not cancelled by Disable; cancel this context to abort them.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithMeter sets the factory for the per-listening-period Meter. Defaults to
// NewSpectrumMeter.
func WithMeter(newMeter func() Meter) Option {
	return func(s *Session) {
		s.newMeter = newMeter
	}
}

// WithGracePeriods overrides how long transient status labels stay visible.
func WithGracePeriods(g GracePeriods) Option {
	return func(s *Session) {
		s.grace = g
	}
}

// WithStateListener registers fn for every state transition.
func WithStateListener(fn func(StateChange)) Option {
	return func(s *Session) {
		s.onState = append(s.onState, fn)
	}
}

// WithStatusListener registers fn for every status label change.
func WithStatusListener(fn func(Status)) Option {
	return func(s *Session) {
		s.onStatus = append(s.onStatus, fn)
	}
}

// WithLevelListener registers fn for the loudness of every frame.
func WithLevelListener(fn func(Loudness)) Option {
	return func(s *Session) {
		s.onLevel = append(s.onLevel, fn)
	}
}

// WithUtteranceListener registers fn for every finished recording, whether
// emitted or discarded.
func WithUtteranceListener(fn func(Utterance, Outcome)) Option {
	return func(s *Session) {
		s.onUtterance = append(s.onUtterance, fn)
	}
}

// WithResultListener registers fn for every pipeline.Adapter result. It is
// called from the submission goroutine.
func WithResultListener(fn func(Utterance, *pipeline.Result, error)) Option {
	return func(s *Session) {
		s.onResult = append(s.onResult, fn)
	}
}

// Session is the voice activity state machine for one listening period.
//
// Listeners registered through options are called synchronously, in event
// order, while the Session's lock is held. They must not call methods on the
// Session.
type Session struct {
	cfg      Config
	mic      Microphone
	sink     Sink
	adapter  pipeline.Adapter
	clock    clock.Clock
	logger   *slog.Logger
	ctx      context.Context
	grace    GracePeriods
	newMeter func() Meter

	onState     []func(StateChange)
	onStatus    []func(Status)
	onLevel     []func(Loudness)
	onUtterance []func(Utterance, Outcome)
	onResult    []func(Utterance, *pipeline.Result, error)

	mu        sync.Mutex
	state     State
	status    Status
	gen       uint64
	opening   bool
	stream    Stream
	meter     Meter
	startedAt time.Time
	lastSound time.Time
	silentAt  time.Time // first quiet frame after lastSound, zero while sound continues
	timers    [numTimers]*armedTimer
	nextToken uint64

	inflight sync.WaitGroup
}

// NewSession returns an idle Session. cfg must pass Validate.
func NewSession(cfg Config, mic Microphone, sink Sink, adapter pipeline.Adapter, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mic == nil || sink == nil || adapter == nil {
		return nil, errors.New("vad: microphone, sink and adapter are required")
	}
	s := &Session{
		cfg:      cfg,
		mic:      mic,
		sink:     sink,
		adapter:  adapter,
		clock:    clock.Real{},
		logger:   slog.Default(),
		ctx:      context.Background(),
		grace:    DefaultGracePeriods(),
		newMeter: func() Meter { return NewSpectrumMeter() },
		state:    StateIdle,
		status:   StatusReady,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the Session's configuration.
func (s *Session) Config() Config { return s.cfg }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current status label.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PendingTimers returns the number of armed timers, including the status
// label timer.
func (s *Session) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t != nil {
			n++
		}
	}
	return n
}

// Streaming reports whether a microphone stream is open.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Wait blocks until every submitted utterance has been processed.
func (s *Session) Wait() { s.inflight.Wait() }

// Enable opens the microphone and moves from Idle to Listening. On failure the
// Session stays Idle, reports StatusMicrophoneError and returns a
// *DeviceError.
func (s *Session) Enable(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.opening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}
	s.opening = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.mic.Open(ctx, FrameHandler{
		OnFrame: func(f audio.AudioFrame) { s.handleFrame(gen, f) },
		OnError: func(err error) { s.handleDeviceError(gen, err) },
	})

	s.mu.Lock()
	s.opening = false
	if err != nil {
		s.setStatusLocked(StatusMicrophoneError)
		s.mu.Unlock()
		var de *DeviceError
		if !errors.As(err, &de) {
			err = &DeviceError{Err: err}
		}
		s.logger.Error("vad: open microphone", "err", err)
		return err
	}
	if gen != s.gen {
		s.mu.Unlock()
		if cerr := stream.Close(); cerr != nil {
			s.logger.Warn("vad: close stream", "err", cerr)
		}
		return ErrSessionClosed
	}
	s.stream = stream
	s.meter = s.newMeter()
	s.transitionLocked(StateListening, EventEnableListening)
	s.setStatusLocked(StatusListening)
	s.mu.Unlock()
	return nil
}

// Disable tears the Session down from any state: it cancels every timer,
// stops the sink discarding any partial clip, and closes the microphone.
// Calling Disable on an idle Session is a no-op.
func (s *Session) Disable() {
	s.mu.Lock()
	if s.opening {
		// Enable sees the generation change and closes the new stream.
		s.gen++
	}
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	stream := s.teardownLocked(EventDisableListening)
	s.setStatusLocked(StatusReady)
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("vad: close stream", "err", err)
		}
	}
}

// teardownLocked cancels timers, drops the sink buffer and moves to Idle. It
// returns the stream for the caller to close after releasing the lock.
func (s *Session) teardownLocked(ev Event) Stream {
	s.gen++
	for k := range s.timers {
		s.cancelLocked(timerKind(k))
	}
	if _, err := s.sink.Stop(); err != nil {
		s.logger.Warn("vad: discard partial clip", "err", err)
	}
	stream := s.stream
	s.stream = nil
	s.meter = nil
	s.transitionLocked(StateIdle, ev)
	return stream
}

func (s *Session) handleDeviceError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.logger.Error("vad: microphone stream failed", "err", err)
	stream := s.teardownLocked(EventDeviceError)
	s.setStatusLocked(StatusMicrophoneError)
	s.mu.Unlock()

	// The handler runs on the stream's delivery goroutine, which Close waits
	// for.
	if stream != nil {
		go func() {
			if cerr := stream.Close(); cerr != nil {
				s.logger.Warn("vad: close failed stream", "err", cerr)
			}
		}()
	}
}

func (s *Session) handleFrame(gen uint64, f audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateIdle || s.meter == nil {
		return
	}

	level := s.meter.Measure(f)
	for _, fn := range s.onLevel {
		fn(level)
	}
	s.sink.Write(f)

	if IsSoundPresent(level, s.cfg) {
		s.soundPresentLocked()
	} else {
		s.soundAbsentLocked()
	}
}

func (s *Session) soundPresentLocked() {
	switch s.state {
	case StateListening:
		if !s.cfg.RequireExplicitListeningState {
			s.startRecordingLocked(EventSoundPresent)
			return
		}
		s.transitionLocked(StateDetecting, EventSoundPresent)
		s.armLocked(timerDetection, s.cfg.DetectionDelay)
	case StateRecording:
		s.lastSound = s.clock.Now()
		s.silentAt = time.Time{}
		s.armLocked(timerSilence, s.cfg.SilenceDuration)
	}
}

func (s *Session) soundAbsentLocked() {
	switch s.state {
	case StateDetecting:
		s.cancelLocked(timerDetection)
		s.transitionLocked(StateListening, EventSoundAbsent)
	case StateRecording:
		if s.silentAt.IsZero() {
			s.silentAt = s.clock.Now()
		}
	}
}

func (s *Session) startRecordingLocked(ev Event) {
	if err := s.sink.Start(); err != nil {
		s.logger.Error("vad: start capture sink", "err", err)
		if s.state != StateListening {
			s.transitionLocked(StateListening, ev)
		}
		s.setStatusLocked(StatusRecordingError)
		return
	}
	now := s.clock.Now()
	s.startedAt = now
	s.lastSound = now
	s.silentAt = time.Time{}
	s.transitionLocked(StateRecording, ev)
	s.setStatusLocked(StatusRecording)
	s.armLocked(timerSilence, s.cfg.SilenceDuration)
	s.armLocked(timerMaxDuration, s.cfg.MaxRecordingDuration)
}

func (s *Session) stopRecordingLocked(reason StopReason, ev Event) {
	s.cancelLocked(timerSilence)
	s.cancelLocked(timerMaxDuration)

	now := s.clock.Now()
	// A loud frame stands for sound until the next frame arrives, so speech
	// ends at the first quiet frame rather than at the last loud one.
	end := s.lastSound
	switch {
	case reason == StopMaxDuration:
		end = now
	case !s.silentAt.IsZero():
		end = s.silentAt
	}
	clip, err := s.sink.Stop()
	if err != nil {
		s.logger.Error("vad: finalize clip", "err", err)
		clip = nil
	}
	utt := Utterance{
		Clip:      pipeline.Clip{Data: clip, ContentType: s.sink.ContentType()},
		StartedAt: s.startedAt,
		StoppedAt: now,
		Speech:    end.Sub(s.startedAt),
		Reason:    reason,
	}

	switch {
	case len(clip) == 0:
		s.discardLocked(utt, OutcomeEmpty, StatusNoAudio, ev)
	case utt.Speech < s.cfg.MinSpeechDuration:
		s.discardLocked(utt, OutcomeTooShort, StatusTooShort, ev)
	default:
		s.transitionLocked(StateListening, ev)
		s.setStatusLocked(StatusProcessing)
		s.notifyUtteranceLocked(utt, OutcomeEmitted)
		s.submitLocked(utt)
	}
}

func (s *Session) discardLocked(utt Utterance, outcome Outcome, status Status, ev Event) {
	s.transitionLocked(StateDiscarding, ev)
	s.notifyUtteranceLocked(utt, outcome)
	s.setStatusLocked(status)
	s.transitionLocked(StateListening, EventImmediate)
}

func (s *Session) submitLocked(utt Utterance) {
	gen := s.gen
	ctx := s.ctx
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, err := s.adapter.Process(ctx, utt.Clip)
		s.handleResult(gen, utt, res, err)
	}()
}

func (s *Session) handleResult(gen uint64, utt Utterance, res *pipeline.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fn := range s.onResult {
		fn(utt, res, err)
	}
	if err != nil {
		s.logger.Error("vad: process utterance", "err", err, "speech", utt.Speech)
	}
	if gen != s.gen || s.state == StateRecording || s.state == StateIdle {
		return
	}
	switch {
	case err != nil:
		s.setStatusLocked(StatusProcessingError)
	case res.NoSpeech():
		s.setStatusLocked(StatusNoSpeech)
	default:
		s.setStatusLocked(statusForState(s.state))
	}
}

func (s *Session) fire(gen uint64, k timerKind, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.timers[k]
	if gen != s.gen || cur == nil || cur.token != token {
		return
	}
	s.timers[k] = nil

	switch k {
	case timerDetection:
		if s.state == StateDetecting {
			s.startRecordingLocked(EventDetectionTimerFired)
		}
	case timerSilence:
		if s.state == StateRecording {
			s.stopRecordingLocked(StopSilence, EventSilenceTimerFired)
		}
	case timerMaxDuration:
		if s.state == StateRecording {
			s.stopRecordingLocked(StopMaxDuration, EventMaxDurationTimerFired)
		}
	case timerStatus:
		s.setStatusLocked(statusForState(s.state))
	}
}

func (s *Session) armLocked(k timerKind, d time.Duration) {
	s.cancelLocked(k)
	s.nextToken++
	gen, token := s.gen, s.nextToken
	t := s.clock.AfterFunc(d, func() { s.fire(gen, k, token) })
	s.timers[k] = &armedTimer{timer: t, token: token}
}

func (s *Session) cancelLocked(k timerKind) {
	if t := s.timers[k]; t != nil {
		t.timer.Stop()
		s.timers[k] = nil
	}
}

func (s *Session) transitionLocked(to State, ev Event) {
	from := s.state
	if !ValidTransition(from, to) {
		s.logger.Error("vad: state machine", "err", &InvalidTransitionError{From: from, To: to}, "event", ev)
	}
	s.state = to
	if from == to {
		return
	}
	change := StateChange{From: from, To: to, Event: ev, At: s.clock.Now()}
	s.logger.Debug("vad: state change", "from", from, "to", to, "event", ev)
	for _, fn := range s.onState {
		fn(change)
	}
}

// setStatusLocked publishes a label and schedules the revert of transient
// ones.
func (s *Session) setStatusLocked(st Status) {
	s.cancelLocked(timerStatus)
	if s.status != st {
		s.status = st
		for _, fn := range s.onStatus {
			fn(st)
		}
	}
	if d := s.grace.forStatus(st); d > 0 && s.state != StateIdle {
		s.armLocked(timerStatus, d)
	}
}

func (s *Session) notifyUtteranceLocked(utt Utterance, o Outcome) {
	for _, fn := range s.onUtterance {
		fn(utt, o)
	}
}

// String implements fmt.Stringer for log output.
func (u Utterance) String() string {
	return fmt.Sprintf("utterance(%s, speech=%v, %d bytes)", u.Reason, u.Speech, len(u.Clip.Data))
}
