// Package capture reads microphone audio through an external recorder
// process and delivers it as fixed-size mono PCM frames.
//
// Two backends are supported: arecord (ALSA, Linux) and ffmpeg (avfoundation
// on macOS, dshow on Windows, alsa elsewhere). The process writes raw
// 16-bit little-endian PCM to stdout; [Microphone] slices it into frames and
// hands them to a [vad.FrameHandler].
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/vad"
)

// Backend names.
const (
	BackendAuto    = "auto"
	BackendARecord = "arecord"
	BackendFFmpeg  = "ffmpeg"
)

// Defaults applied by [New].
const (
	DefaultSampleRate   = 16000
	DefaultFrameSamples = 2048
	DefaultStartTimeout = 3 * time.Second
)

// ErrStartTimeout is wrapped in the *vad.DeviceError returned by Open when the
// recorder produced no audio within the start timeout.
var ErrStartTimeout = errors.New("capture: no audio before start timeout")

// Config selects and tunes the capture backend.
type Config struct {
	// Backend is "auto", "arecord" or "ffmpeg". Default: "auto".
	Backend string

	// Device is the backend-specific input device. Empty uses the platform
	// default.
	Device string

	// Command overrides the recorder executable path.
	Command string

	SampleRate   int
	FrameSamples int

	// StartTimeout bounds how long Open waits for the first frame.
	StartTimeout time.Duration
}

// Microphone opens capture streams. It implements [vad.Microphone].
type Microphone struct {
	cfg  Config
	name string
	args []string

	// execCommand builds the recorder process; replaced in tests.
	execCommand func(name string, args ...string) *exec.Cmd
}

var _ vad.Microphone = (*Microphone)(nil)

// New resolves the backend for the current platform.
func New(cfg Config) (*Microphone, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameSamples
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}

	plat := platformDefaults()
	backend := cfg.Backend
	if backend == BackendAuto {
		backend = plat.backend
	}

	device := cfg.Device
	var args []string
	switch backend {
	case BackendARecord:
		if device == "" {
			device = "default"
		}
		args = arecordArgs(device, cfg.SampleRate)
	case BackendFFmpeg:
		if device == "" {
			device = plat.ffmpegDevice
		}
		if device == "" {
			return nil, errors.New("capture: ffmpeg on this platform needs an explicit device")
		}
		args = ffmpegArgs(plat.ffmpegFormat, device, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("capture: unknown backend %q", cfg.Backend)
	}

	name := cfg.Command
	if name == "" {
		name = backend
	}
	cfg.Backend = backend
	cfg.Device = device
	return &Microphone{cfg: cfg, name: name, args: args, execCommand: exec.Command}, nil
}

// Command returns the recorder command line, for logging.
func (m *Microphone) Command() string {
	return m.name + " " + strings.Join(m.args, " ")
}

// Format returns the PCM format of delivered frames.
func (m *Microphone) Format() audio.Format {
	return audio.Format{SampleRate: m.cfg.SampleRate, Channels: 1}
}

func arecordArgs(device string, rate int) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(rate),
		"-c", "1",
		"-t", "raw",
		"-q",
		"-",
	}
}

func ffmpegArgs(inputFormat, device string, rate int) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", device,
		"-vn",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}
}

// Open starts the recorder and waits until the first frame arrives, the
// process fails, StartTimeout passes or ctx is done. Any failure is reported
// as a *vad.DeviceError.
func (m *Microphone) Open(ctx context.Context, h vad.FrameHandler) (vad.Stream, error) {
	devErr := func(err error) error {
		return &vad.DeviceError{Device: m.cfg.Device, Err: err}
	}

	if _, err := exec.LookPath(m.name); err != nil {
		return nil, devErr(fmt.Errorf("capture: %s not found: %w", m.name, err))
	}

	cmd := m.execCommand(m.name, m.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, devErr(fmt.Errorf("capture: stdout pipe: %w", err))
	}
	stderr := &tailBuffer{max: 4 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, devErr(fmt.Errorf("capture: start %s: %w", m.name, err))
	}
	slog.Debug("capture started", "cmd", m.Command(), "pid", cmd.Process.Pid)

	s := &stream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		h:      h,
		format: m.Format(),
		frame:  m.cfg.FrameSamples * audio.BytesPerSample,
		done:   make(chan struct{}),
	}
	first := make(chan error, 1)
	go s.run(first)

	timer := time.NewTimer(m.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-first:
		if err != nil {
			return nil, devErr(err)
		}
		return s, nil
	case <-timer.C:
		_ = s.Close()
		return nil, devErr(ErrStartTimeout)
	case <-ctx.Done():
		_ = s.Close()
		return nil, devErr(ctx.Err())
	}
}

// stream is one running recorder process.
type stream struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *tailBuffer
	h      vad.FrameHandler
	format audio.Format
	frame  int

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// run reads frames until the process ends. The first read result is reported
// on first; afterwards failures go to the handler's OnError.
func (s *stream) run(first chan<- error) {
	defer close(s.done)

	started := false
	var ts time.Duration
	for {
		buf := make([]byte, s.frame)
		_, err := io.ReadFull(s.stdout, buf)
		if err != nil {
			waitErr := s.cmd.Wait()
			if s.closing.Load() {
				if !started {
					first <- errors.New("capture: closed while starting")
				}
				return
			}
			exitErr := s.exitError(err, waitErr)
			if !started {
				first <- exitErr
				return
			}
			if s.h.OnError != nil {
				s.h.OnError(exitErr)
			}
			return
		}

		if !started {
			started = true
			first <- nil
		}
		if s.closing.Load() {
			continue
		}

		f := audio.AudioFrame{
			Data:       buf,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  ts,
		}
		ts += f.Duration()
		if s.h.OnFrame != nil {
			s.h.OnFrame(f)
		}
	}
}

func (s *stream) exitError(readErr, waitErr error) error {
	msg := lastLine(s.stderr.String())
	switch {
	case msg != "":
		return fmt.Errorf("capture: recorder exited: %s", msg)
	case waitErr != nil:
		return fmt.Errorf("capture: recorder exited: %w", waitErr)
	default:
		return fmt.Errorf("capture: read audio: %w", readErr)
	}
}

// Close stops the recorder and waits for the reader goroutine. It must not be
// called from a frame handler.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.Debug("capture: kill recorder", "err", err)
			}
		}
	})
	<-s.done
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
