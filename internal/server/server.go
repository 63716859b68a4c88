// Package server exposes the voice pipeline over HTTP.
//
// Routes:
//
//   - POST /api/transcribe: multipart upload (field "audio") processed by the
//     pipeline adapter; answers {"transcription","response","audioUrl"}.
//   - GET /responses/{file}: synthesized reply audio, e.g. "<uuid>.wav".
//   - GET /healthz, GET /readyz: liveness and readiness probes.
//   - GET /metrics: Prometheus exposition, when enabled.
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/voxloop/internal/health"
	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/responses"
	"github.com/MrWong99/voxloop/pkg/pipeline"
)

// uploadField is the multipart field carrying the clip.
const uploadField = "audio"

// Error messages returned in the "error" field of failed requests.
const (
	msgNoAudio      = "No audio file provided"
	msgTooLarge     = "Audio file too large"
	msgProcessError = "Error processing audio"
)

// Config wires a [Server].
type Config struct {
	// Adapter processes uploaded clips. Required.
	Adapter pipeline.Adapter

	// Store serves synthesized replies. Required.
	Store *responses.Store

	// Health serves /healthz and /readyz. Defaults to a handler without
	// checkers.
	Health *health.Handler

	// Metrics records HTTP request metrics. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Gatherer, when non-nil, is served at /metrics.
	Gatherer prometheus.Gatherer

	// MaxUploadBytes bounds the request body of /api/transcribe.
	MaxUploadBytes int64
}

// Server is the voxloop HTTP server.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("server: adapter is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: response store is required")
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}

	s := &Server{cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.Handle("GET "+responses.URLPrefix+"{file}", cfg.Store.Handler())
	cfg.Health.Register(mux)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", observe.MetricsHandler(cfg.Gatherer))
	}
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. When certFile and keyFile are both set
// the server speaks TLS.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, certFile, keyFile, shutdownTimeout)
}

// Serve is like ListenAndServe but accepts connections on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", certFile != "")
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ServeTLS(ln, certFile, keyFile)
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	<-errCh
	return nil
}

// transcribeResponse is the success body of /api/transcribe. AudioURL is
// null when no reply audio was produced.
type transcribeResponse struct {
	Transcription string  `json:"transcription"`
	Response      string  `json:"response"`
	AudioURL      *string `json:"audioUrl"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   msgTooLarge,
				Details: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		log.Debug("transcribe request without audio", "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgNoAudio})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgProcessError, Details: err.Error()})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgNoAudio})
		return
	}

	clip := pipeline.Clip{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}
	log.Info("processing clip", "bytes", len(data), "filename", header.Filename, "content_type", clip.ContentType)

	res, err := s.cfg.Adapter.Process(r.Context(), clip)
	if err != nil {
		log.Error("error processing audio", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgProcessError, Details: err.Error()})
		return
	}

	if res == nil {
		res = &pipeline.Result{Reply: pipeline.NoSpeechReply}
	}
	body := transcribeResponse{Transcription: res.Transcript, Response: res.Reply}
	if res.AudioURL != "" {
		body.AudioURL = &res.AudioURL
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
