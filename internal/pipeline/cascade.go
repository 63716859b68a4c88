// Package pipeline implements the in-process voice pipeline behind the
// server's transcribe endpoint.
//
// A [Cascade] runs one uploaded clip through three blocking stages:
//
//  1. STT transcribes the clip. A blank transcript short-circuits with
//     "No speech detected." and no audio.
//  2. The LLM answers the transcript under the configured system prompt.
//  3. TTS synthesizes the answer, and the audio is parked in a
//     [responses.Store] so the client can fetch it by URL.
//
// Any stage error fails the whole request. Each stage is traced and timed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/responses"
	vpipeline "github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/provider/llm"
	"github.com/MrWong99/voxloop/pkg/provider/stt"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

// ErrEmptyClip is returned by [Cascade.Process] for a clip without audio.
var ErrEmptyClip = errors.New("pipeline: empty clip")

// ErrEmptyReply is returned when the model answered with no text.
var ErrEmptyReply = errors.New("pipeline: model returned an empty reply")

// Stage labels used in metrics and span names.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Settings are the hot-swappable parts of the pipeline.
type Settings struct {
	// SystemPrompt is sent ahead of every transcript.
	SystemPrompt string

	// MaxTokens caps the reply length. Zero means the provider default.
	MaxTokens int

	// Temperature for the chat model. Zero means the provider default.
	Temperature float64

	// Language hints the transcription backend. Empty lets it decide.
	Language string

	// Voice selects the synthesis voice.
	Voice tts.Voice
}

// Stages names the providers of each stage. The names label metrics.
type Stages struct {
	STT     stt.Provider
	STTName string
	LLM     llm.Provider
	LLMName string
	TTS     tts.Provider
	TTSName string
}

// Option configures a [Cascade].
type Option func(*Cascade)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cascade) { c.metrics = m }
}

// WithTimeout bounds one Process call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Cascade) { c.timeout = d }
}

// Cascade is the STT, LLM, TTS pipeline. It is safe for concurrent use.
type Cascade struct {
	stages  Stages
	store   *responses.Store
	metrics *observe.Metrics
	timeout time.Duration

	settings atomic.Pointer[Settings]
}

var _ vpipeline.Adapter = (*Cascade)(nil)

// New creates a Cascade storing synthesized replies in store.
func New(stages Stages, store *responses.Store, settings Settings, opts ...Option) (*Cascade, error) {
	if stages.STT == nil || stages.LLM == nil || stages.TTS == nil {
		return nil, errors.New("pipeline: stt, llm and tts providers are required")
	}
	if store == nil {
		return nil, errors.New("pipeline: response store is required")
	}
	c := &Cascade{stages: stages, store: store}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.settings.Store(&settings)
	return c, nil
}

// Settings returns the settings used by new requests.
func (c *Cascade) Settings() Settings { return *c.settings.Load() }

// UpdateSettings swaps the settings. Requests already running keep the
// settings they started with.
func (c *Cascade) UpdateSettings(s Settings) { c.settings.Store(&s) }

// Process transcribes clip, answers it and synthesizes the answer.
func (c *Cascade) Process(ctx context.Context, clip vpipeline.Clip) (res *vpipeline.Result, err error) {
	if len(clip.Data) == 0 {
		return nil, ErrEmptyClip
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	settings := c.Settings()

	ctx, span := observe.StartSpan(ctx, "pipeline.Process",
		trace.WithAttributes(attribute.Int("clip.bytes", len(clip.Data))))
	start := time.Now()
	defer func() {
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("status", status)))
		span.End()
	}()

	log := observe.Logger(ctx)

	var transcript *stt.Transcript
	err = c.stage(ctx, StageSTT, c.stages.STTName, func(ctx context.Context) error {
		var err error
		transcript, err = c.stages.STT.Transcribe(ctx, stt.Request{
			Audio:       clip.Data,
			Filename:    clip.FilenameOrDefault(),
			ContentType: clip.ContentType,
			Language:    settings.Language,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: transcribe: %w", err)
	}
	if transcript.Blank() {
		log.Info("no speech in clip")
		return &vpipeline.Result{Reply: vpipeline.NoSpeechReply}, nil
	}
	text := strings.TrimSpace(transcript.Text)
	log.Debug("transcribed", "text", text)

	var reply *llm.CompletionResponse
	err = c.stage(ctx, StageLLM, c.stages.LLMName, func(ctx context.Context) error {
		var err error
		reply, err = c.stages.LLM.Complete(ctx,
			llm.UserTurn(settings.SystemPrompt, text, settings.MaxTokens, settings.Temperature))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: complete: %w", err)
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return nil, ErrEmptyReply
	}
	answer := strings.TrimSpace(reply.Content)

	var audio *tts.Audio
	err = c.stage(ctx, StageTTS, c.stages.TTSName, func(ctx context.Context) error {
		var err error
		audio, err = c.stages.TTS.Synthesize(ctx, answer, settings.Voice)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: synthesize: %w", err)
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, errors.New("pipeline: synthesize: no audio returned")
	}

	entry, err := c.store.Put(audio.Data, audio.ContentType)
	if err != nil {
		return nil, fmt.Errorf("pipeline: store reply: %w", err)
	}

	log.Info("reply ready",
		"transcript_chars", len(text),
		"reply_chars", len(answer),
		"audio_bytes", len(audio.Data),
		"audio_url", entry.URL())

	return &vpipeline.Result{
		Transcript: text,
		Reply:      answer,
		AudioURL:   entry.URL(),
	}, nil
}

// stage runs fn under its own span and records its latency.
func (c *Cascade) stage(ctx context.Context, kind, provider string, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "pipeline."+kind,
		trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	c.metrics.ObserveStage(ctx, kind, provider, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
