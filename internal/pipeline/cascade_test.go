package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxloop/internal/observe"
	"github.com/MrWong99/voxloop/internal/responses"
	vpipeline "github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxloop/pkg/provider/llm/mock"
	"github.com/MrWong99/voxloop/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxloop/pkg/provider/stt/mock"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxloop/pkg/provider/tts/mock"
)

type fixture struct {
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	store   *responses.Store
	reader  *sdkmetric.ManualReader
	cascade *Cascade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		stt:    &sttmock.Provider{Transcript: &stt.Transcript{Text: "  What is the capital of France? "}},
		llm:    &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Paris."}},
		tts:    &ttsmock.Provider{Audio: &tts.Audio{Data: []byte("RIFF....WAVE"), ContentType: "audio/wav"}},
		store:  responses.New(time.Minute, 8),
		reader: reader,
	}
	f.cascade, err = New(Stages{
		STT: f.stt, STTName: "openai",
		LLM: f.llm, LLMName: "openai",
		TTS: f.tts, TTSName: "piper",
	}, f.store, Settings{
		SystemPrompt: "You are a helpful assistant.",
		MaxTokens:    300,
		Language:     "en",
		Voice:        tts.Voice{ID: "en_US-ryan-high", Speed: 1},
	}, WithMetrics(met), WithTimeout(time.Minute))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func clip() vpipeline.Clip {
	return vpipeline.Clip{Data: []byte("RIFF-clip"), ContentType: "audio/wav"}
}

func TestCascade_Process(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.cascade.Process(context.Background(), clip())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Transcript != "What is the capital of France?" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if res.Reply != "Paris." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if !strings.HasPrefix(res.AudioURL, "/responses/") || !strings.HasSuffix(res.AudioURL, ".wav") {
		t.Fatalf("AudioURL = %q", res.AudioURL)
	}

	id := strings.TrimSuffix(strings.TrimPrefix(res.AudioURL, "/responses/"), ".wav")
	entry, err := f.store.Get(id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if string(entry.Data) != "RIFF....WAVE" {
		t.Errorf("stored audio = %q", entry.Data)
	}

	sttReq := f.stt.TranscribeCalls[0].Req
	if string(sttReq.Audio) != "RIFF-clip" || sttReq.Filename != "recording.wav" || sttReq.Language != "en" {
		t.Errorf("stt request = %+v", sttReq)
	}

	calls := f.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != "You are a helpful assistant." || req.MaxTokens != 300 {
		t.Errorf("llm request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser ||
		req.Messages[0].Content != "What is the capital of France?" {
		t.Errorf("llm messages = %+v", req.Messages)
	}

	synth := f.tts.SynthesizeCalls[0]
	if synth.Text != "Paris." || synth.Voice.ID != "en_US-ryan-high" {
		t.Errorf("tts call = %+v", synth)
	}
}

func TestCascade_BlankTranscript(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t"} {
		f := newFixture(t)
		f.stt.Transcript = &stt.Transcript{Text: text}

		res, err := f.cascade.Process(context.Background(), clip())
		if err != nil {
			t.Fatalf("Process(%q): %v", text, err)
		}
		if res.Transcript != "" || res.Reply != vpipeline.NoSpeechReply || res.AudioURL != "" {
			t.Errorf("Process(%q) = %+v", text, res)
		}
		if !res.NoSpeech() {
			t.Errorf("NoSpeech() = false for %q", text)
		}
		if len(f.llm.Calls()) != 0 || f.tts.CallCount() != 0 {
			t.Errorf("later stages ran for blank transcript %q", text)
		}
	}
}

func TestCascade_StageErrors(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(*fixture)
		wantMsg string
		wantLLM int
		wantTTS int
	}{
		{
			name:    "stt fails",
			setup:   func(f *fixture) { f.stt.TranscribeErr = errBoom },
			wantMsg: "pipeline: transcribe: boom",
		},
		{
			name:    "llm fails",
			setup:   func(f *fixture) { f.llm.CompleteErr = errBoom },
			wantMsg: "pipeline: complete: boom",
			wantLLM: 1,
		},
		{
			name:    "tts fails",
			setup:   func(f *fixture) { f.tts.SynthesizeErr = errBoom },
			wantMsg: "pipeline: synthesize: boom",
			wantLLM: 1,
			wantTTS: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tc.setup(f)

			res, err := f.cascade.Process(context.Background(), clip())
			if res != nil {
				t.Errorf("Process returned partial result %+v", res)
			}
			if !errors.Is(err, errBoom) {
				t.Fatalf("err = %v, want boom", err)
			}
			if err.Error() != tc.wantMsg {
				t.Errorf("err = %q, want %q", err, tc.wantMsg)
			}
			if got := len(f.llm.Calls()); got != tc.wantLLM {
				t.Errorf("llm calls = %d, want %d", got, tc.wantLLM)
			}
			if got := f.tts.CallCount(); got != tc.wantTTS {
				t.Errorf("tts calls = %d, want %d", got, tc.wantTTS)
			}
			if f.store.Len() != 0 {
				t.Errorf("store holds %d entries after failure", f.store.Len())
			}
		})
	}
}

func TestCascade_EmptyReply(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "  "}

	if _, err := f.cascade.Process(context.Background(), clip()); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
	if f.tts.CallCount() != 0 {
		t.Error("tts ran for empty reply")
	}
}

func TestCascade_EmptyClip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.cascade.Process(context.Background(), vpipeline.Clip{}); !errors.Is(err, ErrEmptyClip) {
		t.Fatalf("err = %v, want ErrEmptyClip", err)
	}
	if f.stt.CallCount() != 0 {
		t.Error("stt ran for empty clip")
	}
}

func TestCascade_UpdateSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.cascade.Settings()
	s.SystemPrompt = "Answer like a pirate."
	s.Voice = tts.Voice{ID: "en_GB-alan-low", Speed: 1.2}
	f.cascade.UpdateSettings(s)

	if _, err := f.cascade.Process(context.Background(), clip()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.llm.Calls()[0].Req.SystemPrompt; got != "Answer like a pirate." {
		t.Errorf("SystemPrompt = %q", got)
	}
	if got := f.tts.SynthesizeCalls[0].Voice; got.ID != "en_GB-alan-low" || got.Speed != 1.2 {
		t.Errorf("Voice = %+v", got)
	}
}

func TestCascade_RecordsMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tts.SynthesizeErr = errors.New("piper down")

	_, _ = f.cascade.Process(context.Background(), clip())

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := map[string]uint64{}
	errorsByProvider := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					counts[m.Name] += dp.Count
				}
			case metricdata.Sum[int64]:
				if m.Name != "voxloop.provider.errors" {
					continue
				}
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key("provider"))
					errorsByProvider[v.AsString()] += dp.Value
				}
			}
		}
	}

	for _, name := range []string{
		"voxloop.stt.duration",
		"voxloop.llm.duration",
		"voxloop.tts.duration",
		"voxloop.pipeline.duration",
	} {
		if counts[name] != 1 {
			t.Errorf("%s count = %d, want 1", name, counts[name])
		}
	}
	if errorsByProvider["piper"] != 1 {
		t.Errorf("piper errors = %d, want 1", errorsByProvider["piper"])
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	store := responses.New(time.Minute, 0)
	full := Stages{STT: &sttmock.Provider{}, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}

	if _, err := New(Stages{LLM: full.LLM, TTS: full.TTS}, store, Settings{}); err == nil {
		t.Error("expected error for missing stt")
	}
	if _, err := New(full, nil, Settings{}); err == nil {
		t.Error("expected error for missing store")
	}
	if _, err := New(full, store, Settings{}); err != nil {
		t.Errorf("New: %v", err)
	}
}
