package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("tts-1", WithVoice("nova"), WithInstructions("calm"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams("hello", tts.Voice{})
	if string(params.Voice) != "nova" {
		t.Errorf("Voice = %q, want nova", params.Voice)
	}
	if params.Speed.Valid() {
		t.Errorf("Speed should be unset, got %v", params.Speed.Value)
	}
	if params.Instructions.Value != "calm" {
		t.Errorf("Instructions = %q, want calm", params.Instructions.Value)
	}

	params = p.buildParams("hello", tts.Voice{ID: "echo", Speed: 1.5})
	if string(params.Voice) != "echo" {
		t.Errorf("Voice = %q, want echo", params.Voice)
	}
	if params.Speed.Value != 1.5 {
		t.Errorf("Speed = %v, want 1.5", params.Speed.Value)
	}
}

func TestSynthesize_AgainstServer(t *testing.T) {
	wav, err := audio.EncodeWAV(make([]byte, 320), audio.SpeechFormat)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, _ := New("tts-1", WithBaseURL(srv.URL+"/v1"), WithMaxRetries(0))
	a, err := p.Synthesize(context.Background(), "Paris.", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if path != "/v1/audio/speech" {
		t.Errorf("path = %q, want /v1/audio/speech", path)
	}
	if body["input"] != "Paris." || body["voice"] != DefaultVoice || body["response_format"] != "wav" {
		t.Errorf("unexpected request body: %v", body)
	}
	if a.ContentType != audio.WAVContentType || len(a.Data) != len(wav) {
		t.Errorf("unexpected audio: %s, %d bytes", a.ContentType, len(a.Data))
	}
}

func TestSynthesize_RejectsNonWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3garbage"))
	}))
	defer srv.Close()

	p, _ := New("tts-1", WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Fatal("expected error for non-WAV response")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("tts-1")
	if _, err := p.Synthesize(context.Background(), "", tts.Voice{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}
