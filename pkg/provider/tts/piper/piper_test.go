package piper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxloop/pkg/audio"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

// sineWAV returns a short valid WAV file.
func sineWAV(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 1600)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	wav, err := audio.EncodeWAV(pcm, audio.Format{SampleRate: 22050, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New("not a url"); err == nil {
		t.Error("expected error for invalid URL")
	}
	p, err := New("http://localhost:8038/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:8038" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestSynthesize_PostsForm(t *testing.T) {
	wav := sineWAV(t)
	var (
		gotPath, gotType, gotText, gotModel, gotScale string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotText = r.PostForm.Get("text")
		gotModel = r.PostForm.Get("model")
		gotScale = r.PostForm.Get("length_scale")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	a, err := p.Synthesize(context.Background(), "The capital of France is Paris.", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotPath != "/synthesize/" {
		t.Errorf("path = %q, want /synthesize/", gotPath)
	}
	if gotType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotType)
	}
	if gotText != "The capital of France is Paris." {
		t.Errorf("text = %q", gotText)
	}
	if gotModel != DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, DefaultModel)
	}
	if gotScale != "" {
		t.Errorf("length_scale = %q, want unset", gotScale)
	}
	if a.ContentType != audio.WAVContentType || len(a.Data) != len(wav) {
		t.Errorf("unexpected audio: %s, %d bytes", a.ContentType, len(a.Data))
	}

	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{ID: "de_DE-thorsten-high", Speed: 2}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotModel != "de_DE-thorsten-high" {
		t.Errorf("model = %q, want voice override", gotModel)
	}
	if gotScale != "0.500" {
		t.Errorf("length_scale = %q, want 0.500", gotScale)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("http://localhost:8038")
	if _, err := p.Synthesize(context.Background(), "  ", tts.Voice{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Synthesize(context.Background(), "hi", tts.Voice{})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestSynthesize_RejectsNonWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Synthesize(context.Background(), "hi", tts.Voice{})
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}
