package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxloop/pkg/provider/stt"
	"github.com/MrWong99/voxloop/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// captured holds the multipart fields seen by the mock server.
type captured struct {
	fields   map[string]string
	filename string
	fileType string
	audio    []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. The parsed request is stored in *got.
func newMockServer(t *testing.T, responseText string, got *captured, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			f, hdr, err := r.FormFile("file")
			if err == nil {
				got.filename = hdr.Filename
				got.fileType = hdr.Header.Get("Content-Type")
				got.audio, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
		whisper.WithTemperature(0.2),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_SendsMultipartUpload(t *testing.T) {
	var got captured
	srv := newMockServer(t, "  hello world \n", &got, nil)

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		Audio:       []byte("RIFFdata"),
		ContentType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello world" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello world")
	}
	if got.filename != stt.DefaultFilename {
		t.Errorf("filename = %q, want %q", got.filename, stt.DefaultFilename)
	}
	if got.fileType != "audio/wav" {
		t.Errorf("file content type = %q, want audio/wav", got.fileType)
	}
	if string(got.audio) != "RIFFdata" {
		t.Errorf("audio = %q, want RIFFdata", got.audio)
	}
	if got.fields["language"] != "en" {
		t.Errorf("language = %q, want en", got.fields["language"])
	}
	if got.fields["model"] != "base.en" {
		t.Errorf("model = %q, want base.en", got.fields["model"])
	}
	if got.fields["response_format"] != "json" {
		t.Errorf("response_format = %q, want json", got.fields["response_format"])
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	var got captured
	srv := newMockServer(t, "hallo", &got, nil)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}, Language: "de"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.fields["language"] != "de" {
		t.Errorf("language = %q, want de", got.fields["language"])
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "x", nil, &calls)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestTranscribe_EmptyResponse_IsBlank(t *testing.T) {
	srv := newMockServer(t, "   ", nil, nil)
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1, 2}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !tr.Blank() {
		t.Errorf("expected blank transcript, got %q", tr.Text)
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error %q should mention status and body", err)
	}
}

func TestTranscribe_InvalidJSON_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "x", nil, nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: []byte{1}}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
