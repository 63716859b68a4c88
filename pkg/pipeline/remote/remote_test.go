package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/pipeline/remote"
)

func TestClient_Process(t *testing.T) {
	t.Parallel()

	var gotField, gotName, gotType string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotField = "audio"
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transcription": "what time is it",
			"response":      "It is noon.",
			"audioUrl":      "/responses/abc.wav",
		})
	}))
	defer srv.Close()

	c, err := remote.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Process(context.Background(), pipeline.Clip{Data: []byte("RIFF...."), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if gotField != "audio" || gotName != "recording.wav" || gotType != "audio/wav" || string(gotData) != "RIFF...." {
		t.Errorf("upload = field %q name %q type %q data %q", gotField, gotName, gotType, gotData)
	}
	if res.Transcript != "what time is it" || res.Reply != "It is noon." {
		t.Errorf("result = %+v", res)
	}
	if want := srv.URL + "/responses/abc.wav"; res.AudioURL != want {
		t.Errorf("AudioURL = %q, want %q", res.AudioURL, want)
	}
	if res.NoSpeech() {
		t.Error("NoSpeech should be false")
	}
}

func TestClient_Process_NoSpeech(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"transcription":"  ","response":"No speech detected.","audioUrl":null}`)
	}))
	defer srv.Close()

	c, _ := remote.New(srv.URL)
	res, err := c.Process(context.Background(), pipeline.Clip{Data: []byte{0}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.NoSpeech() || res.AudioURL != "" {
		t.Errorf("result = %+v, want no-speech without audio", res)
	}
}

func TestClient_Process_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Error processing audio","details":"stt: upstream down"}`)
	}))
	defer srv.Close()

	c, _ := remote.New(srv.URL)
	_, err := c.Process(context.Background(), pipeline.Clip{Data: []byte{0}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "stt: upstream down") {
		t.Errorf("error = %v, want status and details", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"ftp://host", "localhost:3131", "://"} {
		if _, err := remote.New(u); err == nil {
			t.Errorf("New(%q): expected error", u)
		}
	}
}
