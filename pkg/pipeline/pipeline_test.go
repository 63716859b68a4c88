package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxloop/pkg/pipeline"
)

func TestAdapterFunc(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	var got pipeline.Clip
	var a pipeline.Adapter = pipeline.AdapterFunc(func(_ context.Context, clip pipeline.Clip) (*pipeline.Result, error) {
		got = clip
		if len(clip.Data) == 0 {
			return nil, errBoom
		}
		return &pipeline.Result{Transcript: "hi", Reply: "hello"}, nil
	})

	res, err := a.Process(context.Background(), pipeline.Clip{Data: []byte("RIFF"), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Reply != "hello" || string(got.Data) != "RIFF" {
		t.Errorf("res = %+v, clip = %+v", res, got)
	}
	if _, err := a.Process(context.Background(), pipeline.Clip{}); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want %v", err, errBoom)
	}
}

func TestResult_NoSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *pipeline.Result
		want bool
	}{
		{name: "nil", res: nil, want: true},
		{name: "empty", res: &pipeline.Result{Reply: pipeline.NoSpeechReply}, want: true},
		{name: "whitespace", res: &pipeline.Result{Transcript: " \t\n"}, want: true},
		{name: "words", res: &pipeline.Result{Transcript: "hello"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.NoSpeech(); got != tt.want {
				t.Errorf("NoSpeech() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClip_FilenameOrDefault(t *testing.T) {
	t.Parallel()
	if got := (pipeline.Clip{}).FilenameOrDefault(); got != "recording.wav" {
		t.Errorf("default = %q", got)
	}
	if got := (pipeline.Clip{Filename: "a.wav"}).FilenameOrDefault(); got != "a.wav" {
		t.Errorf("explicit = %q", got)
	}
}
