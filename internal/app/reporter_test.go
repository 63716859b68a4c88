package app_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxloop/internal/app"
	"github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/vad"
)

func TestPrinter_StatusDeduplicates(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	p := app.NewPrinter(&out)

	p.Status(vad.StatusListening)
	p.Status(vad.StatusListening)
	p.Status(vad.StatusRecording)
	p.Status(vad.StatusListening)

	want := "[Listening for speech...]\n[Recording...]\n[Listening for speech...]\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrinter_Result(t *testing.T) {
	t.Parallel()

	utt := vad.Utterance{Speech: 1234 * time.Millisecond}
	tests := []struct {
		name  string
		res   *pipeline.Result
		err   error
		wants []string
	}{
		{
			name:  "reply with audio",
			res:   &pipeline.Result{Transcript: "hi", Reply: "hello", AudioURL: "http://x/responses/a.wav"},
			wants: []string{"You (1.2s): hi\n", "Assistant: hello\n", "Audio: http://x/responses/a.wav\n"},
		},
		{
			name:  "reply without audio",
			res:   &pipeline.Result{Transcript: "hi", Reply: "hello"},
			wants: []string{"Assistant: hello\n"},
		},
		{name: "no speech", res: &pipeline.Result{Reply: pipeline.NoSpeechReply}},
		{name: "error", err: errors.New("boom")},
		{name: "nil result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out strings.Builder
			app.NewPrinter(&out).Result(utt, tt.res, tt.err)

			got := out.String()
			if len(tt.wants) == 0 && got != "" {
				t.Errorf("output = %q, want nothing", got)
			}
			for _, want := range tt.wants {
				if !strings.Contains(got, want) {
					t.Errorf("output %q missing %q", got, want)
				}
			}
			if tt.res != nil && tt.res.AudioURL == "" && strings.Contains(got, "Audio:") {
				t.Errorf("output %q should not mention audio", got)
			}
		})
	}
}
