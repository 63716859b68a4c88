package app

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/voxloop/pkg/pipeline"
	"github.com/MrWong99/voxloop/pkg/vad"
)

// Reporter receives what the user should see. Status is called with the
// session lock held and must not block; Result is called from the
// submission goroutine.
type Reporter interface {
	Status(vad.Status)
	Result(vad.Utterance, *pipeline.Result, error)
}

// Printer is a [Reporter] writing plain lines to a terminal.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	last vad.Status
}

var _ Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Status prints s unless it repeats the previous label.
func (p *Printer) Status(s vad.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == p.last {
		return
	}
	p.last = s
	fmt.Fprintf(p.w, "[%s]\n", s)
}

// Result prints the transcript and reply of one utterance. Errors and
// empty transcripts are already shown through the status label.
func (p *Printer) Result(u vad.Utterance, res *pipeline.Result, err error) {
	if err != nil || res == nil || res.NoSpeech() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "You (%s): %s\n", u.Speech.Round(100*time.Millisecond), res.Transcript)
	fmt.Fprintf(p.w, "Assistant: %s\n", res.Reply)
	if res.AudioURL != "" {
		fmt.Fprintf(p.w, "Audio: %s\n", res.AudioURL)
	}
}

// Printf writes a free-form line.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}
