// Package mock provides a test double for the pipeline.Adapter interface.
//
// Example:
//
//	a := &mock.Adapter{Result: &pipeline.Result{Transcript: "hi", Reply: "hello"}}
//	res, err := a.Process(ctx, clip)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxloop/pkg/pipeline"
)

// Compile-time assertion that Adapter implements pipeline.Adapter.
var _ pipeline.Adapter = (*Adapter)(nil)

// ProcessCall records a single invocation of Process.
type ProcessCall struct {
	Ctx  context.Context
	Clip pipeline.Clip
}

// Adapter is a mock implementation of pipeline.Adapter.
type Adapter struct {
	mu sync.Mutex

	// Result is returned by Process. May be nil.
	Result *pipeline.Result

	// Err, if non-nil, is returned instead of Result.
	Err error

	// Block, if non-nil, makes Process wait until the channel is closed or
	// the context is done.
	Block chan struct{}

	// Calls records every invocation of Process in order.
	Calls []ProcessCall
}

// Process records the call and returns the configured Result/Err.
func (a *Adapter) Process(ctx context.Context, clip pipeline.Clip) (*pipeline.Result, error) {
	a.mu.Lock()
	a.Calls = append(a.Calls, ProcessCall{Ctx: ctx, Clip: clip})
	block, res, err := a.Block, a.Result, a.Err
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CallCount returns the number of Process calls so far.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

// LastClip returns the clip of the most recent call and whether one exists.
func (a *Adapter) LastClip() (pipeline.Clip, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Calls) == 0 {
		return pipeline.Clip{}, false
	}
	return a.Calls[len(a.Calls)-1].Clip, true
}
