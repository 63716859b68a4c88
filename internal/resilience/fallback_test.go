package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func newGroup(names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   []string
		wantOrder []string
		wantErr   bool
	}{
		{"primary succeeds", nil, []string{"openai"}, false},
		{"primary fails", []string{"openai"}, []string{"openai", "whisper"}, false},
		{"all fail", []string{"openai", "whisper"}, []string{"openai", "whisper"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup("openai", "whisper")

			var order []string
			err := fg.Execute(context.Background(), func(v string) error {
				order = append(order, v)
				if slices.Contains(tc.failing, v) {
					return errTest
				}
				return nil
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Errorf("err = %v, want ErrAllFailed", err)
				}
				if !errors.Is(err, errTest) {
					t.Errorf("err = %v, want it to wrap the last failure", err)
				}
			}
			if !slices.Equal(order, tc.wantOrder) {
				t.Errorf("order = %v, want %v", order, tc.wantOrder)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newGroup("openai", "whisper")

	failPrimary := func(v string) error {
		if v == "openai" {
			return errTest
		}
		return nil
	}
	for range 2 {
		_ = fg.Execute(context.Background(), failPrimary)
	}
	if got := fg.Breaker("openai").State(); got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}

	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(called, []string{"whisper"}) {
		t.Errorf("called = %v, want [whisper]", called)
	}
}

func TestFallbackGroup_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	fg := newGroup("openai", "whisper")

	ctx, cancel := context.WithCancel(context.Background())
	var called []string
	err := fg.Execute(ctx, func(v string) error {
		called = append(called, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("cancellation must not be reported as ErrAllFailed")
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only the primary", called)
	}
}

func TestFallbackGroup_OnError(t *testing.T) {
	t.Parallel()

	var reported []string
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		OnError: func(provider string, err error) {
			if !errors.Is(err, errTest) {
				t.Errorf("OnError err = %v", err)
			}
			reported = append(reported, provider)
		},
	})
	fg.AddFallback("whisper", "whisper")

	got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
		if v == "openai" {
			return "", errTest
		}
		return "hello from " + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "hello from whisper" {
		t.Errorf("result = %q", got)
	}
	if !slices.Equal(reported, []string{"openai"}) {
		t.Errorf("reported = %v, want [openai]", reported)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	fg := newGroup("piper", "openai")
	if got := fg.Names(); !slices.Equal(got, []string{"piper", "openai"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}
