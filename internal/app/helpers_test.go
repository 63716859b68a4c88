package app_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxloop/internal/observe"
	clockmock "github.com/MrWong99/voxloop/pkg/clock/mock"
	"github.com/MrWong99/voxloop/pkg/vad"
	vadmock "github.com/MrWong99/voxloop/pkg/vad/mock"
)

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of a Printer
// and the reads of a test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met, reader
}

// sumInt64 adds up every data point of the named int64 sum, optionally
// filtered by one attribute value.
func sumInt64(t *testing.T, reader *sdkmetric.ManualReader, name, attrKey, attrValue string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range data.DataPoints {
				if attrKey != "" {
					v, _ := dp.Attributes.Value(attribute.Key(attrKey))
					if v.AsString() != attrValue {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

// testSessionOptions make sessions deterministic: frame loudness comes from
// vadmock.Frame and timers run on clk.
func testSessionOptions(clk *clockmock.Clock) []vad.Option {
	return []vad.Option{
		vad.WithMeter(vadmock.NewMeter),
		vad.WithClock(clk),
	}
}

func newClock() *clockmock.Clock {
	return clockmock.New(time.Unix(1_700_000_000, 0))
}

// speak drives one utterance through the active session: sound for the
// detection delay plus speech, then silence until the silence timer fires.
func speak(mic *vadmock.Microphone, clk *clockmock.Clock, cfg vad.Config, speech time.Duration) {
	const step = 100 * time.Millisecond
	mic.Deliver(vadmock.Frame(0.5))
	clk.Advance(cfg.DetectionDelay)
	for elapsed := time.Duration(0); elapsed < speech; elapsed += step {
		clk.Advance(step)
		mic.Deliver(vadmock.Frame(0.5))
	}
	mic.Deliver(vadmock.Frame(0))
	clk.Advance(cfg.SilenceDuration)
}

// waitFor polls cond until it holds or five seconds pass. It is for work the
// code under test hands to its own goroutine.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
