// Package responses keeps synthesized reply audio in memory until the client
// has fetched it.
//
// Entries are addressed by a random UUID, expire after a fixed TTL and are
// evicted oldest-first once the store holds its maximum number of entries.
// Nothing is ever written to disk.
package responses

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxloop/pkg/clock"
)

// ErrNotFound is returned by [Store.Get] for unknown or expired IDs.
var ErrNotFound = errors.New("responses: not found")

// URLPrefix is the HTTP path under which stored audio is served.
const URLPrefix = "/responses/"

// Entry is one stored reply.
type Entry struct {
	ID          string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// Filename returns the name the entry is served under, e.g. "<id>.wav".
func (e Entry) Filename() string { return e.ID + extension(e.ContentType) }

// URL returns the path the entry is served under.
func (e Entry) URL() string { return URLPrefix + e.Filename() }

func extension(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".wav"
	}
}

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the time source. Default: [clock.Real].
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Store is a TTL-bounded in-memory audio store. The zero value is not usable;
// create one with [New].
type Store struct {
	ttl        time.Duration
	maxEntries int
	clock      clock.Clock

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // insertion order, oldest first
}

// New creates a store whose entries live for ttl. At most maxEntries entries are
// kept; maxEntries <= 0 means unbounded.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Store {
	s := &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock.Real{},
		entries:    make(map[string]*Entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put stores data under a fresh ID and returns the new entry.
func (s *Store) Put(data []byte, contentType string) (Entry, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Entry{}, fmt.Errorf("responses: generate id: %w", err)
	}
	e := &Entry{
		ID:          id.String(),
		Data:        data,
		ContentType: contentType,
		CreatedAt:   s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(e.CreatedAt)
	if s.maxEntries > 0 {
		for len(s.order) >= s.maxEntries {
			s.removeOldestLocked()
		}
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	return *e, nil
}

// Get returns the entry with the given ID. Expired entries are reported as
// [ErrNotFound] even if the sweeper has not removed them yet.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e, s.clock.Now()) {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now())
}

// Run sweeps the store every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(e *Entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.CreatedAt) >= s.ttl
}

// sweepLocked relies on entries being appended in CreatedAt order.
func (s *Store) sweepLocked(now time.Time) int {
	n := 0
	for len(s.order) > 0 {
		e := s.entries[s.order[0]]
		if e != nil && !s.expired(e, now) {
			break
		}
		s.removeOldestLocked()
		n++
	}
	return n
}

func (s *Store) removeOldestLocked() {
	delete(s.entries, s.order[0])
	s.order[0] = ""
	s.order = s.order[1:]
}
