// Package ratelimit admits or rejects requests per client using a sliding
// window: at most Capacity requests in any trailing Window. Timestamps live in
// a WindowStore so the window state can be kept in process memory or shared
// between proxy replicas through Redis.
package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter defines the admission contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Admit records a request from clientID if it fits in the window.
	Admit(ctx context.Context, clientID string) Decision

	// Stats reports current window occupancy and lifetime counters.
	Stats(ctx context.Context) Stats

	// Close stops background goroutines and releases the store.
	Close() error
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // set only when denied
}

// Stats summarizes limiter state for the metrics endpoint.
type Stats struct {
	ActiveClients    int
	WindowedRequests int64
	Admitted         int64
	Denied           int64
}

// WindowStore holds the per-client timestamp sequences. Record must prune,
// count and append atomically for a given key.
type WindowStore interface {
	// Record drops timestamps at or before now-window and appends now when
	// fewer than capacity remain. It returns whether now was appended and the
	// resulting count.
	Record(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (bool, int, error)

	// Occupancy counts clients and timestamps newer than since.
	Occupancy(ctx context.Context, since time.Time) (clients int, requests int64, err error)

	Close() error
}

// SlidingWindow is the Limiter used by the proxy.
type SlidingWindow struct {
	store    WindowStore
	window   time.Duration
	capacity int
	clock    clockwork.Clock

	admitted atomic.Int64
	denied   atomic.Int64
}

type Option func(*SlidingWindow)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *SlidingWindow) { s.clock = clock }
}

// NewSlidingWindow creates a limiter over store.
func NewSlidingWindow(store WindowStore, window time.Duration, capacity int, opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		store:    store,
		window:   window,
		capacity: capacity,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the configured window duration.
func (s *SlidingWindow) Window() time.Duration { return s.window }

// Capacity returns the configured number of requests per window.
func (s *SlidingWindow) Capacity() int { return s.capacity }

// Admit checks clientID against its window. A denied request does not
// consume a slot and is told to retry after one full window. If the store
// fails the request is admitted.
func (s *SlidingWindow) Admit(ctx context.Context, clientID string) Decision {
	now := s.clock.Now()
	d := Decision{
		Limit:   s.capacity,
		ResetAt: now.Add(s.window),
	}

	allowed, count, err := s.store.Record(ctx, clientID, now, s.window, s.capacity)
	if err != nil {
		slog.Warn("Rate limit store unavailable, admitting request",
			"client", clientID,
			"error", err,
		)
		s.admitted.Add(1)
		d.Allowed = true
		d.Remaining = s.capacity - 1
		return d
	}

	if !allowed {
		s.denied.Add(1)
		d.RetryAfter = s.window
		return d
	}

	s.admitted.Add(1)
	d.Allowed = true
	d.Remaining = max(s.capacity-count, 0)
	return d
}

// Stats reports occupancy of the current window. Store failures are logged
// and yield zero occupancy.
func (s *SlidingWindow) Stats(ctx context.Context) Stats {
	st := Stats{
		Admitted: s.admitted.Load(),
		Denied:   s.denied.Load(),
	}

	clients, requests, err := s.store.Occupancy(ctx, s.clock.Now().Add(-s.window))
	if err != nil {
		slog.Warn("Failed to read rate limit occupancy", "error", err)
		return st
	}
	st.ActiveClients = clients
	st.WindowedRequests = requests
	return st
}

// Close closes the underlying store.
func (s *SlidingWindow) Close() error {
	return s.store.Close()
}
