package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// clientWindow holds one client's admitted timestamps in ascending order.
type clientWindow struct {
	stamps []time.Time
	window time.Duration
}

// prune drops timestamps at or before now-window.
func (c *clientWindow) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := sort.Search(len(c.stamps), func(i int) bool {
		return c.stamps[i].After(cutoff)
	})
	if i > 0 {
		c.stamps = append(c.stamps[:0], c.stamps[i:]...)
	}
}

// MemoryStore is an in-process WindowStore. A background goroutine
// periodically removes clients whose whole window has expired.
type MemoryStore struct {
	clock           clockwork.Clock
	cleanupInterval time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow
	done    chan struct{}
	closed  bool
}

// NewMemoryStore creates a store and starts the sweep goroutine when
// cleanupInterval is positive.
func NewMemoryStore(clock clockwork.Clock, cleanupInterval time.Duration) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &MemoryStore{
		clock:           clock,
		cleanupInterval: cleanupInterval,
		clients:         make(map[string]*clientWindow),
		done:            make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

// Record implements WindowStore.
func (m *MemoryStore) Record(_ context.Context, key string, now time.Time, window time.Duration, capacity int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[key]
	if !ok {
		c = &clientWindow{}
		m.clients[key] = c
	}
	c.window = window
	c.prune(now)

	if len(c.stamps) >= capacity {
		return false, len(c.stamps), nil
	}
	c.stamps = append(c.stamps, now)
	return true, len(c.stamps), nil
}

// Occupancy implements WindowStore.
func (m *MemoryStore) Occupancy(_ context.Context, since time.Time) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var clients int
	var requests int64
	for _, c := range m.clients {
		n := 0
		for _, ts := range c.stamps {
			if ts.After(since) {
				n++
			}
		}
		if n > 0 {
			clients++
			requests += int64(n)
		}
	}
	return clients, requests, nil
}

// Len returns the number of tracked clients, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Close stops the sweep goroutine.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanup() {
	ticker := m.clock.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.Chan():
			m.sweep()
		}
	}
}

// sweep removes clients with no timestamps left inside their window.
func (m *MemoryStore) sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, c := range m.clients {
		c.prune(now)
		if len(c.stamps) == 0 {
			delete(m.clients, key)
			removed++
		}
	}
	return removed
}
