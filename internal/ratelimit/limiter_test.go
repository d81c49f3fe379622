package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, window time.Duration, capacity int) (*SlidingWindow, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := NewMemoryStore(clock, 0)
	l := NewSlidingWindow(store, window, capacity, WithClock(clock))
	t.Cleanup(func() { l.Close() })
	return l, clock
}

func TestSlidingWindowAdmitsUpToCapacity(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()

	d := l.Admit(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)

	clock.Advance(10 * time.Second)
	d = l.Admit(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	clock.Advance(10 * time.Second)
	d = l.Admit(ctx, "10.0.0.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.Equal(t, 60, RetryAfterSeconds(d))
	assert.Equal(t, 0, d.Remaining)

	// Past the first admit's window one slot frees up.
	clock.Advance(41 * time.Second)
	d = l.Admit(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)

	d = l.Admit(ctx, "10.0.0.1")
	assert.False(t, d.Allowed, "second admit is still inside the window")

	// Past every window the client starts fresh.
	clock.Advance(2 * time.Minute)
	d = l.Admit(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestSlidingWindowBoundaryIsExclusive(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.True(t, l.Admit(ctx, "c").Allowed)

	clock.Advance(time.Minute - time.Millisecond)
	assert.False(t, l.Admit(ctx, "c").Allowed)

	// A timestamp exactly W old is outside the window.
	clock.Advance(time.Millisecond)
	assert.True(t, l.Admit(ctx, "c").Allowed)
}

func TestSlidingWindowDenialDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.True(t, l.Admit(ctx, "c").Allowed)
	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		require.False(t, l.Admit(ctx, "c").Allowed)
	}

	// Only the single admitted timestamp has to expire.
	clock.Advance(10 * time.Second)
	assert.True(t, l.Admit(ctx, "c").Allowed)
}

func TestSlidingWindowClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	assert.True(t, l.Admit(ctx, "a").Allowed)
	assert.False(t, l.Admit(ctx, "a").Allowed)
	assert.True(t, l.Admit(ctx, "b").Allowed)
}

func TestSlidingWindowStats(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()

	l.Admit(ctx, "a")
	l.Admit(ctx, "a")
	l.Admit(ctx, "a")
	l.Admit(ctx, "b")

	st := l.Stats(ctx)
	assert.Equal(t, 2, st.ActiveClients)
	assert.Equal(t, int64(3), st.WindowedRequests)
	assert.Equal(t, int64(3), st.Admitted)
	assert.Equal(t, int64(1), st.Denied)

	clock.Advance(2 * time.Minute)
	st = l.Stats(ctx)
	assert.Equal(t, 0, st.ActiveClients)
	assert.Equal(t, int64(0), st.WindowedRequests)
	assert.Equal(t, int64(3), st.Admitted, "lifetime counters survive expiry")
}

func TestSlidingWindowConcurrentSameClient(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(ctx, "shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (bool, int, error) {
	args := m.Called(ctx, key, now, window, capacity)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func (m *mockStore) Occupancy(ctx context.Context, since time.Time) (int, int64, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Get(1).(int64), args.Error(2)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

func TestSlidingWindowFailsOpen(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := new(mockStore)
	store.On("Record", mock.Anything, "c", epoch, time.Minute, 5).
		Return(false, 0, errors.New("connection refused"))
	store.On("Occupancy", mock.Anything, epoch.Add(-time.Minute)).
		Return(0, int64(0), errors.New("connection refused"))

	l := NewSlidingWindow(store, time.Minute, 5, WithClock(clock))

	d := l.Admit(context.Background(), "c")
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	st := l.Stats(context.Background())
	assert.Equal(t, int64(1), st.Admitted)
	assert.Zero(t, st.ActiveClients)

	store.AssertExpectations(t)
}

func TestSlidingWindowCloseClosesStore(t *testing.T) {
	store := new(mockStore)
	store.On("Close").Return(nil).Once()

	l := NewSlidingWindow(store, time.Minute, 5)
	require.NoError(t, l.Close())
	store.AssertExpectations(t)
}
