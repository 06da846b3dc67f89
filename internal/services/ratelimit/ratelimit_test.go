package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const userUID = "550e8400-e29b-41d4-a716-446655440000"

type memoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	err      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{attempts: make(map[string][]time.Time)}
}

func (s *memoryStore) RecordAttempt(_ context.Context, userUID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.attempts[userUID] = append(s.attempts[userUID], at)
	return nil
}

func (s *memoryStore) AttemptsSince(_ context.Context, userUID string, since time.Time) (models.AttemptWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.AttemptWindow{}, s.err
	}
	var w models.AttemptWindow
	for _, at := range s.attempts[userUID] {
		if !at.After(since) {
			continue
		}
		w.Count++
		if w.Oldest == nil || at.Before(*w.Oldest) {
			t := at
			w.Oldest = &t
		}
	}
	return w, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newLimiter(store Store, clock *fakeClock) *Limiter {
	return New(store, time.Minute, 10, newNoopLogger(), WithClock(clock.Now))
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := newLimiter(newMemoryStore(), clock)

	for i := range 10 {
		st, err := l.Check(ctx, userUID)
		require.NoError(t, err)
		require.True(t, st.Allowed, "attempt %d", i+1)
		assert.Equal(t, 10-i, st.Remaining)
		require.NoError(t, l.Record(ctx, userUID))
		clock.Advance(time.Second)
	}

	st, err := l.Check(ctx, userUID)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 0, st.Remaining)
	// первая попытка была 10 секунд назад, окно минута
	assert.Equal(t, 50, st.RetryAfterSeconds)
}

func TestLimiter_WindowSlides(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := newLimiter(newMemoryStore(), clock)

	for range 10 {
		require.NoError(t, l.Record(ctx, userUID))
	}
	st, err := l.Check(ctx, userUID)
	require.NoError(t, err)
	require.False(t, st.Allowed)
	assert.Equal(t, 60, st.RetryAfterSeconds)

	clock.Advance(61 * time.Second)

	st, err = l.Check(ctx, userUID)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 10, st.Remaining)
}

func TestLimiter_RetryAfterRoundsUp(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(newMemoryStore(), time.Minute, 1, newNoopLogger(), WithClock(clock.Now))

	require.NoError(t, l.Record(ctx, userUID))
	clock.Advance(59*time.Second + 500*time.Millisecond)

	st, err := l.Check(ctx, userUID)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 1, st.RetryAfterSeconds)
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	l := New(newMemoryStore(), time.Minute, 1, newNoopLogger(), WithClock(clock.Now))

	require.NoError(t, l.Record(ctx, userUID))

	st, err := l.Check(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.True(t, st.Allowed)
}

func TestLimiter_StoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = models.ErrDatabase
	l := newLimiter(store, &fakeClock{now: time.Now()})

	_, err := l.Check(context.Background(), userUID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDatabase))

	err = l.Record(context.Background(), userUID)
	require.ErrorIs(t, err, models.ErrDatabase)
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{in: -time.Second, want: 0},
		{in: 0, want: 0},
		{in: time.Millisecond, want: 1},
		{in: time.Second, want: 1},
		{in: 1500 * time.Millisecond, want: 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ceilSeconds(tt.in), tt.in.String())
	}
}
