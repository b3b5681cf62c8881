// ABOUTME: Tests for the session registry's single-flight guarantee and eviction
// ABOUTME: goleak verifies no waiter goroutines outlive a test
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harper/companion-engine/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestWithSession_CreatesOnce(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()

	var createdFlags []bool
	for i := 0; i < 2; i++ {
		err := reg.WithSession(ctx, "s1", "u1", func(s *Session, created bool) error {
			createdFlags = append(createdFlags, created)
			s.InteractionCount++
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []bool{true, false}, createdFlags)
	assert.Equal(t, 1, reg.Len())
	require.NoError(t, reg.WithSession(ctx, "s1", "u1", func(s *Session, _ bool) error {
		assert.Equal(t, 2, s.InteractionCount)
		assert.Equal(t, start, s.StartTime)
		return nil
	}))
}

func TestWithSession_OwnerMismatch(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()
	require.NoError(t, reg.WithSession(ctx, "s1", "u1", func(*Session, bool) error { return nil }))

	err := reg.WithSession(ctx, "s1", "intruder", func(*Session, bool) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestWithSession_PropagatesError(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	boom := errors.New("boom")
	err := reg.WithSession(context.Background(), "s1", "u1", func(*Session, bool) error { return boom })
	assert.ErrorIs(t, err, boom)

	// the lock was released
	require.NoError(t, reg.WithSession(context.Background(), "s1", "u1", func(*Session, bool) error { return nil }))
}

func TestWithSession_SingleFlight(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	active, maxActive := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.WithSession(ctx, "shared", "u1", func(s *Session, _ bool) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				count := s.InteractionCount
				time.Sleep(time.Millisecond)
				s.InteractionCount = count + 1

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	require.NoError(t, reg.WithSession(ctx, "shared", "u1", func(s *Session, _ bool) error {
		assert.Equal(t, n, s.InteractionCount)
		return nil
	}))
}

func TestWithSession_DifferentSessionsRunInParallel(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- reg.WithSession(ctx, "a", "u1", func(*Session, bool) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	finished := make(chan struct{})
	go func() {
		_ = reg.WithSession(ctx, "b", "u2", func(*Session, bool) error { return nil })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("session b blocked behind session a")
	}
	close(release)
	require.NoError(t, <-done)
}

func TestWithSession_ContextCancelled(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- reg.WithSession(context.Background(), "s1", "u1", func(*Session, bool) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := reg.WithSession(ctx, "s1", "u1", func(*Session, bool) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestEnd(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()

	ended, err := reg.End(ctx, "missing", nil)
	require.NoError(t, err)
	assert.False(t, ended)

	require.NoError(t, reg.WithSession(ctx, "s1", "u1", func(s *Session, _ bool) error {
		s.InteractionCount = 7
		return nil
	}))

	var seen int
	ended, err = reg.End(ctx, "s1", func(s *Session) { seen = s.InteractionCount })
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, 7, seen)
	assert.Zero(t, reg.Len())

	// a new turn on the same ID starts fresh
	require.NoError(t, reg.WithSession(ctx, "s1", "u1", func(s *Session, created bool) error {
		assert.True(t, created)
		assert.Zero(t, s.InteractionCount)
		return nil
	}))
}

func TestEnd_WaiterResolvesFreshSession(t *testing.T) {
	reg := NewRegistry(testutil.NewClock(start), nil, true)
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	endDone := make(chan error, 1)
	require.NoError(t, reg.WithSession(ctx, "s1", "u1", func(s *Session, _ bool) error {
		s.InteractionCount = 3
		return nil
	}))

	go func() {
		_, err := reg.End(ctx, "s1", func(*Session) {
			close(inside)
			<-release
		})
		endDone <- err
	}()
	<-inside

	turnDone := make(chan int, 1)
	go func() {
		_ = reg.WithSession(ctx, "s1", "u1", func(s *Session, _ bool) error {
			turnDone <- s.InteractionCount
			return nil
		})
	}()

	close(release)
	require.NoError(t, <-endDone)
	assert.Equal(t, 0, <-turnDone)
}

func TestEvictIdle(t *testing.T) {
	clock := testutil.NewClock(start)
	reg := NewRegistry(clock, nil, true)
	ctx := context.Background()

	require.NoError(t, reg.WithSession(ctx, "old", "u1", func(*Session, bool) error { return nil }))
	clock.Advance(20 * time.Minute)
	require.NoError(t, reg.WithSession(ctx, "fresh", "u2", func(*Session, bool) error { return nil }))
	clock.Advance(15 * time.Minute)

	var closed []string
	evicted := reg.EvictIdle(30*time.Minute, func(s *Session) { closed = append(closed, s.ID) })

	assert.Equal(t, []string{"old"}, evicted)
	assert.Equal(t, []string{"old"}, closed)
	assert.Equal(t, []string{"fresh"}, reg.IDs())
	assert.Nil(t, reg.EvictIdle(0, nil))
}

func TestSession_Policy(t *testing.T) {
	s := newSession("s1", "u1", start)

	assert.False(t, s.MicLocked(start))
	s.MicLockedUntil = start.Add(30 * time.Second)
	assert.True(t, s.MicLocked(start.Add(10*time.Second)))
	assert.False(t, s.MicLocked(start.Add(30*time.Second)))

	s.InteractionCount = 60
	assert.InDelta(t, 60, s.InteractionsPerHour(start.Add(10*time.Minute)), 1e-9)
	assert.InDelta(t, 30, s.InteractionsPerHour(start.Add(2*time.Hour)), 1e-9)

	assert.False(t, s.BreakDue(start.Add(19*time.Minute), 20*time.Minute))
	assert.True(t, s.BreakDue(start.Add(21*time.Minute), 20*time.Minute))
	s.LastBreakSuggestion = start.Add(21 * time.Minute)
	assert.False(t, s.BreakDue(start.Add(30*time.Minute), 20*time.Minute))
	assert.False(t, s.BreakDue(start.Add(time.Hour), 0))

	s.ActiveGame = nil
	info := s.Info()
	assert.Equal(t, "s1", info.ID)
	assert.Equal(t, 60, info.InteractionCount)
	assert.Empty(t, info.ActiveGame)
}
