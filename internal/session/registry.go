// ABOUTME: SessionRegistry maps session IDs to state guarded by a per-session lock
// ABOUTME: Turns on one session run one at a time; different sessions run in parallel
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/harper/companion-engine/internal/capability"
)

// ErrOwnerMismatch is returned when a session ID is reused by another user.
var ErrOwnerMismatch = errors.New("session belongs to another user")

type entry struct {
	sem      *semaphore.Weighted
	inFlight atomic.Bool
	// closed is set while holding sem, before the entry leaves the map.
	closed bool
	sess   *Session
}

// Registry owns every live session.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   capability.Clock
	logger  *zap.Logger
	debug   bool
}

// NewRegistry creates an empty registry. With debug set, a detected
// concurrent mutation panics instead of logging.
func NewRegistry(clock capability.Clock, logger *zap.Logger, debug bool) *Registry {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		clock:   clock,
		logger:  logger,
		debug:   debug,
	}
}

func (r *Registry) getOrCreate(sessionID, userID string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		return e, false
	}
	e := &entry{
		sem:  semaphore.NewWeighted(1),
		sess: newSession(sessionID, userID, r.clock.Now()),
	}
	r.entries[sessionID] = e
	return e, true
}

func (r *Registry) lookup(sessionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[sessionID]
}

// acquire takes the entry's lock, returning false if it was evicted while
// waiting.
func (r *Registry) acquire(ctx context.Context, e *entry) (bool, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	if e.closed {
		e.sem.Release(1)
		return false, nil
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		r.violation("concurrent mutation detected", e.sess.ID)
	}
	return true, nil
}

func (r *Registry) release(e *entry) {
	if !e.inFlight.CompareAndSwap(true, false) {
		r.violation("session released twice", e.sess.ID)
	}
	e.sem.Release(1)
}

func (r *Registry) violation(msg, sessionID string) {
	if r.debug {
		panic(fmt.Sprintf("session %s: %s", sessionID, msg))
	}
	r.logger.Error("session invariant violated",
		zap.String("session_id", sessionID),
		zap.String("violation", msg))
}

// WithSession runs fn while holding the session's lock, creating the session
// on first use. Waiters are served in arrival order. created reports whether
// this call made the session.
func (r *Registry) WithSession(ctx context.Context, sessionID, userID string, fn func(s *Session, created bool) error) error {
	for {
		e, created := r.getOrCreate(sessionID, userID)
		ok, err := r.acquire(ctx, e)
		if err != nil {
			return fmt.Errorf("failed to acquire session %s: %w", sessionID, err)
		}
		if !ok {
			// evicted while we waited; resolve again
			continue
		}
		if e.sess.UserID != userID {
			r.release(e)
			return fmt.Errorf("session %s: %w", sessionID, ErrOwnerMismatch)
		}
		return r.run(e, func() error { return fn(e.sess, created) })
	}
}

func (r *Registry) run(e *entry, fn func() error) error {
	defer r.release(e)
	return fn()
}

// End evicts a session after running fn under its lock. It reports false
// when the session does not exist.
func (r *Registry) End(ctx context.Context, sessionID string, fn func(s *Session)) (bool, error) {
	e := r.lookup(sessionID)
	if e == nil {
		return false, nil
	}
	ok, err := r.acquire(ctx, e)
	if err != nil {
		return false, fmt.Errorf("failed to acquire session %s: %w", sessionID, err)
	}
	if !ok {
		return false, nil
	}
	r.evict(e, fn)
	return true, nil
}

func (r *Registry) evict(e *entry, fn func(s *Session)) {
	defer r.release(e)
	if fn != nil {
		fn(e.sess)
	}
	e.closed = true
	r.mu.Lock()
	delete(r.entries, e.sess.ID)
	r.mu.Unlock()
}

// EvictIdle ends every session with no activity for longer than idle.
// Sessions busy with a turn are skipped. It returns the evicted IDs.
func (r *Registry) EvictIdle(idle time.Duration, fn func(s *Session)) []string {
	if idle <= 0 {
		return nil
	}
	now := r.clock.Now()
	var evicted []string
	for _, e := range r.snapshot() {
		if !e.sem.TryAcquire(1) {
			continue
		}
		if e.closed || now.Sub(e.sess.IdleSince()) <= idle {
			e.sem.Release(1)
			continue
		}
		if !e.inFlight.CompareAndSwap(false, true) {
			r.violation("concurrent mutation detected", e.sess.ID)
		}
		evicted = append(evicted, e.sess.ID)
		r.evict(e, fn)
	}
	sort.Strings(evicted)
	return evicted
}

func (r *Registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the live session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
