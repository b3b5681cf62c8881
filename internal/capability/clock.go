// ABOUTME: Injectable clock and seedable random source
// ABOUTME: Tests pin both so game picks and mode splits are reproducible
package capability

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock tells the time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RNG is the random source used for weighted and uniform picks.
type RNG interface {
	Float64() float64
	IntN(n int) int
}

// SeededRNG is a goroutine-safe PCG source.
type SeededRNG struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeededRNG creates a deterministic source. A zero seed uses the clock.
func NewSeededRNG(seed uint64) *SeededRNG {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SeededRNG{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 returns a number in [0, 1).
func (r *SeededRNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// IntN returns a number in [0, n). n must be positive.
func (r *SeededRNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}
