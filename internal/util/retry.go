// ABOUTME: Retry utilities with exponential backoff and jitter
// ABOUTME: Shared by the LLM adapters and SQLite writes; waits respect context cancellation
package util

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const maxBackoff = 30 * time.Second

// CalculateBackoff returns exponential backoff with jitter.
// Base delay doubles each attempt, capped at 30s, with jitter of +/-25%.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// shift overflows past 30
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

// Backoff sleeps CalculateBackoff(base, attempt), returning early with an
// error when ctx ends.
func Backoff(ctx context.Context, base time.Duration, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := CalculateBackoff(base, attempt)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry %d abandoned: %w", attempt, ctx.Err())
	}
}
