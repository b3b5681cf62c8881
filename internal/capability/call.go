// ABOUTME: Timeout wrapper that turns capability failures into ErrUnavailable
// ABOUTME: Every suspension point in the turn pipeline goes through Call
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks a capability failure or timeout.
var ErrUnavailable = errors.New("capability unavailable")

// UnavailableError records which capability failed and why.
type UnavailableError struct {
	Capability string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Capability, e.Err)
}

// Unwrap exposes both ErrUnavailable and the underlying cause to errors.Is.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Call runs fn with a deadline. Any error, including a timeout, is reported
// as an UnavailableError.
func Call[T any](ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, &UnavailableError{Capability: name, Err: r.err}
		}
		return r.val, nil
	case <-ctx.Done():
		return zero, &UnavailableError{Capability: name, Err: ctx.Err()}
	}
}
