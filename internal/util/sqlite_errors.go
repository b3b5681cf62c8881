// ABOUTME: SQLite concurrency error detection and a retry helper for writes
// ABOUTME: Busy and locked errors are retried with the shared exponential backoff
package util

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteBusyError reports whether err is a SQLITE_BUSY error.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError reports whether err is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports either form of SQLite lock contention.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// RetryOnConflict runs fn, retrying up to maxRetries times while it fails
// with a SQLite conflict error. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := Backoff(ctx, baseDelay, attempt); err != nil {
				return err
			}
		}
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
	}
	return err
}
