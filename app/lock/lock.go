// Package lock serializes reconciliation work per transaction id.
package lock

import (
	"context"
	"errors"
	"time"
)

const DefaultTimeout = 10 * time.Second

// ErrLockTimeout is returned when the lock could not be acquired in time. It
// is retryable.
var ErrLockTimeout = errors.New("lock acquisition timed out")

type Locker interface {
	// WithLock runs fn while holding the lock for key. fn is never called
	// when acquisition fails, and the lock is released on every exit path.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func TransactionKey(transactionID string) string {
	return "chip_payment:" + transactionID
}

func normalizeTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
