package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memorySlot struct {
	held chan struct{}
	refs int
}

// MemoryLocker is a keyed in-process mutex. Slots are created on first use and
// dropped once no goroutine holds or waits for them.
type MemoryLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]*memorySlot
}

func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		timeout: normalizeTimeout(timeout),
		slots:   make(map[string]*memorySlot),
	}
}

func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	slot := l.join(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case slot.held <- struct{}{}:
	case <-timer.C:
		l.leave(key, slot)
		return ErrLockTimeout
	case <-ctx.Done():
		l.leave(key, slot)
		return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	defer func() {
		<-slot.held
		l.leave(key, slot)
	}()

	return fn(ctx)
}

func (l *MemoryLocker) join(key string) *memorySlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &memorySlot{held: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) leave(key string, slot *memorySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
