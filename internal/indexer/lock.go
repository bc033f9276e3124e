package indexer

import (
	"context"
	"sync/atomic"
	"time"
)

// saveLock keeps at most one snapshot save in flight. The periodic saver
// skips a tick when it is held; Flush waits for it.
type saveLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free
func (l *saveLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Acquire polls until the lock is taken or ctx is done
func (l *saveLock) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.TryAcquire() {
				return nil
			}
		}
	}
}

// Release must only be called by the holder
func (l *saveLock) Release() {
	l.held.Store(false)
}
