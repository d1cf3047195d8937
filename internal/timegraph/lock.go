package timegraph

import (
	"context"
	"time"
)

// dayLock is a mutex that can give up.
type dayLock struct {
	ch chan struct{}
}

func newDayLock() *dayLock {
	return &dayLock{ch: make(chan struct{}, 1)}
}

func (l *dayLock) acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *dayLock) release() {
	<-l.ch
}
