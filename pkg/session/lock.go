package session

import "context"

// RequestLock serializes requests against one session. Unlike sync.Mutex,
// waiting for it can be abandoned through a context.
type RequestLock struct {
	sem chan struct{}
}

// NewRequestLock creates an unlocked lock.
func NewRequestLock() *RequestLock {
	return &RequestLock{sem: make(chan struct{}, 1)}
}

// LockWithContext acquires the lock or gives up when ctx is done.
func (l *RequestLock) LockWithContext(ctx context.Context) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryLock acquires the lock only if it is free.
func (l *RequestLock) TryLock() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock. Unlocking an unlocked lock is a no-op.
func (l *RequestLock) Unlock() {
	select {
	case <-l.sem:
	default:
	}
}

// Busy reports whether a request holds the lock.
func (l *RequestLock) Busy() bool {
	return len(l.sem) == 1
}
