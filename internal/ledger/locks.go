package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a portfolio lock could not be acquired
// within the configured wait.
var ErrLockTimeout = errors.New("ledger: portfolio lock wait timed out")

// Locks serializes work per portfolio id. Different keys never contend.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocks creates a keyed lock table where each acquisition waits at most timeout.
func NewLocks(timeout time.Duration) *Locks {
	return &Locks{
		entries: make(map[string]*lockEntry),
		timeout: timeout,
	}
}

// Acquire blocks until the lock for key is held, the timeout elapses or ctx
// is done. The returned release func is safe to call more than once.
func (l *Locks) Acquire(ctx context.Context, key string) (release func(), err error) {
	e := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-timer.C:
		l.unref(key, e)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locks) ref(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locks) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
