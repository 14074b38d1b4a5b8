package convoy

import (
	"context"
	"sync"
)

// threadLocks serializes turn processing per thread. Each thread gets
// a FIFO queue of waiters: acquisition order is arrival order, so
// concurrent turns on one thread are processed in the order they were
// enqueued. Different threads never block each other.
type threadLocks struct {
	mu      sync.Mutex
	threads map[string]*threadQueue
}

type threadQueue struct {
	waiters []chan struct{}
	held    bool
}

func newThreadLocks() *threadLocks {
	return &threadLocks{threads: make(map[string]*threadQueue)}
}

// acquire blocks until the thread lock is held or the context expires.
// Returns a release function on success.
func (l *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	q, ok := l.threads[threadID]
	if !ok {
		q = &threadQueue{}
		l.threads[threadID] = q
	}
	if !q.held {
		q.held = true
		l.mu.Unlock()
		return func() { l.release(threadID) }, nil
	}
	ticket := make(chan struct{})
	q.waiters = append(q.waiters, ticket)
	l.mu.Unlock()

	select {
	case <-ticket:
		return func() { l.release(threadID) }, nil
	case <-ctx.Done():
		l.abandon(threadID, ticket)
		return nil, ctx.Err()
	}
}

// release hands the lock to the next waiter in arrival order, or
// removes the queue when nobody is waiting.
func (l *threadLocks) release(threadID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.threads[threadID]
	if !ok {
		return
	}
	if len(q.waiters) == 0 {
		delete(l.threads, threadID)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// abandon removes a waiter whose context expired. If the ticket was
// granted concurrently with cancellation, the lock is passed on.
func (l *threadLocks) abandon(threadID string, ticket chan struct{}) {
	l.mu.Lock()
	if q, ok := l.threads[threadID]; ok {
		for i, w := range q.waiters {
			if w == ticket {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				l.mu.Unlock()
				return
			}
		}
	}
	l.mu.Unlock()

	// Not in the queue: the ticket was granted before we could back
	// out, so we hold the lock and must release it.
	select {
	case <-ticket:
		l.release(threadID)
	default:
	}
}
