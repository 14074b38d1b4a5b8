package convoy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadLocks_FIFOOrder(t *testing.T) {
	locks := newThreadLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "t1")
	require.NoError(t, err)

	const waiters = 5
	var mu sync.Mutex
	var order []int
	started := make(chan struct{}, waiters)
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			started <- struct{}{}
			rel, err := locks.acquire(ctx, "t1")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			rel()
		}(i)
		// Ensure this waiter has enqueued before the next starts.
		<-started
		time.Sleep(5 * time.Millisecond)
	}

	release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestThreadLocks_ThreadsIndependent(t *testing.T) {
	locks := newThreadLocks()
	ctx := context.Background()

	rel1, err := locks.acquire(ctx, "t1")
	require.NoError(t, err)
	defer rel1()

	// A different thread acquires without waiting.
	done := make(chan struct{})
	go func() {
		rel2, err := locks.acquire(ctx, "t2")
		assert.NoError(t, err)
		rel2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquisition on an independent thread blocked")
	}
}

func TestThreadLocks_ContextCancellation(t *testing.T) {
	locks := newThreadLocks()

	release, err := locks.acquire(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The holder can still release and the lock stays usable.
	release()
	rel2, err := locks.acquire(context.Background(), "t1")
	require.NoError(t, err)
	rel2()
}

func TestThreadLocks_ReleaseCleansUp(t *testing.T) {
	locks := newThreadLocks()

	release, err := locks.acquire(context.Background(), "t1")
	require.NoError(t, err)
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.threads)
}
