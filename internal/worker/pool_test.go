package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_ProcessesEveryJob(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(_ context.Context, _ int) {
		processed.Add(1)
	})

	pool.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), i))
	}
	pool.Stop()

	assert.Equal(t, int64(5), processed.Load())
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(4, 0, func(_ context.Context, _ int) {
		processed.Add(1)
	})
	pool.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, pool.Submit(context.Background(), n))
		}(i)
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int64(100), processed.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int64
	jobs := make([]int, 20)

	Run(context.Background(), 3, jobs, func(_ context.Context, _ int) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
	})

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Positive(t, peak.Load())
}

func TestPool_SubmitRespectsCancellation(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 0, func(_ context.Context, _ int) { <-block })
	pool.Start(context.Background())

	// Occupy the only worker so the unbuffered queue has no reader.
	require.NoError(t, pool.Submit(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	pool.Stop()
}

func TestPool_StopAfterCancelDoesNotHang(t *testing.T) {
	pool := NewPool(2, 50, func(ctx context.Context, _ int) {
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(ctx, i))
	}
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}
}

func TestRun_EmptyJobs(t *testing.T) {
	called := false
	Run(context.Background(), 4, []string{}, func(context.Context, string) { called = true })
	assert.False(t, called)
}
