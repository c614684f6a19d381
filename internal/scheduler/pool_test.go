package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	var ran int64
	for i := 0; i < 5; i++ {
		ok, err := pool.Submit(context.Background(), fmt.Sprintf("k%d", i), func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	pool.Wait()

	assert.Equal(t, int64(5), atomic.LoadInt64(&ran))
	assert.Equal(t, int64(5), pool.Metrics().Completed)
}

func TestWorkerPool_ConcurrencyLimit(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Shutdown()

	var current, peak int64
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		_, err := pool.Submit(context.Background(), fmt.Sprintf("k%d", i), func(context.Context) error {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > peak {
				peak = c
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int64(3))
}

func TestWorkerPool_SkipsBusyKey(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	block := make(chan struct{})
	ok, err := pool.Submit(context.Background(), "inst-1", func(context.Context) error {
		<-block
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = pool.Submit(context.Background(), "inst-1", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.False(t, ok)

	close(block)
	pool.Wait()
	assert.Equal(t, int64(1), pool.Metrics().Skipped)

	ok, err = pool.Submit(context.Background(), "inst-1", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)
	pool.Wait()
}

func TestWorkerPool_FailuresAndPanics(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	_, err := pool.Submit(context.Background(), "a", func(context.Context) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = pool.Submit(context.Background(), "b", func(context.Context) error { panic("bad") })
	require.NoError(t, err)
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, int64(2), m.Failed)
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(0), m.Active)
}

func TestWorkerPool_ContextCancelledWhileFull(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	_, err := pool.Submit(context.Background(), "a", func(context.Context) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := pool.Submit(ctx, "b", func(context.Context) error { return nil })
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	pool.Wait()

	// the cancelled key was released
	ok, err = pool.Submit(context.Background(), "b", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()
	pool.Shutdown()

	_, err := pool.Submit(context.Background(), "a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
}
