package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedQueueRunsInOrder(t *testing.T) {
	q := NewOrderedQueue(4, logrus.NewEntry(logrus.New()))

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, q.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	q.Shutdown()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestOrderedQueueRecoversPanic(t *testing.T) {
	q := NewOrderedQueue(2, logrus.NewEntry(logrus.New()))

	ran := false
	require.NoError(t, q.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, q.Submit(context.Background(), func(context.Context) { ran = true }))
	q.Shutdown()

	assert.True(t, ran)
}

func TestOrderedQueueClosed(t *testing.T) {
	q := NewOrderedQueue(1, logrus.NewEntry(logrus.New()))
	q.Shutdown()
	q.Shutdown()

	err := q.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestOrderedQueueSubmitHonoursContext(t *testing.T) {
	q := NewOrderedQueue(1, logrus.NewEntry(logrus.New()))
	release := make(chan struct{})
	defer func() {
		close(release)
		q.Shutdown()
	}()

	// 占住 worker 和缓冲区
	require.NoError(t, q.Submit(context.Background(), func(context.Context) { <-release }))
	require.NoError(t, q.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter(t *testing.T) {
	t.Run("nil limiter does not block", func(t *testing.T) {
		var limiter *RateLimiter
		assert.NoError(t, limiter.Wait(context.Background()))
		limiter.Close()
	})

	t.Run("initial burst", func(t *testing.T) {
		limiter := NewRateLimiter(3)
		defer limiter.Close()
		for i := 0; i < 3; i++ {
			require.NoError(t, limiter.Wait(context.Background()))
		}
	})

	t.Run("cancelled wait", func(t *testing.T) {
		limiter := NewRateLimiter(1)
		defer limiter.Close()
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
	})

	t.Run("closed limiter stops handing out permits", func(t *testing.T) {
		limiter := NewRateLimiter(1)
		require.NoError(t, limiter.Wait(context.Background()))
		limiter.Close()
		limiter.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.ErrorIs(t, limiter.Wait(ctx), ErrLimiterClosed)
	})
}
