package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue(t *testing.T) {
	t.Run("task runs and returns its value", func(t *testing.T) {
		q := New()
		defer q.Close()

		value, err := q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})

	t.Run("task error propagates", func(t *testing.T) {
		q := New()
		defer q.Close()

		_, err := q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
			return nil, fmt.Errorf("boom")
		})
		assert.EqualError(t, err, "boom")
	})

	t.Run("same lane runs in submit order", func(t *testing.T) {
		q := New()
		defer q.Close()

		var mu sync.Mutex
		var order []int
		var wg sync.WaitGroup

		start := make(chan struct{})
		for i := 0; i < 5; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				// Stagger submissions so enqueue order is deterministic.
				time.Sleep(time.Duration(i) * 20 * time.Millisecond)
				_, _ = q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
					time.Sleep(5 * time.Millisecond)
					return nil, nil
				})
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("lanes run concurrently", func(t *testing.T) {
		q := New()
		defer q.Close()

		var active atomic.Int32
		var peak atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 3; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = q.Enqueue(context.Background(), fmt.Sprintf("s%d", i), func(ctx context.Context) (interface{}, error) {
					cur := active.Add(1)
					for {
						p := peak.Load()
						if cur <= p || peak.CompareAndSwap(p, cur) {
							break
						}
					}
					time.Sleep(50 * time.Millisecond)
					active.Add(-1)
					return nil, nil
				})
			}()
		}
		wg.Wait()

		assert.Greater(t, peak.Load(), int32(1))
	})

	t.Run("one lane never overlaps", func(t *testing.T) {
		q := New()
		defer q.Close()

		var active atomic.Int32
		var overlapped atomic.Bool
		var wg sync.WaitGroup

		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
					if active.Add(1) > 1 {
						overlapped.Store(true)
					}
					time.Sleep(10 * time.Millisecond)
					active.Add(-1)
					return nil, nil
				})
			}()
		}
		wg.Wait()

		assert.False(t, overlapped.Load())
	})
}

func TestReset(t *testing.T) {
	t.Run("waiting tasks are rejected", func(t *testing.T) {
		q := New()
		defer q.Close()

		blocker := make(chan struct{})
		running := make(chan struct{})

		go func() {
			_, _ = q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
				close(running)
				<-blocker
				return nil, nil
			})
		}()
		<-running

		errCh := make(chan error, 1)
		go func() {
			_, err := q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
				return nil, nil
			})
			errCh <- err
		}()

		require.Eventually(t, func() bool {
			return q.Size("s1") == 1
		}, time.Second, 5*time.Millisecond)

		rejected := q.Reset("s1")
		assert.Equal(t, 1, rejected)

		close(blocker)
		assert.ErrorIs(t, <-errCh, ErrLaneReset)
	})

	t.Run("reset of unknown lane is harmless", func(t *testing.T) {
		q := New()
		defer q.Close()
		assert.Equal(t, 0, q.Reset("ghost"))
	})
}

func TestStats(t *testing.T) {
	q := New()
	defer q.Close()

	_, err := q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	stats := q.Stats()
	require.Contains(t, stats, "s1")
	assert.Equal(t, 0, stats["s1"].Waiting)
	assert.False(t, stats["s1"].Running)
}

func TestClose(t *testing.T) {
	t.Run("close rejects new work", func(t *testing.T) {
		q := New()
		q.Close()

		_, err := q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrLaneClosed)
	})

	t.Run("close waits for running task", func(t *testing.T) {
		q := New()

		var finished atomic.Bool
		done := make(chan struct{})
		go func() {
			_, _ = q.Enqueue(context.Background(), "s1", func(ctx context.Context) (interface{}, error) {
				time.Sleep(30 * time.Millisecond)
				finished.Store(true)
				return nil, nil
			})
			close(done)
		}()

		time.Sleep(10 * time.Millisecond)
		q.Close()
		<-done
		assert.True(t, finished.Load())
	})
}
