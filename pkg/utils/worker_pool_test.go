package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerPoolLimitsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	var cur, peak atomic.Int64
	for range 8 {
		wp.Execute(func() {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
		})
	}
	wp.Wait()
	require.LessOrEqual(t, peak.Load(), int64(2))
	require.Equal(t, 0, wp.Running())
}

func TestWorkerPoolPanicHandler(t *testing.T) {
	var got atomic.Value
	wp := NewWorkerPool(1, WithPanicHandler(func(r any) { got.Store(r) }))
	wp.Execute(func() { panic("boom") })
	wp.Wait()
	require.Equal(t, "boom", got.Load())
}
