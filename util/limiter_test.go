package util_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"umbasa.net/seraph-mounts/util"
)

func TestLimiter(t *testing.T) {
	limiter := util.NewLimiter(2)
	var running, peak atomic.Int32
	wg := sync.WaitGroup{}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !limiter.Begin(context.Background()) {
				return
			}
			defer limiter.End()

			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()
	limiter.Join()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestLimiterCancel(t *testing.T) {
	limiter := util.NewLimiter(1)
	assert.True(t, limiter.Begin(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, limiter.Begin(ctx))
	limiter.End()
	limiter.Join()
}
