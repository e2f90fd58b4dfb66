package util

import (
	"context"
	"sync"
)

// Limiter bounds the number of concurrent operations.
//
// Begin blocks while the limit is reached and returns false if ctx is done
// first. Every successful Begin must be paired with End. Join waits until
// all running operations have ended.
//
//	for _, user := range users {
//		if !limiter.Begin(ctx) {
//			break
//		}
//		go func() {
//			defer limiter.End()
//			refresh(user)
//		}()
//	}
//	limiter.Join()
type Limiter interface {
	Begin(context.Context) bool
	End()
	Join()
}

type empty = struct{}

type limiter struct {
	limitChan chan empty
	mu        sync.Mutex
	cond      *sync.Cond
	count     int
}

func NewLimiter(limit int) Limiter {
	lim := limiter{
		limitChan: make(chan empty, max(limit, 1)),
	}
	lim.cond = sync.NewCond(&lim.mu)
	return &lim
}

func (l *limiter) Begin(ctx context.Context) bool {
	select {
	case l.limitChan <- empty{}:
		l.mu.Lock()
		defer l.mu.Unlock()
		l.count++
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *limiter) End() {
	<-l.limitChan
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count--
	if l.count == 0 {
		l.cond.Broadcast()
	}
}

func (l *limiter) Join() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count > 0 {
		l.cond.Wait()
	}
}
