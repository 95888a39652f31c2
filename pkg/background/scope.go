// Package background groups goroutines which must be cancelled and awaited together.
package background

import (
	"context"
	"sync"
	"time"
)

// Scope - abstract concurrency scope
type Scope struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	scope     sync.WaitGroup
}

// NewScope - concurrency scope builder.
// Returned cancel func cancels scope context and waits all members are done.
func NewScope() (scope *Scope, cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	s := &Scope{
		ctx:       ctx,
		ctxCancel: cancelFunc,
	}
	return s,
		func() {
			s.ctxCancel()
			s.scope.Wait()
		}
}

// Context - return background context
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Add - notifies scope to register processes/workers/layers.
// Based on sync.WaitGroup.
func (s *Scope) Add(delta int) {
	s.scope.Add(delta)
}

// Done - notifies scope when process/worker/layer is done.
// Based on sync.WaitGroup.
func (s *Scope) Done() {
	s.scope.Done()
}

// Go - runs f as scope member.
func (s *Scope) Go(f func(ctx context.Context)) {
	s.Add(1)
	go func() {
		defer s.Done()
		f(s.Context())
	}()
}

// Cancel - cancels scope context without waiting members.
func (s *Scope) Cancel() {
	s.ctxCancel()
}

// Wait - waits all members are done, but no longer than timeout.
// Returns false when timeout has expired first.
func (s *Scope) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.scope.Wait()
		close(done)
	}()
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
