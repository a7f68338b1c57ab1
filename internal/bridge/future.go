package bridge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRejected is used when a future is rejected without a cause.
var ErrRejected = errors.New("future rejected")

// Future is a single-assignment value that settles at most once.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Wait returns a future that resolves with no value once d has elapsed.
// The timer cannot be cancelled.
func Wait(d time.Duration) *Future {
	f := NewFuture()
	time.AfterFunc(d, func() { f.Resolve(nil) })
	return f
}

// Resolve settles the future with v. It reports false if already settled.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. It reports false if already settled.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a value or error.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
