package driver

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("loop stopped")

// Loop is the single thread of control of a process. Inbound requests,
// timer firings and connect/disconnect all run as loop tasks, one at a
// time.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Post queues f. It returns false once the loop has stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- f:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues f unless the queue is full or the loop has stopped. It
// never blocks.
func (l *Loop) TryPost(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- f:
		return true
	default:
		return false
	}
}

// Dispatch is Post without the result, for use as a poll.Scheduler
// dispatcher.
func (l *Loop) Dispatch(f func()) {
	l.Post(f)
}

// Do runs fn on the loop and waits for its result. It must not be called
// from a loop task.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if !l.Post(func() { errc <- fn() }) {
		return ErrLoopStopped
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Run executes queued tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.tasks:
			f()
		}
	}
}
