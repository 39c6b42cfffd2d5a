// Package eventloop runs closures one at a time on a single goroutine.
//
// Everything that touches session or console state is posted here, so those
// components need no locking: handlers never interleave and run in the order
// they were posted.
package eventloop

import (
	"context"
	"sync"
)

const defaultBuffer = 256

type Loop struct {
	ch       chan func()
	done     chan struct{}
	stopOnce sync.Once
	idle     func()
}

// New creates a loop whose queue holds buf pending handlers.
func New(buf int) *Loop {
	if buf <= 0 {
		buf = defaultBuffer
	}
	return &Loop{ch: make(chan func(), buf), done: make(chan struct{})}
}

// Post queues fn. It blocks while the queue is full and returns false if the
// loop stopped or ctx ended first.
func (l *Loop) Post(ctx context.Context, fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.ch <- fn:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// SetIdle registers fn to run whenever the queue drains. Call before Run.
func (l *Loop) SetIdle(fn func()) { l.idle = fn }

// Run dispatches handlers on the calling goroutine until ctx ends or Stop is
// called. Handlers still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.ch:
			fn()
			if l.idle != nil && len(l.ch) == 0 {
				l.idle()
			}
		case <-l.done:
			return nil
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		}
	}
}

// Stop ends Run after the current handler; safe to call from a handler.
func (l *Loop) Stop() { l.stopOnce.Do(func() { close(l.done) }) }

// Done is closed once the loop stops.
func (l *Loop) Done() <-chan struct{} { return l.done }
