package jingle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Connect-Club/connectclub-jingle/internal/volatile"
	"github.com/sirupsen/logrus"
)

// Timer is a pending callback scheduled on a Dispatcher.
type Timer interface {
	// Stop prevents the callback from running. It reports whether it did.
	Stop() bool
}

// Dispatcher serializes callbacks onto one logical thread.
type Dispatcher interface {
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a Dispatcher backed by a single goroutine.
type Loop struct {
	log    *logrus.Entry
	done   chan Signal
	wake   chan Signal
	cancel context.CancelFunc
	active *volatile.Value[bool]

	mu    sync.Mutex
	queue []func()
}

func CreateLoop(log *logrus.Entry) *Loop {
	ctx, cancel := context.WithCancel(context.Background())

	loop := &Loop{
		log:    log,
		done:   make(chan Signal),
		wake:   make(chan Signal, 1),
		cancel: cancel,
		active: volatile.NewValue(true),
	}
	go func() {
		defer close(loop.done)
	cycle:
		for {
			select {
			case <-ctx.Done():
				break cycle
			case <-loop.wake:
			}
			for fn := loop.next(); fn != nil; fn = loop.next() {
				if ctx.Err() != nil {
					break cycle
				}
				fn()
			}
		}
	}()
	return loop
}

func (loop *Loop) next() func() {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	if len(loop.queue) == 0 {
		return nil
	}
	fn := loop.queue[0]
	loop.queue[0] = nil
	loop.queue = loop.queue[1:]
	return fn
}

// Post queues fn. It never blocks, so it is safe to call from the loop itself.
func (loop *Loop) Post(fn func()) {
	if !loop.active.Load() {
		loop.log.Warn("loop stopped, dropping callback")
		return
	}
	loop.mu.Lock()
	loop.queue = append(loop.queue, fn)
	loop.mu.Unlock()

	select {
	case loop.wake <- SignalInstance:
	default:
	}
}

const (
	timerPending = iota
	timerFired
	timerStopped
)

type loopTimer struct {
	timer *time.Timer
	state *volatile.Value[int]
}

func sameState(a, b int) bool { return a == b }

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.state.CompareAndSwap(sameState, timerPending, timerStopped)
}

// AfterFunc runs fn on the loop once d has elapsed.
func (loop *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{state: volatile.NewValue(timerPending)}
	t.timer = time.AfterFunc(d, func() {
		loop.Post(func() {
			if t.state.CompareAndSwap(sameState, timerPending, timerFired) {
				fn()
			}
		})
	})
	return t
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine.
func (loop *Loop) Call(fn func(), timeout time.Duration) error {
	if !loop.active.Load() {
		return ErrLoopStopped
	}
	finished := make(chan Signal)
	loop.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-loop.done:
		return ErrLoopStopped
	case <-time.After(timeout):
		return errors.New("timeout")
	}
}

func (loop *Loop) Stop(timeout time.Duration) error {
	loop.active.Store(false)
	loop.cancel()

	select {
	case <-loop.done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout")
	}
}
