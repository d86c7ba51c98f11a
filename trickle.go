package jingle

import (
	"time"
)

// Batcher collects local candidates and hands them over in batches. The first
// candidate added to an empty batch arms a single timer; when it fires the full
// batch is flushed. Every method must be called on the dispatcher.
type Batcher struct {
	dispatcher Dispatcher
	interval   time.Duration
	flush      func([]*ICECandidate)
	pending    []*ICECandidate
	timer      Timer
}

func NewBatcher(dispatcher Dispatcher, interval time.Duration, flush func([]*ICECandidate)) *Batcher {
	return &Batcher{dispatcher: dispatcher, interval: interval, flush: flush}
}

func (b *Batcher) Add(candidate *ICECandidate) {
	if b.interval <= 0 {
		b.flush([]*ICECandidate{candidate})
		return
	}
	b.pending = append(b.pending, candidate)
	if b.timer == nil {
		b.timer = b.dispatcher.AfterFunc(b.interval, b.fire)
	}
}

func (b *Batcher) fire() {
	b.timer = nil
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil
	b.flush(batch)
}

func (b *Batcher) Len() int {
	return len(b.pending)
}

// Stop cancels the timer and drops pending candidates.
func (b *Batcher) Stop() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
}
