package jingle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherFlushesOnceAfterFirstCandidate(t *testing.T) {
	d := &fakeDispatcher{}
	var batches [][]*ICECandidate
	b := NewBatcher(d, 10*time.Millisecond, func(batch []*ICECandidate) {
		batches = append(batches, batch)
	})

	b.Add(&ICECandidate{Candidate: "c0"})
	d.advance(3 * time.Millisecond)
	b.Add(&ICECandidate{Candidate: "c3"})
	d.advance(5 * time.Millisecond)
	b.Add(&ICECandidate{Candidate: "c8"})
	assert.Equal(t, 1, d.pendingTimers())
	assert.Equal(t, 3, b.Len())
	d.advance(2 * time.Millisecond)

	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
	assert.Equal(t, "c0", batches[0][0].Candidate)
	assert.Equal(t, 0, b.Len())

	d.advance(5 * time.Millisecond)
	b.Add(&ICECandidate{Candidate: "c15"})
	d.advance(9 * time.Millisecond)
	assert.Len(t, batches, 1)
	d.advance(time.Millisecond)
	require.Len(t, batches, 2)
	assert.Equal(t, "c15", batches[1][0].Candidate)
}

func TestBatcherZeroIntervalFlushesEachCandidate(t *testing.T) {
	d := &fakeDispatcher{}
	var batches [][]*ICECandidate
	b := NewBatcher(d, 0, func(batch []*ICECandidate) {
		batches = append(batches, batch)
	})
	b.Add(&ICECandidate{Candidate: "a"})
	b.Add(&ICECandidate{Candidate: "b"})
	assert.Len(t, batches, 2)
	assert.Equal(t, 0, d.pendingTimers())
}

func TestBatcherStopDropsPending(t *testing.T) {
	d := &fakeDispatcher{}
	flushed := 0
	b := NewBatcher(d, 10*time.Millisecond, func([]*ICECandidate) { flushed++ })
	b.Add(&ICECandidate{Candidate: "a"})
	b.Stop()
	d.advance(time.Second)
	assert.Equal(t, 0, flushed)
	assert.Equal(t, 0, b.Len())
}
