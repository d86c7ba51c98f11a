package jingle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsCallbacksInOrder(t *testing.T) {
	loop := CreateLoop(testLog)
	defer loop.Stop(time.Second)

	var mu sync.Mutex
	var seen []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
	}
	require.NoError(t, loop.Call(func() {}, time.Second))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestLoopPostFromLoop(t *testing.T) {
	loop := CreateLoop(testLog)
	defer loop.Stop(time.Second)

	done := make(chan Signal)
	loop.Post(func() {
		loop.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post did not run")
	}
}

func TestLoopAfterFunc(t *testing.T) {
	loop := CreateLoop(testLog)
	defer loop.Stop(time.Second)

	fired := make(chan Signal, 1)
	loop.AfterFunc(10*time.Millisecond, func() { fired <- SignalInstance })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	stopped := loop.AfterFunc(50*time.Millisecond, func() { fired <- SignalInstance })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoopStop(t *testing.T) {
	loop := CreateLoop(testLog)
	require.NoError(t, loop.Stop(time.Second))
	assert.ErrorIs(t, loop.Call(func() {}, time.Second), ErrLoopStopped)

	ran := false
	loop.Post(func() { ran = true })
	assert.False(t, ran)
}
