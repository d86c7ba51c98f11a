package volatile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueLoadStore(t *testing.T) {
	v := NewValue(false)
	assert.False(t, v.Load())
	v.Store(true)
	assert.True(t, v.Load())
}

func TestValueCompareAndSwap(t *testing.T) {
	eq := func(a, b int) bool { return a == b }
	v := NewValue(1)
	assert.False(t, v.CompareAndSwap(eq, 2, 3))
	assert.Equal(t, 1, v.Load())
	assert.True(t, v.CompareAndSwap(eq, 1, 3))
	assert.Equal(t, 3, v.Load())
}

func TestValueConcurrentStore(t *testing.T) {
	v := NewValue(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v.Store(i)
			_ = v.Load()
		}(i)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, v.Load(), 0)
}
