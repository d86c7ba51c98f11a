package volatile

import "sync"

// Value is a mutex guarded value safe for concurrent Load and Store.
type Value[T any] struct {
	mu sync.RWMutex
	v  T
}

func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

func (x *Value[T]) Load() T {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.v
}

func (x *Value[T]) Store(v T) {
	x.mu.Lock()
	x.v = v
	x.mu.Unlock()
}

// CompareAndSwap stores next when the current value equals old according to eq.
func (x *Value[T]) CompareAndSwap(eq func(a, b T) bool, old, next T) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !eq(x.v, old) {
		return false
	}
	x.v = next
	return true
}
