package sensor

import "sync/atomic"

// Slot is a single-value, overwrite-latest handoff. Producers Store from any
// goroutine; the consumer Loads the most recent value without blocking.
// Nothing is queued: a value stored twice before a Load is seen once.
type Slot[T any] struct {
	p       atomic.Pointer[T]
	version atomic.Uint64
}

func (s *Slot[T]) Store(v T) {
	s.p.Store(&v)
	s.version.Add(1)
}

// Load returns the latest value and whether one was ever stored.
func (s *Slot[T]) Load() (T, bool) {
	p := s.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Version increments on every Store; consumers use it to skip unchanged values.
func (s *Slot[T]) Version() uint64 { return s.version.Load() }
