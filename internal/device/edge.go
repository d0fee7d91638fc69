package device

// Edge pairs the value observed on this tick with the value acted upon on a
// previous tick.
type Edge[T comparable] struct {
	current  T
	previous T
}

// NewEdge returns an edge whose current and previous values are both initial.
func NewEdge[T comparable](initial T) Edge[T] {
	return Edge[T]{current: initial, previous: initial}
}

// Observe records the value seen on this tick and reports whether it differs
// from the previous one.
func (e *Edge[T]) Observe(v T) bool {
	e.current = v
	return e.Changed()
}

// Changed reports whether the current value differs from the previous one.
func (e *Edge[T]) Changed() bool { return e.current != e.previous }

// Commit makes the current value the previous one.
func (e *Edge[T]) Commit() { e.previous = e.current }

func (e *Edge[T]) Current() T  { return e.current }
func (e *Edge[T]) Previous() T { return e.previous }
