package history

// Deque is a fixed-capacity ring that inserts at the head. Pushing onto a
// full deque overwrites the tail, so the capacity bound cannot be exceeded.
type Deque[T any] struct {
	buf  []T
	head int
	n    int
}

func NewDeque[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{buf: make([]T, capacity)}
}

// PushFront inserts v at the head and reports whether the tail was evicted
func (d *Deque[T]) PushFront(v T) (evicted bool) {
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = v
	if d.n == len(d.buf) {
		return true
	}
	d.n++
	return false
}

// PushBack appends v at the tail; it is dropped when the deque is full
func (d *Deque[T]) PushBack(v T) bool {
	if d.n == len(d.buf) {
		return false
	}
	d.buf[(d.head+d.n)%len(d.buf)] = v
	d.n++
	return true
}

func (d *Deque[T]) Len() int { return d.n }

func (d *Deque[T]) Cap() int { return len(d.buf) }

// Items returns the elements head first
func (d *Deque[T]) Items() []T {
	out := make([]T, d.n)
	for i := range out {
		out[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	return out
}

// RemoveFunc drops every element matching fn and returns how many went
func (d *Deque[T]) RemoveFunc(fn func(T) bool) int {
	items := d.Items()
	var zero T
	for i := range d.buf {
		d.buf[i] = zero
	}
	d.head, d.n = 0, 0

	removed := 0
	for _, v := range items {
		if fn(v) {
			removed++
			continue
		}
		d.PushBack(v)
	}
	return removed
}
