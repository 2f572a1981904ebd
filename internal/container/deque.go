package container

import "fmt"

// Deque is a ring-buffer ordered list with O(1) operations at both ends.
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

func (d *Deque[T]) Len() int { return d.n }

func (d *Deque[T]) grow() {
	if d.n < len(d.buf) {
		return
	}
	next := make([]T, len(d.buf)*2)
	for i := 0; i < d.n; i++ {
		next[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = next
	d.head = 0
}

func (d *Deque[T]) PushBack(v T) {
	d.grow()
	d.buf[(d.head+d.n)%len(d.buf)] = v
	d.n++
}

func (d *Deque[T]) PushFront(v T) {
	d.grow()
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = v
	d.n++
}

func (d *Deque[T]) PopFront() (T, error) {
	var zero T
	if d.n == 0 {
		return zero, ErrEmpty
	}
	v := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.n--
	return v, nil
}

func (d *Deque[T]) PopBack() (T, error) {
	var zero T
	if d.n == 0 {
		return zero, ErrEmpty
	}
	i := (d.head + d.n - 1) % len(d.buf)
	v := d.buf[i]
	d.buf[i] = zero
	d.n--
	return v, nil
}

func (d *Deque[T]) Front() (T, error) {
	var zero T
	if d.n == 0 {
		return zero, ErrEmpty
	}
	return d.buf[d.head], nil
}

func (d *Deque[T]) Back() (T, error) {
	var zero T
	if d.n == 0 {
		return zero, ErrEmpty
	}
	return d.buf[(d.head+d.n-1)%len(d.buf)], nil
}

// At returns the i-th element counted from the front.
func (d *Deque[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= d.n {
		return zero, fmt.Errorf("Deque.At(%d): %w", i, ErrIndexOutOfRange)
	}
	return d.buf[(d.head+i)%len(d.buf)], nil
}

// Slice copies the contents front to back.
func (d *Deque[T]) Slice() []T {
	out := make([]T, d.n)
	for i := range out {
		out[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	return out
}
