package container

import (
	"fmt"
	"math"
)

// Array is an owned growable sequence with checked accessors.
type Array[T any] struct {
	items []T
}

// NewArray returns an empty array with room for capacity elements.
func NewArray[T any](capacity int) *Array[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Array[T]{items: make([]T, 0, capacity)}
}

// Append adds v at the end. Growth doubles the capacity and fails with
// ErrCapacityOverflow instead of wrapping around.
func (a *Array[T]) Append(v T) error {
	if len(a.items) == cap(a.items) {
		n := cap(a.items)
		if n == math.MaxInt {
			return ErrCapacityOverflow
		}
		next := n * 2
		if next < n || n > math.MaxInt/2 {
			next = math.MaxInt
		}
		if next < 4 {
			next = 4
		}
		grown := make([]T, len(a.items), next)
		copy(grown, a.items)
		a.items = grown
	}
	a.items = append(a.items, v)
	return nil
}

// At returns the element at i.
func (a *Array[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(a.items) {
		return zero, fmt.Errorf("Array.At(%d): %w", i, ErrIndexOutOfRange)
	}
	return a.items[i], nil
}

// Set replaces the element at i.
func (a *Array[T]) Set(i int, v T) error {
	if i < 0 || i >= len(a.items) {
		return fmt.Errorf("Array.Set(%d): %w", i, ErrIndexOutOfRange)
	}
	a.items[i] = v
	return nil
}

// RemoveAt deletes the element at i, shifting the tail left.
func (a *Array[T]) RemoveAt(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(a.items) {
		return zero, fmt.Errorf("Array.RemoveAt(%d): %w", i, ErrIndexOutOfRange)
	}
	v := a.items[i]
	copy(a.items[i:], a.items[i+1:])
	a.items[len(a.items)-1] = zero
	a.items = a.items[:len(a.items)-1]
	return v, nil
}

func (a *Array[T]) Len() int { return len(a.items) }

func (a *Array[T]) Clear() {
	clear(a.items)
	a.items = a.items[:0]
}

// Slice exposes the live backing slice; callers must not retain it across
// mutations.
func (a *Array[T]) Slice() []T { return a.items }
