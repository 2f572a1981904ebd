package container

import (
	"cmp"
	"fmt"
	"slices"
)

// Map is a key-unique hash map. Insert refuses to overwrite.
type Map[K comparable, V any] struct {
	m map[K]V
}

func NewMap[K comparable, V any](hint int) *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V, hint)}
}

// Insert adds k→v, failing with ErrDuplicateKey when k is present.
func (m *Map[K, V]) Insert(k K, v V) error {
	if _, ok := m.m[k]; ok {
		return fmt.Errorf("Map.Insert(%v): %w", k, ErrDuplicateKey)
	}
	m.m[k] = v
	return nil
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.m[k]
	return v, ok
}

func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.m[k]
	return ok
}

func (m *Map[K, V]) Delete(k K) bool {
	if _, ok := m.m[k]; !ok {
		return false
	}
	delete(m.m, k)
	return true
}

func (m *Map[K, V]) Len() int { return len(m.m) }

// Range calls fn for every entry until it returns false. Order is unspecified.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for k, v := range m.m {
		if !fn(k, v) {
			return
		}
	}
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m *Map[K, V]) []K {
	keys := make([]K, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
