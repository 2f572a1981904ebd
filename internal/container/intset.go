package container

import "math/bits"

// IntSet is a bitset over small non-negative integers. Iteration order is
// always ascending.
type IntSet struct {
	words []uint64
	n     int
}

// NewIntSet returns a set sized for values below hint; it grows on demand.
func NewIntSet(hint int) *IntSet {
	if hint < 0 {
		hint = 0
	}
	return &IntSet{words: make([]uint64, (hint+63)/64)}
}

// Add inserts v and reports whether it was absent. Negative values panic.
func (s *IntSet) Add(v int) bool {
	if v < 0 {
		panic("container: IntSet.Add negative value")
	}
	w := v >> 6
	for w >= len(s.words) {
		s.words = append(s.words, 0)
	}
	bit := uint64(1) << uint(v&63)
	if s.words[w]&bit != 0 {
		return false
	}
	s.words[w] |= bit
	s.n++
	return true
}

// Remove deletes v and reports whether it was present.
func (s *IntSet) Remove(v int) bool {
	if !s.Has(v) {
		return false
	}
	s.words[v>>6] &^= uint64(1) << uint(v&63)
	s.n--
	return true
}

func (s *IntSet) Has(v int) bool {
	if v < 0 || v>>6 >= len(s.words) {
		return false
	}
	return s.words[v>>6]&(uint64(1)<<uint(v&63)) != 0
}

func (s *IntSet) Len() int { return s.n }

// Items returns the members in ascending order.
func (s *IntSet) Items() []int {
	out := make([]int, 0, s.n)
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*64+b)
			w &= w - 1
		}
	}
	return out
}

func (s *IntSet) Clear() {
	clear(s.words)
	s.n = 0
}

func (s *IntSet) Clone() *IntSet {
	return &IntSet{words: append([]uint64(nil), s.words...), n: s.n}
}
