package evol

import (
	"math"
	"sort"

	"elasticroute/internal/container"
)

type member[G any] struct {
	g    G
	cost float64
	key  string
	near []neighbor // ascending by distance, at most Neighbors long
}

type neighbor struct {
	slot int
	d    float64
}

func (m *member[G]) diversity() float64 {
	if len(m.near) == 0 {
		return 0
	}
	var s float64
	for _, n := range m.near {
		s += n.d
	}
	return s / float64(len(m.near))
}

// population holds the living members in fixed slots so pairwise distances
// can live in one matrix. The extra last row is scratch space for a
// candidate that is still being judged.
type population[G any] struct {
	members []*member[G]
	dist    *container.Matrix[float64]
	k       int
	w       float64
	keys    map[string]int
}

func newPopulation[G any](size, neighbors int, weight float64) (*population[G], error) {
	m, err := container.NewMatrix[float64](size+1, size+1)
	if err != nil {
		return nil, err
	}
	return &population[G]{dist: m, k: neighbors, w: weight, keys: make(map[string]int, size)}, nil
}

func (p *population[G]) len() int { return len(p.members) }

func (p *population[G]) scratch() int { return p.dist.Rows() - 1 }

// best is the slot of the cheapest member, the earliest on ties.
func (p *population[G]) best() int {
	b := 0
	for i, m := range p.members {
		if m.cost < p.members[b].cost {
			b = i
		}
	}
	return b
}

// nearest returns the k smallest distances from slot i to the members,
// skipping i and skip.
func (p *population[G]) nearest(i, skip int) []neighbor {
	out := make([]neighbor, 0, p.k+1)
	for j := range p.members {
		if j == i || j == skip {
			continue
		}
		out = offer(out, neighbor{j, p.dist.Get(i, j)}, p.k)
	}
	return out
}

// offer inserts n into the sorted list, keeping at most k entries.
func offer(list []neighbor, n neighbor, k int) []neighbor {
	if len(list) == k && n.d >= list[k-1].d {
		return list
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].d > n.d })
	if len(list) < k {
		list = append(list, neighbor{})
	}
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}

// stage loads a candidate's distances into the scratch slot and returns its
// nearest neighbours.
func (p *population[G]) stage(dist []float64) *member[G] {
	s := p.scratch()
	c := &member[G]{}
	for j := range p.members {
		p.dist.Put(s, j, dist[j])
		p.dist.Put(j, s, dist[j])
		c.near = offer(c.near, neighbor{j, dist[j]}, p.k)
	}
	return c
}

// fitness scores members and the optional candidate together; higher is
// better. Cost and diversity are min-max normalised over the group.
func (p *population[G]) fitness(cand *member[G]) (members []float64, candidate float64) {
	group := p.members
	if cand != nil {
		group = append(append([]*member[G](nil), p.members...), cand)
	}
	lc, hc := math.Inf(1), math.Inf(-1)
	ld, hd := math.Inf(1), math.Inf(-1)
	div := make([]float64, len(group))
	for i, m := range group {
		div[i] = m.diversity()
		lc, hc = min(lc, m.cost), max(hc, m.cost)
		ld, hd = min(ld, div[i]), max(hd, div[i])
	}
	norm := func(x, lo, hi float64) float64 {
		if hi-lo <= 0 {
			return 0
		}
		return (x - lo) / (hi - lo)
	}
	f := make([]float64, len(group))
	for i, m := range group {
		f[i] = p.w*(1-norm(m.cost, lc, hc)) + (1-p.w)*norm(div[i], ld, hd)
	}
	if cand != nil {
		return f[:len(p.members)], f[len(f)-1]
	}
	return f, 0
}

// worst is the lowest-fitness slot other than the best member.
func (p *population[G]) worst(f []float64) int {
	b := p.best()
	w := -1
	for i := range p.members {
		if i == b {
			continue
		}
		if w < 0 || f[i] < f[w] {
			w = i
		}
	}
	return w
}

// place puts c into slot i, or appends it when i is the current length,
// using the distances staged in the scratch slot. The previous occupant's
// neighbour entries are repaired.
func (p *population[G]) place(i int, c *member[G]) {
	s := p.scratch()
	replacing := i < len(p.members)
	if replacing {
		p.unkey(p.members[i].key)
		p.members[i] = c
	} else {
		p.members = append(p.members, c)
	}
	for j := range p.members {
		if j == i {
			continue
		}
		d := p.dist.Get(s, j)
		p.dist.Put(i, j, d)
		p.dist.Put(j, i, d)
	}
	p.dist.Put(i, i, 0)
	for j, m := range p.members {
		if j == i {
			continue
		}
		if replacing && containsSlot(m.near, i) {
			m.near = p.nearest(j, -1)
			continue
		}
		m.near = offer(m.near, neighbor{i, p.dist.Get(i, j)}, p.k)
	}
	c.near = p.nearest(i, -1)
	p.keys[c.key]++
}

func (p *population[G]) unkey(k string) {
	if p.keys[k] <= 1 {
		delete(p.keys, k)
		return
	}
	p.keys[k]--
}

func containsSlot(list []neighbor, slot int) bool {
	for _, n := range list {
		if n.slot == slot {
			return true
		}
	}
	return false
}

// tournament draws dice members uniformly and returns the fittest slot.
func tournament(f []float64, dice int, draw func(n int) int, exclude int) int {
	best := -1
	for k := 0; k < dice; k++ {
		i := draw(len(f))
		if i == exclude {
			i = (i + 1) % len(f)
		}
		if best < 0 || f[i] > f[best] {
			best = i
		}
	}
	return best
}
