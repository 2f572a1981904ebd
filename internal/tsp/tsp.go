// Package tsp is a standalone travelling-salesman model over nodes 0..n-1,
// solved by the same evolutionary engine as the routing problems.
//
// A tour may be a round trip (start and end at the same node) or one-way
// with optional fixed start and end nodes. Arc costs are set one by one or
// generated from node coordinates and may be asymmetric.
package tsp

import (
	"errors"
	"fmt"
	"math"

	"elasticroute/internal/container"
	"elasticroute/internal/geo"
)

var (
	ErrEmpty         = errors.New("tsp: at least one node is required")
	ErrUnknownNode   = errors.New("tsp: unknown node")
	ErrBadCost       = errors.New("tsp: cost must be finite and non-negative")
	ErrUndefinedCost = errors.New("tsp: arc cost not defined")
	ErrNoCoordinates = errors.New("tsp: missing coordinates")
	ErrRoundTrip     = errors.New("tsp: round trip needs the same start and end node")
)

// none marks an unset start or end node.
const none = -1

type Problem struct {
	n        int
	costs    *container.Matrix[float64]
	coords   []geo.Coord
	hasCoord []bool
	sys      geo.System

	start, end int
	roundTrip  bool
}

// New returns a model with nodes 0..n-1 and no arc costs. Trips are one-way
// until SetRoundTrip is called.
func New(n int) (*Problem, error) {
	if n < 1 {
		return nil, ErrEmpty
	}
	m, err := container.NewMatrix[float64](n, n)
	if err != nil {
		return nil, fmt.Errorf("tsp: New: %w", err)
	}
	m.Fill(math.NaN())
	for i := 0; i < n; i++ {
		m.Put(i, i, 0)
	}
	return &Problem{n: n, costs: m, start: none, end: none}, nil
}

func (p *Problem) N() int { return p.n }

func (p *Problem) valid(id int) bool { return id >= 0 && id < p.n }

// SetCost sets the cost of the arc from a to b.
func (p *Problem) SetCost(a, b int, c float64) error {
	if !p.valid(a) || !p.valid(b) {
		return fmt.Errorf("%w: arc %d->%d", ErrUnknownNode, a, b)
	}
	if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
		return fmt.Errorf("%w: arc %d->%d: %v", ErrBadCost, a, b, c)
	}
	p.costs.Put(a, b, c)
	return nil
}

// Cost returns the arc cost, NaN while it is undefined.
func (p *Problem) Cost(a, b int) float64 { return p.costs.Get(a, b) }

func (p *Problem) SetCoordSystem(sys geo.System) { p.sys = sys }

func (p *Problem) SetNodeCoord(id int, c geo.Coord) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if p.coords == nil {
		p.coords = make([]geo.Coord, p.n)
		p.hasCoord = make([]bool, p.n)
	}
	p.coords[id] = c
	p.hasCoord[id] = true
	return nil
}

func (p *Problem) hasCoords() bool { return p.coords != nil }

func (p *Problem) checkCoords() error {
	if p.coords == nil {
		return ErrNoCoordinates
	}
	if p.sys == geo.SystemNone {
		return geo.ErrNoSystem
	}
	for i, ok := range p.hasCoord {
		if !ok {
			return fmt.Errorf("%w: node %d", ErrNoCoordinates, i)
		}
	}
	return nil
}

// GenerateBeelineCosts overwrites every arc cost with the beeline distance
// between the node coordinates.
func (p *Problem) GenerateBeelineCosts(metric geo.Metric) error {
	if err := p.checkCoords(); err != nil {
		return fmt.Errorf("tsp: GenerateBeelineCosts: %w", err)
	}
	m, err := geo.DistanceMatrix(p.coords, p.sys, metric)
	if err != nil {
		return fmt.Errorf("tsp: GenerateBeelineCosts: %w", err)
	}
	p.costs = m
	return nil
}

func (p *Problem) SetStart(id int) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: start %d", ErrUnknownNode, id)
	}
	p.start = id
	return nil
}

func (p *Problem) SetEnd(id int) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: end %d", ErrUnknownNode, id)
	}
	p.end = id
	return nil
}

func (p *Problem) SetRoundTrip(round bool) { p.roundTrip = round }

// layout is the regularised shape of every tour: fixed head and tail nodes
// around a free middle that the search permutes.
type layout struct {
	start, end int
	round      bool
	// template lists the start (if any), the free nodes, then the end (if
	// any). Free nodes occupy template[lo:hi].
	template []int
	lo, hi   int
}

// regularize resolves start, end and trip kind. For a round trip a missing
// end is copied from the start and vice versa, and node 0 is used when both
// are missing. A one-way trip with equal start and end becomes a round trip.
func (p *Problem) regularize() (layout, error) {
	l := layout{start: p.start, end: p.end, round: p.roundTrip}
	if l.round {
		switch {
		case l.start != none && l.end != none && l.start != l.end:
			return layout{}, fmt.Errorf("%w: start %d, end %d", ErrRoundTrip, l.start, l.end)
		case l.start == none && l.end == none:
			l.start, l.end = 0, 0
		case l.end == none:
			l.end = l.start
		case l.start == none:
			l.start = l.end
		}
	} else if l.start != none && l.start == l.end {
		l.round = true
	}

	if l.start != none {
		l.template = append(l.template, l.start)
	}
	l.lo = len(l.template)
	for i := 0; i < p.n; i++ {
		if i != l.start && i != l.end {
			l.template = append(l.template, i)
		}
	}
	l.hi = len(l.template)
	if l.end != none {
		l.template = append(l.template, l.end)
	}
	return l, nil
}

// Validate reports the first undefined arc cost or incomplete coordinate
// set.
func (p *Problem) Validate() error {
	for i := 0; i < p.n; i++ {
		for j := 0; j < p.n; j++ {
			if math.IsNaN(p.costs.Get(i, j)) {
				return fmt.Errorf("%w: %d->%d", ErrUndefinedCost, i, j)
			}
		}
	}
	if p.hasCoords() {
		if err := p.checkCoords(); err != nil {
			return err
		}
	}
	_, err := p.regularize()
	return err
}

func (p *Problem) symmetric() bool {
	for i := 0; i < p.n; i++ {
		for j := i + 1; j < p.n; j++ {
			if p.costs.Get(i, j) != p.costs.Get(j, i) {
				return false
			}
		}
	}
	return true
}

// TourCost sums the arc costs along nodes.
func (p *Problem) TourCost(nodes []int) float64 {
	c := 0.0
	for i := 1; i < len(nodes); i++ {
		c += p.costs.Get(nodes[i-1], nodes[i])
	}
	return c
}
