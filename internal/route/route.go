// Package route implements vehicle routes and complete solutions over a
// frozen vrp.Problem.
//
// A Solution exclusively owns its Routes. Routes reference nodes and requests
// by handle only, so copying or splicing visit slices never aliases state
// between solutions.
package route

import (
	"errors"
	"fmt"
	"sort"

	"elasticroute/internal/vrp"
)

var (
	ErrBadPosition     = errors.New("route: insertion position out of range")
	ErrAlreadyRouted   = errors.New("route: request already on route")
	ErrNotRouted       = errors.New("route: request not on route")
	ErrIncompatible    = errors.New("route: vehicles have different start or end")
	ErrSplitRequest    = errors.New("route: move would split a request")
	ErrPrecedence      = errors.New("route: delivery before pickup")
	ErrInvariantBroken = errors.New("route: assignment invariant broken")
)

// Visit is one stop of a route.
type Visit struct {
	Request vrp.RequestID
	Side    vrp.Side
	Node    vrp.NodeID
	// Delta is the load change at this stop: +quantity for a pickup,
	// -quantity for a delivery.
	Delta float64
}

// Route is the ordered stop sequence of one vehicle.
type Route struct {
	p       *vrp.Problem
	vehicle vrp.VehicleID

	visits []Visit
	// loads[i] is the load after visits[i]; start is the load at departure.
	loads []float64
	start float64
	reqs  []vrp.RequestID // sorted

	cache   Eval
	cacheCM CostModel
	cached  bool
}

func New(p *vrp.Problem, v vrp.VehicleID) *Route {
	return &Route{p: p, vehicle: v}
}

func (r *Route) Vehicle() vrp.VehicleID { return r.vehicle }
func (r *Route) Len() int               { return len(r.visits) }

// Empty reports whether the vehicle serves nothing.
func (r *Route) Empty() bool { return len(r.reqs) == 0 }

// Visits exposes the stop sequence; callers must not modify it.
func (r *Route) Visits() []Visit { return r.visits }

// Requests lists the requests served, ascending.
func (r *Route) Requests() []vrp.RequestID { return r.reqs }

func (r *Route) StartLoad() float64 { return r.start }

// Load is the load on board after the i-th stop.
func (r *Route) Load(i int) float64 { return r.loads[i] }

func (r *Route) Contains(req vrp.RequestID) bool {
	i := sort.Search(len(r.reqs), func(i int) bool { return r.reqs[i] >= req })
	return i < len(r.reqs) && r.reqs[i] == req
}

// Nodes returns the node sequence including the vehicle's start and end when
// they exist. An unused vehicle yields nil.
func (r *Route) Nodes() []vrp.NodeID {
	if r.Empty() {
		return nil
	}
	veh := r.p.Vehicle(r.vehicle)
	out := make([]vrp.NodeID, 0, len(r.visits)+2)
	if veh.Start != vrp.None {
		out = append(out, veh.Start)
	}
	for _, v := range r.visits {
		out = append(out, v.Node)
	}
	if veh.End != vrp.None {
		out = append(out, veh.End)
	}
	return out
}

func (r *Route) Clone() *Route {
	return &Route{
		p:       r.p,
		vehicle: r.vehicle,
		visits:  append([]Visit(nil), r.visits...),
		loads:   append([]float64(nil), r.loads...),
		start:   r.start,
		reqs:    append([]vrp.RequestID(nil), r.reqs...),
		cache:   r.cache,
		cacheCM: r.cacheCM,
		cached:  r.cached,
	}
}

func (r *Route) touch() { r.cached = false }

func (r *Route) visitFor(req vrp.RequestID, side vrp.Side) Visit {
	rq := r.p.Request(req)
	d := rq.Quantity
	if side == vrp.Delivery {
		d = -d
	}
	return Visit{Request: req, Side: side, Node: rq.End(side).Node, Delta: d}
}

// Insert adds req to the route. Positions are indices in the resulting stop
// sequence: the pickup is inserted at pickupPos first, then the delivery at
// deliveryPos, which must come after it. A position is ignored when that side
// is not an explicit stop for this vehicle.
func (r *Route) Insert(req vrp.RequestID, pickupPos, deliveryPos int) error {
	if r.Contains(req) {
		return fmt.Errorf("%w: request %d", ErrAlreadyRouted, req)
	}
	pk, dl := r.p.Explicit(req, r.vehicle)
	n := len(r.visits)
	switch {
	case pk && dl:
		if pickupPos < 0 || pickupPos > n || deliveryPos <= pickupPos || deliveryPos > n+1 {
			return fmt.Errorf("%w: (%d,%d) in route of %d", ErrBadPosition, pickupPos, deliveryPos, n)
		}
	case pk:
		if pickupPos < 0 || pickupPos > n {
			return fmt.Errorf("%w: %d in route of %d", ErrBadPosition, pickupPos, n)
		}
	case dl:
		if deliveryPos < 0 || deliveryPos > n {
			return fmt.Errorf("%w: %d in route of %d", ErrBadPosition, deliveryPos, n)
		}
	}

	if !pk {
		r.shiftAll(r.p.Request(req).Quantity)
	}
	if pk {
		r.insertVisit(pickupPos, r.visitFor(req, vrp.Pickup))
	}
	if dl {
		r.insertVisit(deliveryPos, r.visitFor(req, vrp.Delivery))
	}
	i := sort.Search(len(r.reqs), func(i int) bool { return r.reqs[i] >= req })
	r.reqs = append(r.reqs, 0)
	copy(r.reqs[i+1:], r.reqs[i:])
	r.reqs[i] = req
	r.touch()
	return nil
}

// Remove takes req off the route and returns the positions its stops had, or
// -1 for a side without a stop.
func (r *Route) Remove(req vrp.RequestID) (pickupPos, deliveryPos int, err error) {
	i := sort.Search(len(r.reqs), func(i int) bool { return r.reqs[i] >= req })
	if i == len(r.reqs) || r.reqs[i] != req {
		return -1, -1, fmt.Errorf("%w: request %d", ErrNotRouted, req)
	}
	r.reqs = append(r.reqs[:i], r.reqs[i+1:]...)

	pickupPos, deliveryPos = -1, -1
	for k := len(r.visits) - 1; k >= 0; k-- {
		if r.visits[k].Request != req {
			continue
		}
		if r.visits[k].Side == vrp.Pickup {
			pickupPos = k
		} else {
			deliveryPos = k
		}
		r.removeVisit(k)
	}
	if pk, _ := r.p.Explicit(req, r.vehicle); !pk {
		r.shiftAll(-r.p.Request(req).Quantity)
	}
	r.touch()
	return pickupPos, deliveryPos, nil
}

// Reverse reverses the stops i..j inclusive. It may break pickup/delivery
// precedence; check Valid afterwards when the route holds paired requests.
func (r *Route) Reverse(i, j int) error {
	if i < 0 || j >= len(r.visits) || i > j {
		return fmt.Errorf("%w: reverse(%d,%d) in route of %d", ErrBadPosition, i, j, len(r.visits))
	}
	for a, b := i, j; a < b; a, b = a+1, b-1 {
		r.visits[a], r.visits[b] = r.visits[b], r.visits[a]
	}
	r.refreshLoads(i, j)
	r.touch()
	return nil
}

// Move relocates the stop at from so that it ends up at index to.
func (r *Route) Move(from, to int) error {
	n := len(r.visits)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move(%d,%d) in route of %d", ErrBadPosition, from, to, n)
	}
	if from == to {
		return nil
	}
	v := r.visits[from]
	if from < to {
		copy(r.visits[from:to], r.visits[from+1:to+1])
	} else {
		copy(r.visits[to+1:from+1], r.visits[to:from])
	}
	r.visits[to] = v
	r.refreshLoads(min(from, to), max(from, to))
	r.touch()
	return nil
}

// RecomputeLoads rebuilds the start load and every stop load from scratch.
func (r *Route) RecomputeLoads() {
	r.start = 0
	for _, req := range r.reqs {
		if pk, _ := r.p.Explicit(req, r.vehicle); !pk {
			r.start += r.p.Request(req).Quantity
		}
	}
	r.loads = r.loads[:0]
	cur := r.start
	for _, v := range r.visits {
		cur += v.Delta
		r.loads = append(r.loads, cur)
	}
}

// PeakLoad is the largest load carried at any point of the route.
func (r *Route) PeakLoad() float64 {
	peak := r.start
	for _, l := range r.loads {
		if l > peak {
			peak = l
		}
	}
	return peak
}

// Valid checks completeness and precedence: every explicit side of every
// served request appears exactly once and pickups precede deliveries.
func (r *Route) Valid() error {
	seen := make(map[vrp.RequestID][2]int, len(r.reqs))
	for i, v := range r.visits {
		if !r.Contains(v.Request) {
			return fmt.Errorf("%w: stray stop for request %d", ErrInvariantBroken, v.Request)
		}
		pos, ok := seen[v.Request]
		if !ok {
			pos = [2]int{-1, -1}
		}
		if pos[v.Side] != -1 {
			return fmt.Errorf("%w: request %d visited twice", ErrInvariantBroken, v.Request)
		}
		pos[v.Side] = i
		seen[v.Request] = pos
	}
	for _, req := range r.reqs {
		pk, dl := r.p.Explicit(req, r.vehicle)
		pos, ok := seen[req]
		if !ok {
			pos = [2]int{-1, -1}
		}
		if pk != (pos[vrp.Pickup] >= 0) || dl != (pos[vrp.Delivery] >= 0) {
			return fmt.Errorf("%w: request %d has incomplete stops", ErrInvariantBroken, req)
		}
		if pk && dl && pos[vrp.Pickup] > pos[vrp.Delivery] {
			return fmt.Errorf("%w: request %d", ErrPrecedence, req)
		}
	}
	return nil
}

func (r *Route) loadBefore(i int) float64 {
	if i == 0 {
		return r.start
	}
	return r.loads[i-1]
}

func (r *Route) insertVisit(i int, v Visit) {
	r.visits = append(r.visits, Visit{})
	copy(r.visits[i+1:], r.visits[i:])
	r.visits[i] = v

	l := r.loadBefore(i) + v.Delta
	r.loads = append(r.loads, 0)
	copy(r.loads[i+1:], r.loads[i:])
	r.loads[i] = l
	for k := i + 1; k < len(r.loads); k++ {
		r.loads[k] += v.Delta
	}
}

func (r *Route) removeVisit(i int) {
	d := r.visits[i].Delta
	r.visits = append(r.visits[:i], r.visits[i+1:]...)
	r.loads = append(r.loads[:i], r.loads[i+1:]...)
	for k := i; k < len(r.loads); k++ {
		r.loads[k] -= d
	}
}

func (r *Route) shiftAll(q float64) {
	r.start += q
	for k := range r.loads {
		r.loads[k] += q
	}
}

// refreshLoads recomputes loads[i..j]; loads outside the range keep their
// value because the segment's total delta is unchanged.
func (r *Route) refreshLoads(i, j int) {
	cur := r.loadBefore(i)
	for k := i; k <= j; k++ {
		cur += r.visits[k].Delta
		r.loads[k] = cur
	}
}
