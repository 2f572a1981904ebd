// Package construct builds initial solutions for the optimizer.
//
// Every builder returns solutions that satisfy route.Solution.CheckInvariant:
// a request it cannot place is left unassigned rather than dropped.
package construct

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"elasticroute/internal/geo"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

var ErrUnknownHeuristic = errors.New("construct: unknown heuristic")

// Heuristic builds up to max solutions for p. Deterministic heuristics
// ignore g and return the same solutions on every call; randomized ones draw
// everything from g. A heuristic that does not apply to p returns no
// solutions and no error.
type Heuristic interface {
	Name() string
	Randomized() bool
	Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, g *rng.RNG, max int) ([]*route.Solution, error)
}

type CheapestInsertion struct{}

func (CheapestInsertion) Name() string     { return "cheapest" }
func (CheapestInsertion) Randomized() bool { return false }

func (CheapestInsertion) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, _ *rng.RNG, _ int) ([]*route.Solution, error) {
	s := route.NewSolution(p)
	if _, err := InsertGreedy(ctx, s, allRequests(p), cm); err != nil {
		return nil, err
	}
	return []*route.Solution{s}, nil
}

type RegretInsertion struct{}

func (RegretInsertion) Name() string     { return "regret" }
func (RegretInsertion) Randomized() bool { return false }

func (RegretInsertion) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, _ *rng.RNG, _ int) ([]*route.Solution, error) {
	s := route.NewSolution(p)
	if _, err := InsertRegret(ctx, s, allRequests(p), cm); err != nil {
		return nil, err
	}
	return []*route.Solution{s}, nil
}

// NearestNeighbor lets the vehicles take turns appending the pending request
// that is cheapest to add at the end of their route without a new violation.
// Requests no vehicle can take this way are placed by cheapest insertion.
type NearestNeighbor struct{}

func (NearestNeighbor) Name() string     { return "nearest" }
func (NearestNeighbor) Randomized() bool { return false }

func (NearestNeighbor) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, _ *rng.RNG, _ int) ([]*route.Solution, error) {
	s := route.NewSolution(p)
	pending := make(map[vrp.RequestID]bool, p.NumRequests())
	for _, req := range allRequests(p) {
		pending[req] = true
	}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress := false
		for v := 0; v < p.NumVehicles() && len(pending) > 0; v++ {
			vid := vrp.VehicleID(v)
			r := s.Route(vid)
			base := r.Evaluate(cm).Violation()
			best, bestDelta := vrp.RequestID(vrp.None), math.Inf(1)
			for req := vrp.RequestID(0); int(req) < p.NumRequests(); req++ {
				if !pending[req] {
					continue
				}
				pp, dp := appendPos(p, req, vid, r.Len())
				d := route.DeltaInsert(r, req, pp, dp, cm.Objective)
				if d >= bestDelta {
					continue
				}
				try := r.Clone()
				if try.Insert(req, pp, dp) != nil || try.Evaluate(cm).Violation() > base+route.Eps {
					continue
				}
				best, bestDelta = req, d
			}
			if best == vrp.None {
				continue
			}
			pp, dp := appendPos(p, best, vid, r.Len())
			if err := s.Assign(best, vid, pp, dp); err != nil {
				return nil, err
			}
			delete(pending, best)
			progress = true
		}
		if !progress {
			break
		}
	}
	if _, err := InsertGreedy(ctx, s, s.Unassigned(), cm); err != nil {
		return nil, err
	}
	return []*route.Solution{s}, nil
}

func appendPos(p *vrp.Problem, req vrp.RequestID, v vrp.VehicleID, n int) (int, int) {
	if pk, dl := p.Explicit(req, v); pk && dl {
		return n, n + 1
	}
	return n, n
}

// Savings is the parallel Clarke-Wright heuristic. Each solution uses a
// different route shape parameter λ from 0.4 to 1.0. It applies to
// single-visit problems whose vehicles all start and end at one depot.
type Savings struct{}

func (Savings) Name() string     { return "savings" }
func (Savings) Randomized() bool { return false }

var savingsLambdas = []float64{0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

func (Savings) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, _ *rng.RNG, max int) ([]*route.Solution, error) {
	depot, ok := singleDepot(p)
	if !ok || !p.IsSingleVisit() {
		return nil, nil
	}
	if max <= 0 || max > len(savingsLambdas) {
		max = len(savingsLambdas)
	}
	out := make([]*route.Solution, 0, max)
	for _, lambda := range savingsLambdas[:max] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := savings(ctx, p, cm, depot, lambda)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// singleDepot returns the common start and end node of a homogeneous fleet.
func singleDepot(p *vrp.Problem) (vrp.NodeID, bool) {
	if p.NumVehicles() == 0 || !p.HomogeneousFleet() {
		return vrp.None, false
	}
	veh := p.Vehicle(0)
	if veh.Start == vrp.None || veh.Start != veh.End {
		return vrp.None, false
	}
	return veh.Start, true
}

// chain is a route under construction. For a sequence of single stops the
// peak load of a concatenation follows from the parts: deliveries of the
// second part ride through the first, pickups of the first ride through the
// second.
type chain struct {
	reqs    []vrp.RequestID
	deliver float64 // loaded at departure
	pickup  float64 // on board at the end
	peak    float64
}

type saving struct {
	i, j  vrp.RequestID
	value float64
}

func savings(ctx context.Context, p *vrp.Problem, cm route.CostModel, depot vrp.NodeID, lambda float64) (*route.Solution, error) {
	const v0 = vrp.VehicleID(0)
	n := p.NumRequests()
	capacity := p.Vehicle(v0).Capacity
	stop := make([]vrp.NodeID, n)
	of := make([]*chain, n)
	for i := 0; i < n; i++ {
		req := vrp.RequestID(i)
		q := p.Request(req).Quantity
		c := &chain{reqs: []vrp.RequestID{req}, peak: q}
		if pk, _ := p.Explicit(req, v0); pk {
			stop[i] = p.StopNode(req, vrp.Pickup)
			c.pickup = q
		} else {
			stop[i] = p.StopNode(req, vrp.Delivery)
			c.deliver = q
		}
		of[i] = c
	}

	list := make([]saving, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := p.Distance(stop[i], depot) + p.Distance(depot, stop[j]) - lambda*p.Distance(stop[i], stop[j])
			if v > 0 {
				list = append(list, saving{vrp.RequestID(i), vrp.RequestID(j), v})
			}
		}
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].value > list[b].value })

	timed := p.HasTimeWindows()
	for k, sv := range list {
		if k%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		a, b := of[sv.i], of[sv.j]
		if a == b || a.reqs[len(a.reqs)-1] != sv.i || b.reqs[0] != sv.j {
			continue
		}
		peak := max(b.deliver+a.peak, a.pickup+b.peak)
		if peak > capacity+route.Eps {
			continue
		}
		merged := append(append([]vrp.RequestID(nil), a.reqs...), b.reqs...)
		if timed && !onTime(p, cm, v0, merged) {
			continue
		}
		a.reqs = merged
		a.deliver += b.deliver
		a.pickup += b.pickup
		a.peak = peak
		for _, req := range b.reqs {
			of[req] = a
		}
	}

	// distinct chains in order of their first request
	var routes []*chain
	seen := make(map[*chain]bool)
	for i := 0; i < n; i++ {
		if c := of[i]; !seen[c] {
			seen[c] = true
			routes = append(routes, c)
		}
	}
	// longest routes get vehicles first; the rest is inserted afterwards
	sort.SliceStable(routes, func(a, b int) bool { return len(routes[a].reqs) > len(routes[b].reqs) })

	s := route.NewSolution(p)
	for k, c := range routes {
		if k >= p.NumVehicles() {
			break
		}
		v := vrp.VehicleID(k)
		for _, req := range c.reqs {
			at := s.Route(v).Len()
			if err := s.Assign(req, v, at, at); err != nil {
				return nil, err
			}
		}
	}
	if _, err := InsertGreedy(ctx, s, s.Unassigned(), cm); err != nil {
		return nil, err
	}
	return s, nil
}

func onTime(p *vrp.Problem, cm route.CostModel, v vrp.VehicleID, reqs []vrp.RequestID) bool {
	r := route.New(p, v)
	for _, req := range reqs {
		if err := r.Insert(req, r.Len(), r.Len()); err != nil {
			return false
		}
	}
	return r.Evaluate(cm).Lateness <= route.Eps
}

// Sweep orders the requests by polar angle around the depot and splits the
// resulting giant tour. Successive solutions start the sweep at evenly spaced
// offsets.
type Sweep struct{}

func (Sweep) Name() string     { return "sweep" }
func (Sweep) Randomized() bool { return false }

func (Sweep) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, _ *rng.RNG, max int) ([]*route.Solution, error) {
	if !p.IsSingleVisit() || p.CoordSystem() == geo.SystemNone {
		return nil, nil
	}
	depot := p.Vehicle(0).Start
	if depot == vrp.None {
		depot = p.Vehicle(0).End
	}
	if depot == vrp.None || !p.Node(depot).HasCoord {
		return nil, nil
	}
	ref := p.Node(depot).Coord

	n := p.NumRequests()
	angle := make([]float64, n)
	tour := allRequests(p)
	for _, req := range tour {
		side := vrp.Delivery
		if pk, _ := p.Explicit(req, 0); pk {
			side = vrp.Pickup
		}
		node := p.Node(p.StopNode(req, side))
		if !node.HasCoord {
			return nil, nil
		}
		angle[req] = geo.PolarAngle(node.Coord, ref, p.CoordSystem())
	}
	sort.SliceStable(tour, func(a, b int) bool { return angle[tour[a]] < angle[tour[b]] })

	if max <= 0 {
		max = 1
	}
	max = min(max, n)
	out := make([]*route.Solution, 0, max)
	rotated := make([]vrp.RequestID, n)
	for k := 0; k < max; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := k * n / max
		copy(rotated, tour[off:])
		copy(rotated[n-off:], tour[:off])
		s, err := Split(p, rotated, cm)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// RandomSplit splits random permutations of the requests. Problems that are
// not single-visit get the permutation as an insertion order instead.
type RandomSplit struct{}

func (RandomSplit) Name() string     { return "random" }
func (RandomSplit) Randomized() bool { return true }

func (RandomSplit) Build(ctx context.Context, p *vrp.Problem, cm route.CostModel, g *rng.RNG, max int) ([]*route.Solution, error) {
	if max <= 0 {
		max = 1
	}
	single := p.IsSingleVisit()
	out := make([]*route.Solution, 0, max)
	for k := 0; k < max; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perm := g.Perm(p.NumRequests())
		tour := make([]vrp.RequestID, len(perm))
		for i, x := range perm {
			tour[i] = vrp.RequestID(x)
		}
		var s *route.Solution
		if single {
			var err error
			if s, err = Split(p, tour, cm); err != nil {
				return nil, err
			}
		} else {
			s = route.NewSolution(p)
			if _, err := InsertSequential(ctx, s, tour, cm); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Defaults are the heuristics used to seed a population, deterministic ones
// first.
func Defaults() []Heuristic {
	return []Heuristic{CheapestInsertion{}, RegretInsertion{}, NearestNeighbor{}, Savings{}, Sweep{}, RandomSplit{}}
}

// ByName resolves heuristic names as used in configuration files.
func ByName(names ...string) ([]Heuristic, error) {
	all := Defaults()
	out := make([]Heuristic, 0, len(names))
	for _, name := range names {
		found := false
		for _, h := range all {
			if h.Name() == name {
				out = append(out, h)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHeuristic, name)
		}
	}
	return out, nil
}
