package construct

import (
	"errors"
	"math"

	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// ErrNotSingleVisit is returned by giant-tour based builders when some request
// needs other than exactly one stop.
var ErrNotSingleVisit = errors.New("construct: problem is not single-visit")

// Split cuts a giant tour into consecutive routes, one per vehicle at most,
// minimising the penalised cost (Prins 2004, bounded fleet).
//
// f[k][j] is the cheapest way to serve the first j requests of the tour
// with the first k vehicles; vehicle k takes the slice (i, j] or nothing.
// Segment costs are extended one stop at a time, so the DP is O(K·n²).
// Segments stop growing once their load exceeds the vehicle capacity; if that
// leaves the tour uncovered the DP is rerun without the cut-off so every
// request is still placed, at a capacity penalty.
func Split(p *vrp.Problem, tour []vrp.RequestID, cm route.CostModel) (*route.Solution, error) {
	if !p.IsSingleVisit() {
		return nil, ErrNotSingleVisit
	}
	if len(tour) == 0 {
		return route.NewSolution(p), nil
	}
	pred, ok := splitDP(p, tour, cm, true)
	if !ok {
		pred, _ = splitDP(p, tour, cm, false)
	}

	s := route.NewSolution(p)
	j := len(tour)
	for k := p.NumVehicles(); k > 0; k-- {
		i := pred[k][j]
		v := vrp.VehicleID(k - 1)
		for _, req := range tour[i:j] {
			n := s.Route(v).Len()
			if err := s.Assign(req, v, n, n); err != nil {
				return nil, err
			}
		}
		j = i
	}
	return s, nil
}

func splitDP(p *vrp.Problem, tour []vrp.RequestID, cm route.CostModel, cutoff bool) ([][]int, bool) {
	n, nv := len(tour), p.NumVehicles()
	inf := math.Inf(1)
	f := make([][]float64, nv+1)
	pred := make([][]int, nv+1)
	for k := range f {
		f[k] = make([]float64, n+1)
		pred[k] = make([]int, n+1)
		for j := range f[k] {
			f[k][j] = inf
		}
	}
	f[0][0] = 0
	for k := 1; k <= nv; k++ {
		v := vrp.VehicleID(k - 1)
		veh := p.Vehicle(v)
		copy(f[k], f[k-1])
		for j := range pred[k] {
			pred[k][j] = j
		}
		for i := 0; i < n; i++ {
			if math.IsInf(f[k-1][i], 1) {
				continue
			}
			seg := newSegment(p, v, cm)
			for j := i + 1; j <= n; j++ {
				seg.push(tour[j-1])
				if cutoff && seg.peak > veh.Capacity+route.Eps && j > i+1 {
					break
				}
				if c := f[k-1][i] + seg.cost(); c < f[k][j] {
					f[k][j], pred[k][j] = c, i
				}
			}
		}
	}
	return pred, !math.IsInf(f[nv][n], 1)
}

// segment is an open route being extended stop by stop. It mirrors the route
// fold closely enough to rank cuts; the final solution is evaluated exactly.
type segment struct {
	p    *vrp.Problem
	cm   route.CostModel
	veh  *vrp.Vehicle
	v    vrp.VehicleID
	prev vrp.NodeID

	dist, t, begin, late float64
	start, delta, peak   float64
	endWork              float64 // service done at the end node
	empty                bool
}

func newSegment(p *vrp.Problem, v vrp.VehicleID, cm route.CostModel) *segment {
	veh := p.Vehicle(v)
	s := &segment{p: p, cm: cm, veh: veh, v: v, prev: veh.Start, empty: true}
	if veh.HasShift {
		s.t = veh.Shift.Earliest
	}
	s.begin = s.t
	return s
}

func (s *segment) push(req vrp.RequestID) {
	s.empty = false
	rq := s.p.Request(req)
	pk, _ := s.p.Explicit(req, s.v)
	side := vrp.Delivery
	if pk {
		side = vrp.Pickup
	}
	end := rq.End(side)
	if pk {
		s.delta += rq.Quantity
		if rq.Receiver.Node != vrp.None {
			s.endWork += rq.Receiver.Service
		}
	} else {
		s.start += rq.Quantity
		if rq.Sender.Node != vrp.None {
			// loading happens at departure, approximated as added travel time
			s.t += rq.Sender.Service
		}
	}
	s.peak = max(s.start, s.start+s.delta)

	s.dist += s.p.Distance(s.prev, end.Node)
	s.t += s.p.Duration(s.prev, end.Node)
	st, late := route.WindowStart(end.Windows, s.t)
	s.late += late
	s.t = st + end.Service
	s.prev = end.Node
}

func (s *segment) cost() float64 {
	if s.empty {
		return 0
	}
	dist := s.dist + s.p.Distance(s.prev, s.veh.End)
	finish := s.t + s.p.Duration(s.prev, s.veh.End) + s.endWork
	late := s.late
	if s.veh.HasShift && finish > s.veh.Shift.Latest {
		late += finish - s.veh.Shift.Latest
	}
	obj := dist
	if s.cm.Objective == route.MinDuration {
		obj = finish - s.begin
	}
	return obj + s.cm.CapacityPenalty*max(0, s.peak-s.veh.Capacity) + s.cm.LatenessPenalty*late
}
