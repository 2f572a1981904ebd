package route

import (
	"fmt"
	"math"
	"slices"

	"elasticroute/internal/vrp"
)

// Insertion describes where a request goes and what it costs.
type Insertion struct {
	Request     vrp.RequestID
	Vehicle     vrp.VehicleID
	PickupPos   int
	DeliveryPos int
	// Delta is the increase of the route's penalised cost.
	Delta float64
}

// Apply performs the insertion on s.
func (in Insertion) Apply(s *Solution) error {
	return s.Assign(in.Request, in.Vehicle, in.PickupPos, in.DeliveryPos)
}

// BestInsertion returns the cheapest way to add req to r under cm. Positions
// are scanned in ascending order and only a strictly better candidate
// replaces the current one, so ties go to the earliest position. ok is false
// when the vehicle cannot take the request at all (zero capacity for a
// positive quantity).
func BestInsertion(r *Route, req vrp.RequestID, cm CostModel) (best Insertion, ok bool) {
	p := r.p
	rq := p.Request(req)
	if p.Vehicle(r.vehicle).Capacity == 0 && rq.Quantity > 0 {
		return Insertion{}, false
	}
	if p.HasTimeWindows() {
		return r.bestInsertionFold(req, cm)
	}
	return r.bestInsertionDelta(req, cm)
}

// DeltaInsert is the objective change (distance or duration, without
// penalties) of inserting req at the given positions. It does not modify r.
func DeltaInsert(r *Route, req vrp.RequestID, pickupPos, deliveryPos int, obj Objective) float64 {
	pk, dl := r.p.Explicit(req, r.vehicle)
	gp, gd := pickupPos, deliveryPos
	if pk && dl {
		gd = deliveryPos - 1
	}
	return r.arcDelta(req, pk, dl, gp, gd, obj)
}

// arcDelta works on gaps of the current sequence: gap g sits between
// visits[g-1] and visits[g].
func (r *Route) arcDelta(req vrp.RequestID, pk, dl bool, gp, gd int, obj Objective) float64 {
	p := r.p
	veh := p.Vehicle(r.vehicle)
	rq := p.Request(req)
	c := p.Distance
	if obj == MinDuration {
		c = p.Duration
	}
	n := len(r.visits)
	prev := func(g int) vrp.NodeID {
		if g == 0 {
			return veh.Start
		}
		return r.visits[g-1].Node
	}
	next := func(g int) vrp.NodeID {
		if g == n {
			return veh.End
		}
		return r.visits[g].Node
	}
	var d float64
	switch {
	case pk && dl && gp == gd:
		a, b := prev(gp), next(gp)
		d = c(a, rq.Sender.Node) + c(rq.Sender.Node, rq.Receiver.Node) + c(rq.Receiver.Node, b) - c(a, b)
	default:
		if pk {
			a, b := prev(gp), next(gp)
			d += c(a, rq.Sender.Node) + c(rq.Sender.Node, b) - c(a, b)
		}
		if dl {
			a, b := prev(gd), next(gd)
			d += c(a, rq.Receiver.Node) + c(rq.Receiver.Node, b) - c(a, b)
		}
	}
	if len(r.reqs) == 0 {
		// an unused vehicle does not drive from start to end
		d += c(veh.Start, veh.End)
	}
	if obj == MinDuration {
		if rq.Sender.Node != vrp.None {
			d += rq.Sender.Service
		}
		if rq.Receiver.Node != vrp.None {
			d += rq.Receiver.Service
		}
	}
	return d
}

func (r *Route) bestInsertionDelta(req vrp.RequestID, cm CostModel) (Insertion, bool) {
	p := r.p
	pk, dl := p.Explicit(req, r.vehicle)
	q := p.Request(req).Quantity
	capa := p.Vehicle(r.vehicle).Capacity
	n := len(r.visits)

	// pre[k] = max load before gap k, suf[k] = max load from visit k on
	pre := make([]float64, n+1)
	suf := make([]float64, n+1)
	pre[0] = r.start
	for k := 0; k < n; k++ {
		pre[k+1] = max(pre[k], r.loads[k])
	}
	suf[n] = math.Inf(-1)
	for k := n - 1; k >= 0; k-- {
		suf[k] = max(suf[k+1], r.loads[k])
	}
	oldExcess := max(0, pre[n]-capa)
	price := func(arc, peak float64) float64 {
		return arc + cm.CapacityPenalty*(max(0, peak-capa)-oldExcess)
	}

	best := Insertion{Request: req, Vehicle: r.vehicle, Delta: math.Inf(1)}
	switch {
	case pk && dl:
		for gp := 0; gp <= n; gp++ {
			before := r.loadBefore(gp)
			run := math.Inf(-1)
			for gd := gp; gd <= n; gd++ {
				if gd > gp {
					run = max(run, r.loads[gd-1])
				}
				peak := max(pre[gp], suf[gd], run+q, before+q)
				if d := price(r.arcDelta(req, pk, dl, gp, gd, cm.Objective), peak); d < best.Delta {
					best.PickupPos, best.DeliveryPos, best.Delta = gp, gd+1, d
				}
			}
		}
	case pk:
		for gp := 0; gp <= n; gp++ {
			peak := max(pre[gp], suf[gp]+q, r.loadBefore(gp)+q)
			if d := price(r.arcDelta(req, pk, dl, gp, 0, cm.Objective), peak); d < best.Delta {
				best.PickupPos, best.DeliveryPos, best.Delta = gp, -1, d
			}
		}
	case dl:
		for gd := 0; gd <= n; gd++ {
			peak := max(pre[gd]+q, suf[gd])
			if d := price(r.arcDelta(req, pk, dl, 0, gd, cm.Objective), peak); d < best.Delta {
				best.PickupPos, best.DeliveryPos, best.Delta = -1, gd, d
			}
		}
	default:
		peak := pre[n] + q
		best.PickupPos, best.DeliveryPos = -1, -1
		best.Delta = price(r.arcDelta(req, pk, dl, 0, 0, cm.Objective), peak)
	}
	return best, true
}

func (r *Route) bestInsertionFold(req vrp.RequestID, cm CostModel) (Insertion, bool) {
	p := r.p
	pk, dl := p.Explicit(req, r.vehicle)
	base := r.Evaluate(cm).Cost
	n := len(r.visits)

	reqs := append(append(make([]vrp.RequestID, 0, len(r.reqs)+1), r.reqs...), req)
	buf := make([]Visit, n+2)
	pv, dv := r.visitFor(req, vrp.Pickup), r.visitFor(req, vrp.Delivery)

	best := Insertion{Request: req, Vehicle: r.vehicle, PickupPos: -1, DeliveryPos: -1, Delta: math.Inf(1)}
	try := func(seq []Visit, pp, dp int) {
		if d := fold(p, cm, r.vehicle, reqs, seq, nil).Cost - base; d < best.Delta {
			best.PickupPos, best.DeliveryPos, best.Delta = pp, dp, d
		}
	}
	switch {
	case pk && dl:
		for gp := 0; gp <= n; gp++ {
			for gd := gp; gd <= n; gd++ {
				seq := buf[:0]
				seq = append(seq, r.visits[:gp]...)
				seq = append(seq, pv)
				seq = append(seq, r.visits[gp:gd]...)
				seq = append(seq, dv)
				seq = append(seq, r.visits[gd:]...)
				try(seq, gp, gd+1)
			}
		}
	case pk || dl:
		v := pv
		if dl {
			v = dv
		}
		for g := 0; g <= n; g++ {
			seq := buf[:0]
			seq = append(seq, r.visits[:g]...)
			seq = append(seq, v)
			seq = append(seq, r.visits[g:]...)
			if pk {
				try(seq, g, -1)
			} else {
				try(seq, -1, g)
			}
		}
	default:
		try(r.visits, -1, -1)
	}
	return best, true
}

// ExchangeTails swaps the stops after position i of vehicle va with the stops
// after position j of vehicle vb (2-opt*). Both vehicles must share start and
// end nodes, and no request may have stops on both sides of a cut.
func (s *Solution) ExchangeTails(va, vb vrp.VehicleID, i, j int) error {
	a, b := s.routes[va], s.routes[vb]
	if va == vb {
		return fmt.Errorf("%w: same vehicle", ErrIncompatible)
	}
	ka, kb := s.p.Vehicle(va), s.p.Vehicle(vb)
	if ka.Start != kb.Start || ka.End != kb.End {
		return ErrIncompatible
	}
	if i < 0 || i > len(a.visits) || j < 0 || j > len(b.visits) {
		return fmt.Errorf("%w: tails (%d,%d)", ErrBadPosition, i, j)
	}
	tailA, err := cutRequests(a.visits, i)
	if err != nil {
		return err
	}
	tailB, err := cutRequests(b.visits, j)
	if err != nil {
		return err
	}

	na := append(append([]Visit(nil), a.visits[:i]...), b.visits[j:]...)
	nb := append(append([]Visit(nil), b.visits[:j]...), a.visits[i:]...)
	a.visits, b.visits = na, nb
	a.reqs = moveRequests(a.reqs, tailA, tailB)
	b.reqs = moveRequests(b.reqs, tailB, tailA)
	for _, req := range tailA {
		s.owner[req] = vb
	}
	for _, req := range tailB {
		s.owner[req] = va
	}
	a.RecomputeLoads()
	b.RecomputeLoads()
	a.touch()
	b.touch()
	return nil
}

// cutRequests returns the requests whose stops all lie at or after cut, and
// fails when a request straddles it.
func cutRequests(visits []Visit, cut int) ([]vrp.RequestID, error) {
	head := make(map[vrp.RequestID]bool, cut)
	for _, v := range visits[:cut] {
		head[v.Request] = true
	}
	var tail []vrp.RequestID
	seen := make(map[vrp.RequestID]bool)
	for _, v := range visits[cut:] {
		if head[v.Request] {
			return nil, fmt.Errorf("%w: request %d", ErrSplitRequest, v.Request)
		}
		if !seen[v.Request] {
			seen[v.Request] = true
			tail = append(tail, v.Request)
		}
	}
	return tail, nil
}

func moveRequests(reqs, out, in []vrp.RequestID) []vrp.RequestID {
	drop := make(map[vrp.RequestID]bool, len(out))
	for _, r := range out {
		drop[r] = true
	}
	res := make([]vrp.RequestID, 0, len(reqs)-len(out)+len(in))
	for _, r := range reqs {
		if !drop[r] {
			res = append(res, r)
		}
	}
	res = append(res, in...)
	slices.Sort(res)
	return res
}
