package route

import (
	"elasticroute/internal/vrp"
)

// Objective is the quantity a solution minimises before penalties.
type Objective string

const (
	MinDistance Objective = "distance"
	MinDuration Objective = "duration"
)

// CostModel turns an evaluation into a single penalised cost. Constraint
// violations are priced rather than rejected so the search can pass through
// infeasible solutions.
type CostModel struct {
	Objective         Objective `yaml:"objective" json:"objective"`
	CapacityPenalty   float64   `yaml:"capacityPenalty" json:"capacityPenalty"`
	LatenessPenalty   float64   `yaml:"latenessPenalty" json:"latenessPenalty"`
	UnassignedPenalty float64   `yaml:"unassignedPenalty" json:"unassignedPenalty"`
}

func DefaultCostModel() CostModel {
	return CostModel{
		Objective:         MinDistance,
		CapacityPenalty:   1000,
		LatenessPenalty:   1000,
		UnassignedPenalty: 1e6,
	}
}

// Eps is the tolerance under which violations count as zero.
const Eps = 1e-9

// Eval is the outcome of folding a route or a solution.
type Eval struct {
	Distance float64
	Duration float64
	// CapacityExcess is the peak load above capacity, summed over routes.
	CapacityExcess float64
	// Lateness is the total time by which windows and shifts are missed.
	Lateness   float64
	Violations int
	Unassigned int
	Cost       float64
}

// Feasible reports whether every request is served without violation.
func (e Eval) Feasible() bool {
	return e.CapacityExcess <= Eps && e.Lateness <= Eps && e.Unassigned == 0
}

// Violation is the combined magnitude of capacity and time violations.
func (e Eval) Violation() float64 { return e.CapacityExcess + e.Lateness }

func (e *Eval) add(o Eval) {
	e.Distance += o.Distance
	e.Duration += o.Duration
	e.CapacityExcess += o.CapacityExcess
	e.Lateness += o.Lateness
	e.Violations += o.Violations
	e.Unassigned += o.Unassigned
	e.Cost += o.Cost
}

func (cm CostModel) price(e *Eval) {
	obj := e.Distance
	if cm.Objective == MinDuration {
		obj = e.Duration
	}
	e.Cost = obj + cm.CapacityPenalty*e.CapacityExcess + cm.LatenessPenalty*e.Lateness +
		cm.UnassignedPenalty*float64(e.Unassigned)
}

// StopTime is the schedule of one stop.
type StopTime struct {
	Arrival   float64
	Start     float64
	Departure float64
	Load      float64
	Late      float64
}

// Schedule describes a whole route, including departure from and arrival at
// the vehicle's start and end nodes.
type Schedule struct {
	Departure float64
	Stops     []StopTime
	Return    float64
	StartLoad float64
}

// Evaluate folds the route. The result is cached until the route changes.
func (r *Route) Evaluate(cm CostModel) Eval {
	if r.cached && r.cacheCM == cm {
		return r.cache
	}
	e := fold(r.p, cm, r.vehicle, r.reqs, r.visits, nil)
	r.cache, r.cacheCM, r.cached = e, cm, true
	return e
}

// Schedule reports arrival, service start and departure for every stop.
func (r *Route) Schedule() Schedule {
	s := Schedule{Stops: make([]StopTime, len(r.visits))}
	fold(r.p, DefaultCostModel(), r.vehicle, r.reqs, r.visits, &s)
	return s
}

// WindowStart returns when service can start for an arrival at t, and how
// late it is when every window has closed.
func WindowStart(ws []vrp.TimeWindow, t float64) (start, late float64) {
	if len(ws) == 0 {
		return t, 0
	}
	for _, w := range ws {
		if t <= w.Latest {
			return max(t, w.Earliest), 0
		}
	}
	return t, t - ws[len(ws)-1].Latest
}

// fold walks the route once, accumulating distance, time, load and
// violations.
//
// Departure waits for the vehicle's shift and for the windows of goods
// loaded at the start node, then spends their service time. At each stop the
// vehicle waits for the first window still open at arrival; when none is,
// the overrun past the last window is lateness. Goods unloaded at the end node
// are served after the return trip, and the finish time is checked against
// the shift.
//
// Complexity: O(len(reqs) + len(visits)).
func fold(p *vrp.Problem, cm CostModel, v vrp.VehicleID, reqs []vrp.RequestID, visits []Visit, sched *Schedule) Eval {
	var e Eval
	if len(reqs) == 0 {
		cm.price(&e)
		return e
	}
	veh := p.Vehicle(v)
	var (
		t, begin, late float64
		load, peak     float64
	)
	if veh.HasShift {
		t = veh.Shift.Earliest
	}
	begin = t

	// goods on board at departure
	var loadService float64
	for _, req := range reqs {
		pk, _ := p.Explicit(req, v)
		if pk {
			continue
		}
		rq := p.Request(req)
		load += rq.Quantity
		if rq.Sender.Node == vrp.None {
			continue
		}
		t, late = WindowStart(rq.Sender.Windows, t)
		if late > 0 {
			e.Lateness += late
			e.Violations++
		}
		loadService += rq.Sender.Service
	}
	t += loadService
	peak = load
	if sched != nil {
		sched.Departure = t
		sched.StartLoad = load
	}

	prev := veh.Start
	for i, vis := range visits {
		arrival := t + p.Duration(prev, vis.Node)
		e.Distance += p.Distance(prev, vis.Node)
		end := p.Request(vis.Request).End(vis.Side)
		start, lt := WindowStart(end.Windows, arrival)
		if lt > 0 {
			e.Lateness += lt
			e.Violations++
		}
		load += vis.Delta
		if load > peak {
			peak = load
		}
		t = start + end.Service
		if sched != nil {
			sched.Stops[i] = StopTime{Arrival: arrival, Start: start, Departure: t, Load: load, Late: lt}
		}
		prev = vis.Node
	}

	if veh.End != vrp.None {
		t += p.Duration(prev, veh.End)
		e.Distance += p.Distance(prev, veh.End)
		if sched != nil {
			sched.Return = t
		}
		// goods unloaded at the end node
		for _, req := range reqs {
			pk, dl := p.Explicit(req, v)
			rq := p.Request(req)
			if dl || !pk || rq.Receiver.Node == vrp.None {
				continue
			}
			t, late = WindowStart(rq.Receiver.Windows, t)
			if late > 0 {
				e.Lateness += late
				e.Violations++
			}
			t += rq.Receiver.Service
		}
	} else if sched != nil {
		sched.Return = t
	}

	if veh.HasShift && t > veh.Shift.Latest+Eps {
		e.Lateness += t - veh.Shift.Latest
		e.Violations++
	}
	if excess := peak - veh.Capacity; excess > Eps {
		e.CapacityExcess = excess
		e.Violations++
	}
	e.Duration = t - begin
	cm.price(&e)
	return e
}
