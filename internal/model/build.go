package model

import (
	"fmt"

	"elasticroute/internal/container"
	"elasticroute/internal/geo"
	"elasticroute/internal/opt"
	"elasticroute/internal/tsp"
	"elasticroute/internal/vrp"
)

// Build registers inst in a fresh problem: coordinate system, nodes and
// their coordinates, requests with windows and service durations, the
// distance and duration matrices, then the vehicles. The first error is
// returned as it came from vrp, or as a *vrp.ValidationError for ids that
// reference nothing.
func Build(inst Instance) (*vrp.Problem, error) {
	const op = "model.Build"
	p := vrp.New()

	sys, err := geo.ParseSystem(inst.CoordSystem)
	if err != nil {
		return nil, &vrp.ValidationError{Op: op, Err: err}
	}
	metric, err := geo.ParseMetric(inst.Metric)
	if err != nil {
		return nil, &vrp.ValidationError{Op: op, Err: err}
	}
	if sys != geo.SystemNone {
		if err := p.SetCoordSystem(sys); err != nil {
			return nil, err
		}
	}

	for _, n := range inst.Nodes {
		role, err := parseRole(n.Role)
		if err != nil {
			return nil, &vrp.ValidationError{Op: op, Msg: "node " + n.ID, Err: err}
		}
		id, err := p.AddNode(n.ID, role)
		if err != nil {
			return nil, err
		}
		if n.Location != nil {
			if err := p.SetNodeCoord(id, geo.Coord{X: n.Location.X, Y: n.Location.Y}); err != nil {
				return nil, err
			}
		}
	}

	node := func(ref, what string) (vrp.NodeID, error) {
		if ref == "" {
			return vrp.None, nil
		}
		id, ok := p.QueryNode(ref)
		if !ok {
			return vrp.None, &vrp.ValidationError{Op: op, Msg: fmt.Sprintf("%s references node %q", what, ref), Err: vrp.ErrUnknownNode}
		}
		return id, nil
	}

	for _, r := range inst.Requests {
		from, err := node(r.Sender, "request "+r.ID)
		if err != nil {
			return nil, err
		}
		to, err := node(r.Receiver, "request "+r.ID)
		if err != nil {
			return nil, err
		}
		id, err := p.AddRequest(r.ID, from, to, r.Quantity)
		if err != nil {
			return nil, err
		}
		if err := applyEndpoint(p, id, vrp.Pickup, r.Pickup); err != nil {
			return nil, err
		}
		if err := applyEndpoint(p, id, vrp.Delivery, r.Delivery); err != nil {
			return nil, err
		}
	}

	if err := buildMatrices(p, inst, metric); err != nil {
		return nil, err
	}

	for _, v := range inst.Vehicles {
		start, err := node(v.Start, "vehicle "+v.ID)
		if err != nil {
			return nil, err
		}
		end, err := node(v.End, "vehicle "+v.ID)
		if err != nil {
			return nil, err
		}
		id, err := p.AddVehicle(v.ID, v.Capacity, start, end)
		if err != nil {
			return nil, err
		}
		if v.Shift != nil {
			if err := p.SetVehicleShift(id, v.Shift.Earliest, v.Shift.Latest); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func parseRole(s string) (vrp.Role, error) {
	switch s {
	case "":
		return vrp.RoleNone, nil
	case "depot":
		return vrp.Depot, nil
	case "customer":
		return vrp.Customer, nil
	}
	return vrp.RoleNone, fmt.Errorf("unknown role %q", s)
}

func applyEndpoint(p *vrp.Problem, id vrp.RequestID, side vrp.Side, end *Endpoint) error {
	if end == nil {
		return nil
	}
	for _, w := range end.Windows {
		if err := p.AddTimeWindow(id, side, w.Earliest, w.Latest); err != nil {
			return err
		}
	}
	if end.Service != 0 {
		return p.SetServiceDuration(id, side, end.Service)
	}
	return nil
}

func buildMatrices(p *vrp.Problem, inst Instance, metric geo.Metric) error {
	if len(inst.Nodes) == 0 {
		return nil
	}
	if inst.Distances != nil {
		m, err := toMatrix("distances", inst.Distances, len(inst.Nodes))
		if err != nil {
			return err
		}
		if err := p.SetDistanceMatrix(m); err != nil {
			return err
		}
	} else if err := p.GenerateDistances(metric); err != nil {
		return err
	}

	if inst.Durations != nil {
		m, err := toMatrix("durations", inst.Durations, len(inst.Nodes))
		if err != nil {
			return err
		}
		return p.SetDurationMatrix(m)
	}
	speed := inst.Speed
	if speed == 0 {
		speed = 1
	}
	return p.GenerateDurations(speed)
}

func toMatrix(what string, rows [][]float64, n int) (*container.Matrix[float64], error) {
	if len(rows) != n {
		return nil, &vrp.ValidationError{Op: "model.Build", Msg: fmt.Sprintf("%s: %d rows for %d nodes", what, len(rows), n), Err: vrp.ErrNoDistances}
	}
	m, err := container.NewMatrix[float64](n, n)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, &vrp.ValidationError{Op: "model.Build", Msg: fmt.Sprintf("%s: row %d has %d columns", what, i, len(row)), Err: vrp.ErrNoDistances}
		}
		for j, v := range row {
			m.Put(i, j, v)
		}
	}
	return m, nil
}

// FromResult renders res with the external ids of p. Unused vehicles are
// left out.
func FromResult(p *vrp.Problem, res opt.Result) Solution {
	out := Solution{
		RunID:          res.RunID,
		Routes:         []Route{},
		Unassigned:     make([]string, 0, len(res.Unassigned)),
		Cost:           res.Eval.Cost,
		Distance:       res.Eval.Distance,
		Duration:       res.Eval.Duration,
		CapacityExcess: res.Eval.CapacityExcess,
		Lateness:       res.Eval.Lateness,
		Feasible:       res.Feasible,
		Violation:      res.Violation,
		Seed:           res.Seed,
		Stats:          res.Stats,
		Metrics:        res.Metrics,
	}
	for _, req := range res.Unassigned {
		out.Unassigned = append(out.Unassigned, p.Request(req).ExtID)
	}
	if res.Solution == nil {
		return out
	}
	cm := opt.DefaultConfig().Cost
	for _, r := range res.Solution.Routes() {
		if r.Empty() {
			continue
		}
		e := r.Evaluate(cm)
		sched := r.Schedule()
		rt := Route{
			Vehicle:   p.Vehicle(r.Vehicle()).ExtID,
			Distance:  e.Distance,
			Duration:  e.Duration,
			StartLoad: r.StartLoad(),
			PeakLoad:  r.PeakLoad(),
		}
		for _, n := range r.Nodes() {
			rt.Nodes = append(rt.Nodes, p.Node(n).ExtID)
		}
		for i, v := range r.Visits() {
			st := sched.Stops[i]
			rt.Stops = append(rt.Stops, Stop{
				Node:      p.Node(v.Node).ExtID,
				Request:   p.Request(v.Request).ExtID,
				Side:      v.Side.String(),
				Arrival:   st.Arrival,
				Start:     st.Start,
				Departure: st.Departure,
				Load:      st.Load,
				Late:      st.Late,
			})
		}
		out.Routes = append(out.Routes, rt)
	}
	return out
}

// BuildTSP turns req into a tsp.Problem over its points or cost matrix.
func BuildTSP(req TSPRequest) (*tsp.Problem, error) {
	n := len(req.Points)
	if req.Costs != nil {
		n = len(req.Costs)
	}
	p, err := tsp.New(n)
	if err != nil {
		return nil, err
	}
	if req.Costs != nil {
		for i, row := range req.Costs {
			if len(row) != n {
				return nil, fmt.Errorf("model: BuildTSP: %w: row %d has %d columns, want %d", tsp.ErrBadCost, i, len(row), n)
			}
			for j, c := range row {
				if err := p.SetCost(i, j, c); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(req.Points) > 0 {
		sys, err := geo.ParseSystem(req.CoordSystem)
		if err != nil {
			return nil, &vrp.ValidationError{Op: "model.BuildTSP", Err: err}
		}
		if sys == geo.SystemNone {
			sys = geo.Cartesian2D
		}
		p.SetCoordSystem(sys)
		for i, pt := range req.Points {
			if err := p.SetNodeCoord(i, geo.Coord{X: pt.X, Y: pt.Y}); err != nil {
				return nil, err
			}
		}
		if req.Costs == nil {
			metric, err := geo.ParseMetric(req.Metric)
			if err != nil {
				return nil, &vrp.ValidationError{Op: "model.BuildTSP", Err: err}
			}
			if err := p.GenerateBeelineCosts(metric); err != nil {
				return nil, err
			}
		}
	}
	if req.Start != nil {
		if err := p.SetStart(*req.Start); err != nil {
			return nil, err
		}
	}
	if req.End != nil {
		if err := p.SetEnd(*req.End); err != nil {
			return nil, err
		}
	}
	p.SetRoundTrip(req.RoundTrip)
	return p, nil
}
