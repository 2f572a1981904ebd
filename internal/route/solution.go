package route

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"elasticroute/internal/vrp"
)

// Solution assigns every request to at most one vehicle route.
type Solution struct {
	p      *vrp.Problem
	routes []*Route
	owner  []vrp.VehicleID
}

// NewSolution returns a solution with one empty route per vehicle and every
// request unassigned.
func NewSolution(p *vrp.Problem) *Solution {
	s := &Solution{
		p:      p,
		routes: make([]*Route, p.NumVehicles()),
		owner:  make([]vrp.VehicleID, p.NumRequests()),
	}
	for v := range s.routes {
		s.routes[v] = New(p, vrp.VehicleID(v))
	}
	for i := range s.owner {
		s.owner[i] = vrp.None
	}
	return s
}

func (s *Solution) Problem() *vrp.Problem { return s.p }

// Routes is indexed by vehicle id.
func (s *Solution) Routes() []*Route { return s.routes }

func (s *Solution) Route(v vrp.VehicleID) *Route { return s.routes[v] }

// RouteOf returns the vehicle serving req, or vrp.None.
func (s *Solution) RouteOf(req vrp.RequestID) vrp.VehicleID { return s.owner[req] }

// Assign inserts req into the route of v at the given positions (see
// Route.Insert).
func (s *Solution) Assign(req vrp.RequestID, v vrp.VehicleID, pickupPos, deliveryPos int) error {
	if s.owner[req] != vrp.None {
		return fmt.Errorf("%w: request %d on vehicle %d", ErrAlreadyRouted, req, s.owner[req])
	}
	if err := s.routes[v].Insert(req, pickupPos, deliveryPos); err != nil {
		return err
	}
	s.owner[req] = v
	return nil
}

// Unassign removes req from its route. It is a no-op for an unassigned
// request.
func (s *Solution) Unassign(req vrp.RequestID) {
	v := s.owner[req]
	if v == vrp.None {
		return
	}
	// the owner table guarantees the route holds req
	_, _, _ = s.routes[v].Remove(req)
	s.owner[req] = vrp.None
}

// Unassigned lists the requests no route serves, ascending.
func (s *Solution) Unassigned() []vrp.RequestID {
	var out []vrp.RequestID
	for i, v := range s.owner {
		if v == vrp.None {
			out = append(out, vrp.RequestID(i))
		}
	}
	return out
}

// UsedVehicles counts non-empty routes.
func (s *Solution) UsedVehicles() int {
	n := 0
	for _, r := range s.routes {
		if !r.Empty() {
			n++
		}
	}
	return n
}

func (s *Solution) Evaluate(cm CostModel) Eval {
	var e Eval
	for _, r := range s.routes {
		e.add(r.Evaluate(cm))
	}
	for _, v := range s.owner {
		if v == vrp.None {
			e.Unassigned++
		}
	}
	e.Cost += cm.UnassignedPenalty * float64(e.Unassigned)
	return e
}

func (s *Solution) Cost(cm CostModel) float64 { return s.Evaluate(cm).Cost }

// CheckInvariant verifies that every request is either unassigned or served
// by exactly the route the owner table names, and that every route is Valid.
func (s *Solution) CheckInvariant() error {
	count := make([]int, len(s.owner))
	for v, r := range s.routes {
		if err := r.Valid(); err != nil {
			return fmt.Errorf("vehicle %d: %w", v, err)
		}
		for _, req := range r.Requests() {
			count[req]++
			if s.owner[req] != vrp.VehicleID(v) {
				return fmt.Errorf("%w: request %d on vehicle %d, owner says %d", ErrInvariantBroken, req, v, s.owner[req])
			}
		}
	}
	for req, c := range count {
		switch {
		case c > 1:
			return fmt.Errorf("%w: request %d on %d routes", ErrInvariantBroken, req, c)
		case c == 0 && s.owner[req] != vrp.None:
			return fmt.Errorf("%w: request %d owned by %d but not routed", ErrInvariantBroken, req, s.owner[req])
		}
	}
	return nil
}

func (s *Solution) Clone() *Solution {
	c := &Solution{
		p:      s.p,
		routes: make([]*Route, len(s.routes)),
		owner:  append([]vrp.VehicleID(nil), s.owner...),
	}
	for i, r := range s.routes {
		c.routes[i] = r.Clone()
	}
	return c
}

// ReplaceRoute installs nr as the route of its vehicle. Requests of the old
// route that nr does not serve become unassigned; requests nr serves are
// taken off whatever route held them.
func (s *Solution) ReplaceRoute(nr *Route) {
	v := nr.Vehicle()
	for _, req := range s.routes[v].Requests() {
		s.owner[req] = vrp.None
	}
	for _, req := range nr.Requests() {
		if o := s.owner[req]; o != vrp.None && o != v {
			_, _, _ = s.routes[o].Remove(req)
		}
		s.owner[req] = v
	}
	s.routes[v] = nr
}

// GiantTour concatenates the requests of all routes in vehicle order. It is
// meaningful for single-visit problems.
func (s *Solution) GiantTour() []vrp.RequestID {
	out := make([]vrp.RequestID, 0, len(s.owner))
	for _, r := range s.routes {
		for _, v := range r.visits {
			out = append(out, v.Request)
		}
	}
	return out
}

// Key is a canonical text form used to detect duplicate solutions. With a
// homogeneous fleet, routes are compared as a multiset.
func (s *Solution) Key() string {
	homogeneous := s.p.HomogeneousFleet()
	parts := make([]string, 0, len(s.routes))
	for _, r := range s.routes {
		if r.Empty() {
			if !homogeneous {
				parts = append(parts, "")
			}
			continue
		}
		var b strings.Builder
		for i, v := range r.visits {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(v.Request)))
			if v.Side == vrp.Pickup {
				b.WriteByte('p')
			} else {
				b.WriteByte('d')
			}
		}
		// requests served without any stop
		if len(r.visits) == 0 {
			for _, req := range r.reqs {
				b.WriteString(strconv.Itoa(int(req)))
				b.WriteByte('i')
			}
		}
		parts = append(parts, b.String())
	}
	if homogeneous {
		sort.Strings(parts)
	}
	return strings.Join(parts, "|")
}

func (s *Solution) String() string {
	var b strings.Builder
	for v, r := range s.routes {
		if r.Empty() {
			continue
		}
		fmt.Fprintf(&b, "vehicle %d:", v)
		for _, n := range r.Nodes() {
			fmt.Fprintf(&b, " %s", s.p.Node(n).ExtID)
		}
		b.WriteByte('\n')
	}
	if u := s.Unassigned(); len(u) > 0 {
		fmt.Fprintf(&b, "unassigned: %v\n", u)
	}
	return b.String()
}
