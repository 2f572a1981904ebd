package opt

import (
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// improveEps is the least cost decrease that counts as an improvement.
const improveEps = 1e-6

const maxPasses = 25

// searcher runs first-improvement local search on one solution. paired is
// set when some request has two stops, so moves must re-check precedence.
type searcher struct {
	cm     route.CostModel
	paired bool
}

// improve applies intra-route relocation and 2-opt, then inter-route
// relocation, swaps and tail exchanges until no move helps.
func (ls searcher) improve(s *route.Solution) {
	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		for _, r := range s.Routes() {
			if ls.orOpt(r) {
				improved = true
			}
			if ls.twoOpt(r) {
				improved = true
			}
		}
		if ls.relocate(s) {
			improved = true
		}
		if ls.crossExchange(s) {
			improved = true
		}
		if ls.twoOptStar(s) {
			improved = true
		}
		if !improved {
			return
		}
	}
}

func (ls searcher) ok(r *route.Route) bool {
	return !ls.paired || r.Valid() == nil
}

// orOpt moves single stops within a route.
func (ls searcher) orOpt(r *route.Route) bool {
	changed := false
	for improved := true; improved; {
		improved = false
		n := r.Len()
		base := r.Evaluate(ls.cm).Cost
		for i := 0; i < n && !improved; i++ {
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				_ = r.Move(i, j)
				if ls.ok(r) && r.Evaluate(ls.cm).Cost+improveEps < base {
					improved, changed = true, true
					break
				}
				_ = r.Move(j, i)
			}
		}
	}
	return changed
}

// twoOpt reverses stop segments within a route.
func (ls searcher) twoOpt(r *route.Route) bool {
	changed := false
	for improved := true; improved; {
		improved = false
		n := r.Len()
		base := r.Evaluate(ls.cm).Cost
		for i := 0; i < n-1 && !improved; i++ {
			for k := i + 1; k < n; k++ {
				_ = r.Reverse(i, k)
				if ls.ok(r) && r.Evaluate(ls.cm).Cost+improveEps < base {
					improved, changed = true, true
					break
				}
				_ = r.Reverse(i, k)
			}
		}
	}
	return changed
}

// relocate moves one request to its best position in another route.
func (ls searcher) relocate(s *route.Solution) bool {
	changed := false
	routes := s.Routes()
	for a := range routes {
		for _, req := range append([]vrp.RequestID(nil), routes[a].Requests()...) {
			ra := routes[a].Clone()
			if _, _, err := ra.Remove(req); err != nil {
				continue
			}
			gain := routes[a].Evaluate(ls.cm).Cost - ra.Evaluate(ls.cm).Cost
			best, found := route.Insertion{}, false
			for b := range routes {
				if b == a {
					continue
				}
				ins, ok := route.BestInsertion(routes[b], req, ls.cm)
				if ok && ins.Delta+improveEps < gain && (!found || ins.Delta < best.Delta) {
					best, found = ins, true
				}
			}
			if !found {
				continue
			}
			s.Unassign(req)
			if best.Apply(s) != nil {
				continue
			}
			changed = true
		}
	}
	return changed
}

// crossExchange swaps two requests between routes, each going to its best
// position in the other route.
func (ls searcher) crossExchange(s *route.Solution) bool {
	routes := s.Routes()
	changed := false
	for a := 0; a < len(routes); a++ {
		for b := a + 1; b < len(routes); b++ {
			if ls.swapBetween(s, vrp.VehicleID(a), vrp.VehicleID(b)) {
				changed = true
			}
		}
	}
	return changed
}

func (ls searcher) swapBetween(s *route.Solution, va, vb vrp.VehicleID) bool {
	ra, rb := s.Route(va), s.Route(vb)
	if ra.Empty() || rb.Empty() {
		return false
	}
	before := ra.Evaluate(ls.cm).Cost + rb.Evaluate(ls.cm).Cost

	// rb without each of its requests, built once
	reqsB := append([]vrp.RequestID(nil), rb.Requests()...)
	withoutB := make([]*route.Route, len(reqsB))
	for j, req := range reqsB {
		withoutB[j] = rb.Clone()
		_, _, _ = withoutB[j].Remove(req)
	}
	for _, qa := range append([]vrp.RequestID(nil), ra.Requests()...) {
		ta := ra.Clone()
		if _, _, err := ta.Remove(qa); err != nil {
			continue
		}
		costA := ta.Evaluate(ls.cm).Cost
		for j, qb := range reqsB {
			tb := withoutB[j]
			insB, ok1 := route.BestInsertion(ta, qb, ls.cm)
			insA, ok2 := route.BestInsertion(tb, qa, ls.cm)
			if !ok1 || !ok2 {
				continue
			}
			after := costA + insB.Delta + tb.Evaluate(ls.cm).Cost + insA.Delta
			if after+improveEps >= before {
				continue
			}
			s.Unassign(qa)
			s.Unassign(qb)
			if insB.Apply(s) != nil || insA.Apply(s) != nil {
				return false
			}
			return true
		}
	}
	return false
}

// twoOptStar exchanges route tails between vehicles with the same start and
// end.
func (ls searcher) twoOptStar(s *route.Solution) bool {
	p := s.Problem()
	routes := s.Routes()
	changed := false
	for a := 0; a < len(routes); a++ {
		for b := a + 1; b < len(routes); b++ {
			va, vb := vrp.VehicleID(a), vrp.VehicleID(b)
			if p.Vehicle(va).Start != p.Vehicle(vb).Start || p.Vehicle(va).End != p.Vehicle(vb).End {
				continue
			}
			for improved := true; improved; {
				improved = false
				ra, rb := s.Route(va), s.Route(vb)
				na, nb := ra.Len(), rb.Len()
				if na+nb == 0 {
					break
				}
				before := ra.Evaluate(ls.cm).Cost + rb.Evaluate(ls.cm).Cost
				for i := 0; i <= na && !improved; i++ {
					for j := 0; j <= nb; j++ {
						if i == na && j == nb {
							continue
						}
						if s.ExchangeTails(va, vb, i, j) != nil {
							continue
						}
						after := s.Route(va).Evaluate(ls.cm).Cost + s.Route(vb).Evaluate(ls.cm).Cost
						if after+improveEps < before {
							improved, changed = true, true
							break
						}
						// the exchange is its own inverse
						_ = s.ExchangeTails(va, vb, i, j)
					}
				}
			}
		}
	}
	return changed
}
