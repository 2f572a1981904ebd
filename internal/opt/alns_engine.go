package opt

import (
	"context"
	"math"
	"sort"

	"elasticroute/internal/construct"
	"elasticroute/internal/evol"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

const (
	removeRandom = iota
	removeShaw
)

const (
	insertGreedy = iota
	insertRegret
)

type Metrics struct {
	RemovalSelects        [2]int           `json:"removalSelects"` // random, shaw
	InsertSelects         [2]int           `json:"insertSelects"`  // greedy, regret2
	Generations           int              `json:"generations"`
	Improvements          int              `json:"improvements"`
	AcceptedWorse         int              `json:"acceptedWorse"`
	BestCost              float64          `json:"bestCost"`
	FinalCost             float64          `json:"finalCost"`
	FinalRemovalWeights   [2]float64       `json:"finalRemovalWeights"`
	FinalInsertionWeights [2]float64       `json:"finalInsertionWeights"`
	Snapshots             []WeightSnapshot `json:"snapshots,omitempty"`
}

type WeightSnapshot struct {
	Generation int        `json:"generation"`
	Removal    [2]float64 `json:"removal"`
	Insertion  [2]float64 `json:"insertion"`
}

const snapshotEvery = 50

// weights are the adaptive roulette weights. They are read by all breeding
// goroutines and written only by learn, after the generation barrier.
type weights struct {
	removal   [2]float64
	insertion [2]float64
}

// learn scores the operators that produced each child: +0.1 for a new best,
// +0.01 for an accepted child, and a slow decay towards 0.01 otherwise.
func (w *weights) learn(m *Metrics, gen int, outcomes []evol.Outcome[*Individual]) {
	for _, out := range outcomes {
		op, ip := out.Child.removal, out.Child.insertion
		if op < 0 || ip < 0 {
			continue
		}
		m.RemovalSelects[op]++
		m.InsertSelects[ip]++
		switch {
		case out.NewBest:
			w.removal[op] += 0.1
			w.insertion[ip] += 0.1
			m.Improvements++
		case out.Accepted:
			w.removal[op] += 0.01
			w.insertion[ip] += 0.01
			m.AcceptedWorse++
		default:
			w.removal[op] = math.Max(0.01, w.removal[op]*0.999)
			w.insertion[ip] = math.Max(0.01, w.insertion[ip]*0.999)
		}
	}
	m.Generations = gen
	if gen%snapshotEvery == 0 {
		m.Snapshots = append(m.Snapshots, WeightSnapshot{Generation: gen, Removal: w.removal, Insertion: w.insertion})
	}
}

// ruinAndRecreate removes a few requests from s and reinserts them together
// with anything already unassigned. It returns the operators used.
func ruinAndRecreate(s *route.Solution, cfg Config, w *weights, r *rng.RNG) (rem, ins int) {
	p := s.Problem()
	assigned := assignedRequests(s)
	rem = selectOp(w.removal[:], r)
	ins = selectOp(w.insertion[:], r)
	if len(assigned) > 0 {
		lo, hi := cfg.ruinRange(len(assigned))
		k := r.IntRange(lo, hi+1)
		var removed []vrp.RequestID
		switch rem {
		case removeRandom:
			removed = pickRandomRequests(assigned, k, r)
		case removeShaw:
			removed = shawRemoval(p, assigned, k, r)
		}
		for _, req := range removed {
			s.Unassign(req)
		}
	}
	// reinsertion cannot fail without a cancelled context; whatever is left
	// stays unassigned and is priced as such
	switch ins {
	case insertGreedy:
		_, _ = construct.InsertGreedy(context.Background(), s, s.Unassigned(), cfg.Cost)
	case insertRegret:
		_, _ = construct.InsertRegret(context.Background(), s, s.Unassigned(), cfg.Cost)
	}
	return rem, ins
}

func assignedRequests(s *route.Solution) []vrp.RequestID {
	var out []vrp.RequestID
	for _, r := range s.Routes() {
		out = append(out, r.Requests()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func pickRandomRequests(assigned []vrp.RequestID, k int, r *rng.RNG) []vrp.RequestID {
	all := append([]vrp.RequestID(nil), assigned...)
	removed := make([]vrp.RequestID, 0, k)
	for i := 0; i < k && len(all) > 0; i++ {
		j := r.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval removes a random request and the k-1 requests most related to
// it: close in space and with overlapping time windows.
func shawRemoval(p *vrp.Problem, assigned []vrp.RequestID, k int, r *rng.RNG) []vrp.RequestID {
	seed := assigned[r.Intn(len(assigned))]
	type pair struct {
		req   vrp.RequestID
		score float64
	}
	rel := make([]pair, 0, len(assigned)-1)
	for _, req := range assigned {
		if req == seed {
			continue
		}
		rel = append(rel, pair{req, relatedness(p, seed, req)})
	}
	sort.SliceStable(rel, func(i, j int) bool { return rel[i].score < rel[j].score })
	removed := []vrp.RequestID{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].req)
	}
	return removed
}

// relatedness is lower for more related requests: the distance between
// matching endpoints, shrunk by up to half when their windows overlap.
func relatedness(p *vrp.Problem, a, b vrp.RequestID) float64 {
	ra, rb := p.Request(a), p.Request(b)
	var d float64
	if ra.Sender.Node != vrp.None && rb.Sender.Node != vrp.None {
		d += p.Distance(ra.Sender.Node, rb.Sender.Node)
	}
	if ra.Receiver.Node != vrp.None && rb.Receiver.Node != vrp.None {
		d += p.Distance(ra.Receiver.Node, rb.Receiver.Node)
	}
	return d * (1 - 0.5*twOverlap(mainWindows(ra), mainWindows(rb)))
}

func mainWindows(r *vrp.Request) []vrp.TimeWindow {
	if len(r.Receiver.Windows) > 0 {
		return r.Receiver.Windows
	}
	return r.Sender.Windows
}

// twOverlap is the overlap of the two window spans as a fraction of the
// shorter one.
func twOverlap(a, b []vrp.TimeWindow) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	as, ae := a[0].Earliest, a[len(a)-1].Latest
	bs, be := b[0].Earliest, b[len(b)-1].Latest
	start, end := max(as, bs), min(ae, be)
	if end < start {
		return 0
	}
	span := min(ae-as, be-bs)
	if span <= 0 {
		return 1
	}
	return (end - start) / span
}

func selectOp(weights []float64, r *rng.RNG) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	x := r.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if x <= acc {
			return i
		}
	}
	return len(weights) - 1
}
