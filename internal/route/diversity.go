package route

// arc links two consecutive stops. A stop is encoded as 2*request+side, the
// route start as -1 and the route end as -2.
type arc struct{ from, to int }

func arcsOf(s *Solution) map[arc]struct{} {
	m := make(map[arc]struct{}, len(s.owner)*2)
	for _, r := range s.routes {
		if len(r.visits) == 0 {
			continue
		}
		prev := -1
		for _, v := range r.visits {
			cur := 2*int(v.Request) + int(v.Side)
			m[arc{prev, cur}] = struct{}{}
			prev = cur
		}
		m[arc{prev, -2}] = struct{}{}
	}
	return m
}

// BrokenPairs is the share of stop adjacencies present in exactly one of the
// two solutions, in [0, 1]. Identical solutions are at distance 0; the
// measure ignores which vehicle drives a route.
//
// Complexity: O(|a| + |b|) stops.
func BrokenPairs(a, b *Solution) float64 {
	ma, mb := arcsOf(a), arcsOf(b)
	if len(ma) == 0 && len(mb) == 0 {
		return 0
	}
	common := 0
	for k := range ma {
		if _, ok := mb[k]; ok {
			common++
		}
	}
	union := len(ma) + len(mb) - common
	return float64(union-common) / float64(union)
}
