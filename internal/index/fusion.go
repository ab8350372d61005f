package index

import "sort"

// DefaultRRFK is the conventional reciprocal-rank-fusion constant.
const DefaultRRFK = 60

type fusedPoint struct {
	ID    string
	Score float64
}

const absentRank = 1 << 30

// fuseRRF merges two ranked id lists. Every id present in either list gets
// score = sum over lists of 1/(k + rank), rank 1-based. Ties are broken by
// dense-list rank first (ids missing from the dense list sort after their
// equal-score dense-ranked peers), then sparse rank, then id.
func fuseRRF(denseIDs, sparseIDs []string, k, limit int) []fusedPoint {
	if k <= 0 {
		k = DefaultRRFK
	}
	denseRank := make(map[string]int, len(denseIDs))
	for i, id := range denseIDs {
		if _, seen := denseRank[id]; !seen {
			denseRank[id] = i + 1
		}
	}
	sparseRank := make(map[string]int, len(sparseIDs))
	for i, id := range sparseIDs {
		if _, seen := sparseRank[id]; !seen {
			sparseRank[id] = i + 1
		}
	}

	scores := make(map[string]float64, len(denseRank)+len(sparseRank))
	order := make([]string, 0, len(denseRank)+len(sparseRank))
	for id, rank := range denseRank {
		scores[id] = 1.0 / float64(k+rank)
	}
	for id, rank := range sparseRank {
		scores[id] += 1.0 / float64(k+rank)
	}
	for id := range scores {
		order = append(order, id)
	}

	rankOf := func(ranks map[string]int, id string) int {
		if r, ok := ranks[id]; ok {
			return r
		}
		return absentRank
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		da, db := rankOf(denseRank, a), rankOf(denseRank, b)
		if da != db {
			return da < db
		}
		sa, sb := rankOf(sparseRank, a), rankOf(sparseRank, b)
		if sa != sb {
			return sa < sb
		}
		return a < b
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	out := make([]fusedPoint, 0, len(order))
	for _, id := range order {
		out = append(out, fusedPoint{ID: id, Score: scores[id]})
	}
	return out
}
