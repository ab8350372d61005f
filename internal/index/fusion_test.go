package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuseRRF_ScoresAndOrder(t *testing.T) {
	dense := []string{"a", "b", "c"}
	sparse := []string{"b", "a", "d"}

	fused := fuseRRF(dense, sparse, 60, 0)
	require.Len(t, fused, 4)

	byID := make(map[string]float64, len(fused))
	for _, fp := range fused {
		byID[fp.ID] = fp.Score
	}
	require.InDelta(t, 1.0/61+1.0/62, byID["a"], 1e-12)
	require.InDelta(t, 1.0/62+1.0/61, byID["b"], 1e-12)
	require.InDelta(t, 1.0/63, byID["c"], 1e-12)
	require.InDelta(t, 1.0/63, byID["d"], 1e-12)

	// a and b tie exactly; the better dense rank wins. c and d tie; c is
	// dense-ranked, d is not.
	require.Equal(t, []string{"a", "b", "c", "d"}, idsOf(fused))
}

func TestFuseRRF_TopOfBothListsDominates(t *testing.T) {
	dense := []string{"top", "x1", "x2", "x3"}
	sparse := []string{"top", "y1", "y2", "y3"}

	fused := fuseRRF(dense, sparse, 60, 0)
	require.Equal(t, "top", fused[0].ID)
	for _, fp := range fused[1:] {
		require.Less(t, fp.Score, fused[0].Score)
	}
}

func TestFuseRRF_SingleListMembership(t *testing.T) {
	fused := fuseRRF([]string{"a"}, nil, 60, 0)
	require.Len(t, fused, 1)
	require.Equal(t, "a", fused[0].ID)
	require.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}

func TestFuseRRF_LimitCapsOutput(t *testing.T) {
	dense := []string{"a", "b", "c", "d", "e"}
	fused := fuseRRF(dense, nil, 60, 3)
	require.Equal(t, []string{"a", "b", "c"}, idsOf(fused))
}

func TestFuseRRF_ScoresMonotoneInRank(t *testing.T) {
	dense := []string{"a", "b", "c", "d"}
	fused := fuseRRF(dense, dense, 60, 0)
	prev := math.Inf(1)
	for _, fp := range fused {
		require.LessOrEqual(t, fp.Score, prev)
		prev = fp.Score
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, idsOf(fused))
}

func idsOf(fused []fusedPoint) []string {
	ids := make([]string, 0, len(fused))
	for _, fp := range fused {
		ids = append(ids, fp.ID)
	}
	return ids
}
