package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jauapai/jauap/internal/model"
)

func newTestPoint(id string, dense []float32, sparse model.SparseVector, tags model.SourceTags, pages ...int) *model.Point {
	return &model.Point{
		ID:      id,
		Vectors: model.EmbeddingPair{Dense: dense, Sparse: sparse},
		Payload: model.PointPayload{
			Content: "content of " + id,
			Tags:    tags,
			Pages:   pages,
		},
	}
}

func TestMemoryStore_FilterIsExact(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	history := model.SourceTags{Discipline: "Қазақстан тарихы", Grade: "9", Publisher: "Атамұра"}
	biology := model.SourceTags{Discipline: "Биология", Grade: "9", Publisher: "Атамұра"}
	require.NoError(t, store.Upsert(ctx, []*model.Point{
		newTestPoint("h1", []float32{1, 0}, model.SparseVector{1: 1}, history, 10),
		newTestPoint("b1", []float32{1, 0}, model.SparseVector{1: 1}, biology, 20),
	}))

	got, err := store.Query(ctx, QueryParams{
		Dense:         []float32{1, 0},
		Sparse:        model.SparseVector{1: 1},
		Filter:        model.Filter{Discipline: "Қазақстан тарихы"},
		PrefetchLimit: 10,
		FinalLimit:    10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "h1", got[0].ID)
	require.Equal(t, []int{10}, got[0].Pages)
}

func TestMemoryStore_NoMatchReturnsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, []*model.Point{
		newTestPoint("p1", []float32{1, 0}, model.SparseVector{1: 1}, model.SourceTags{Discipline: "Химия"}),
	}))

	got, err := store.Query(ctx, QueryParams{
		Dense:         []float32{1, 0},
		Sparse:        model.SparseVector{1: 1},
		Filter:        model.Filter{Discipline: "Физика"},
		PrefetchLimit: 10,
		FinalLimit:    10,
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemoryStore_UpsertIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	point := newTestPoint("p1", []float32{1, 0}, model.SparseVector{1: 1}, model.SourceTags{Discipline: "Химия"}, 3)
	require.NoError(t, store.Upsert(ctx, []*model.Point{point}))

	updated := newTestPoint("p1", []float32{0, 1}, model.SparseVector{2: 1}, model.SourceTags{Discipline: "Химия"}, 4)
	updated.Payload.Content = "replaced"
	require.NoError(t, store.Upsert(ctx, []*model.Point{updated}))

	got, err := store.Query(ctx, QueryParams{
		Dense:         []float32{0, 1},
		Sparse:        model.SparseVector{2: 1},
		PrefetchLimit: 10,
		FinalLimit:    10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "replaced", got[0].Content)
	require.Equal(t, []int{4}, got[0].Pages)
}

func TestMemoryStore_HybridBeatsSingleFamily(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tags := model.SourceTags{Discipline: "Биология"}
	require.NoError(t, store.Upsert(ctx, []*model.Point{
		newTestPoint("both", []float32{1, 0}, model.SparseVector{7: 5}, tags),
		newTestPoint("dense", []float32{0.9, 0.1}, model.SparseVector{9: 1}, tags),
		newTestPoint("sparse", []float32{0, 1}, model.SparseVector{7: 4}, tags),
	}))

	got, err := store.Query(ctx, QueryParams{
		Dense:         []float32{1, 0},
		Sparse:        model.SparseVector{7: 1},
		PrefetchLimit: 10,
		FinalLimit:    10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, "both", got[0].ID)
	for _, cand := range got[1:] {
		require.Less(t, cand.FusedScore, got[0].FusedScore)
	}
}

func TestMemoryStore_ZeroSparseScoreExcludedFromSparseRanking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tags := model.SourceTags{Discipline: "Биология"}
	require.NoError(t, store.Upsert(ctx, []*model.Point{
		newTestPoint("overlap", []float32{0, 1}, model.SparseVector{7: 2}, tags),
		newTestPoint("disjoint", []float32{1, 0}, model.SparseVector{8: 2}, tags),
	}))

	got, err := store.Query(ctx, QueryParams{
		Dense:         []float32{0, 1},
		Sparse:        model.SparseVector{7: 1},
		PrefetchLimit: 10,
		FinalLimit:    10,
	})
	require.NoError(t, err)
	require.Equal(t, "overlap", got[0].ID)
}
