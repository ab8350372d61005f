package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jauapai/jauap/internal/model"
)

// memoryStore is an in-process backend with exact scans. It mirrors the
// pgvector semantics (cosine for dense, dot product for sparse, same RRF
// path) and backs tests and local development.
type memoryStore struct {
	mu     sync.RWMutex
	order  []string
	points map[string]*model.Point
}

func init() {
	Register("memory", func(_ context.Context, _ Config) (Store, error) {
		return NewMemoryStore(), nil
	})
}

func NewMemoryStore() Store {
	return &memoryStore{points: make(map[string]*model.Point)}
}

func (s *memoryStore) Upsert(_ context.Context, points []*model.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, point := range points {
		if _, exists := s.points[point.ID]; !exists {
			s.order = append(s.order, point.ID)
		}
		clone := *point
		s.points[point.ID] = &clone
	}
	return nil
}

func (s *memoryStore) EnsureFilterIndexes(_ context.Context) error {
	return nil
}

func (s *memoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *memoryStore) Query(_ context.Context, params QueryParams) ([]*model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := params.Filter.Fields()
	matched := make([]*model.Point, 0, len(s.order))
	for _, id := range s.order {
		point := s.points[id]
		if matchesFilter(point, fields) {
			matched = append(matched, point)
		}
	}

	denseIDs := rankBy(matched, params.PrefetchLimit, func(p *model.Point) (float64, bool) {
		return cosineSimilarity(params.Dense, p.Vectors.Dense), true
	})
	sparseIDs := rankBy(matched, params.PrefetchLimit, func(p *model.Point) (float64, bool) {
		score := sparseDot(params.Sparse, p.Vectors.Sparse)
		return score, score > 0
	})

	fused := fuseRRF(denseIDs, sparseIDs, DefaultRRFK, params.FinalLimit)
	out := make([]*model.Candidate, 0, len(fused))
	for _, fp := range fused {
		point := s.points[fp.ID]
		out = append(out, &model.Candidate{
			ID:         point.ID,
			Content:    point.Payload.Content,
			Tags:       point.Payload.Tags,
			Pages:      append([]int(nil), point.Payload.Pages...),
			FusedScore: fp.Score,
		})
	}
	return out, nil
}

func matchesFilter(point *model.Point, fields map[string]string) bool {
	if v, ok := fields["discipline"]; ok && point.Payload.Tags.Discipline != v {
		return false
	}
	if v, ok := fields["grade"]; ok && point.Payload.Tags.Grade != v {
		return false
	}
	if v, ok := fields["publisher"]; ok && point.Payload.Tags.Publisher != v {
		return false
	}
	return true
}

func rankBy(points []*model.Point, limit int, score func(*model.Point) (float64, bool)) []string {
	type scored struct {
		id    string
		score float64
		pos   int
	}
	items := make([]scored, 0, len(points))
	for i, point := range points {
		value, ok := score(point)
		if !ok {
			continue
		}
		items = append(items, scored{id: point.ID, score: value, pos: i})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].pos < items[j].pos
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.id)
	}
	return ids
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sparseDot(a, b model.SparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for token, weight := range a {
		if other, ok := b[token]; ok {
			dot += float64(weight) * float64(other)
		}
	}
	return dot
}
