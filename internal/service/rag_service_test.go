package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/model"
)

type fakeDense struct {
	vec []float32
	err error
}

func (f *fakeDense) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeDense) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fakeDense) ModelName() string { return "fake-dense" }

type fakeSparse struct {
	vec model.SparseVector
	err error
}

func (f *fakeSparse) EncodeQuery(_ context.Context, _ string) (model.SparseVector, error) {
	return f.vec, f.err
}

func (f *fakeSparse) EncodeDocuments(_ context.Context, texts []string) ([]model.SparseVector, error) {
	out := make([]model.SparseVector, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fakeSparse) ModelName() string { return "fake-sparse" }

type fakeReranker struct {
	results []ai.RerankResult
	err     error
	gotDocs []string
	gotTopK int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]ai.RerankResult, error) {
	f.gotDocs = documents
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	fragments []model.Fragment
	gotPrompt []model.Message
}

func (f *fakeGenerator) Stream(_ context.Context, messages []model.Message) (<-chan model.Fragment, error) {
	f.gotPrompt = messages
	out := make(chan model.Fragment, len(f.fragments))
	for _, frag := range f.fragments {
		out <- frag
	}
	close(out)
	return out, nil
}

type failingStore struct{}

func (failingStore) Upsert(_ context.Context, _ []*model.Point) error    { return nil }
func (failingStore) EnsureFilterIndexes(_ context.Context) error         { return nil }
func (failingStore) Ping(_ context.Context) error                        { return nil }
func (failingStore) Query(_ context.Context, _ index.QueryParams) ([]*model.Candidate, error) {
	return nil, errors.New("connection refused")
}

func seededStore(t *testing.T, contents ...string) index.Store {
	t.Helper()
	store := index.NewMemoryStore()
	points := make([]*model.Point, 0, len(contents))
	for i, content := range contents {
		points = append(points, &model.Point{
			ID:      string(rune('a' + i)),
			Vectors: model.EmbeddingPair{Dense: []float32{1, 0}, Sparse: model.SparseVector{1: float32(len(contents) - i)}},
			Payload: model.PointPayload{
				Content: content,
				Tags:    model.SourceTags{Discipline: "Қазақстан тарихы", Grade: "9", Publisher: "Атамұра"},
				Pages:   []int{i + 1},
			},
		})
	}
	require.NoError(t, store.Upsert(context.Background(), points))
	return store
}

func newTestService(store index.Store, reranker ai.IReranker, generator ai.IStreamGenerator) *RAGService {
	return NewRAGService(
		&fakeDense{vec: []float32{1, 0}},
		&fakeSparse{vec: model.SparseVector{1: 1}},
		reranker,
		generator,
		store,
		RetrievalConfig{PrefetchLimit: 10, FusedLimit: 10, RerankTopK: 2},
	)
}

func TestRetrieve_RerankerReordersCandidates(t *testing.T) {
	store := seededStore(t, "first passage", "second passage", "third passage")
	reranker := &fakeReranker{results: []ai.RerankResult{
		{Index: 2, Relevance: 0.95},
		{Index: 0, Relevance: 0.40},
	}}
	svc := newTestService(store, reranker, nil)

	got := svc.Retrieve(context.Background(), "сұрақ", model.Filter{})
	require.False(t, got.Degraded)
	require.False(t, got.Empty)
	require.Len(t, got.Citations, 2)
	require.Equal(t, []int{3}, got.Citations[0].Pages)
	require.Equal(t, []int{1}, got.Citations[1].Pages)
	require.Contains(t, got.Text, "third passage")
	require.Less(t, indexOf(got.Text, "third passage"), indexOf(got.Text, "first passage"))
	require.Equal(t, 2, reranker.gotTopK)
	require.Len(t, reranker.gotDocs, 3)
}

func TestRetrieve_RerankFailureFallsBackToFusionOrder(t *testing.T) {
	store := seededStore(t, "first passage", "second passage", "third passage")
	reranker := &fakeReranker{err: errors.New("rerank api down")}
	svc := newTestService(store, reranker, nil)

	got := svc.Retrieve(context.Background(), "сұрақ", model.Filter{})
	require.True(t, got.Degraded)
	require.Len(t, got.Citations, 2)
	// Fusion order preserved: the first two fused candidates, in order.
	require.Less(t, indexOf(got.Text, "first passage"), indexOf(got.Text, "second passage"))
	require.NotContains(t, got.Text, "third passage")
}

func TestRetrieve_EmptyResultIsNotAnError(t *testing.T) {
	svc := newTestService(index.NewMemoryStore(), &fakeReranker{}, nil)
	got := svc.Retrieve(context.Background(), "сұрақ", model.Filter{Discipline: "Физика"})
	require.True(t, got.Empty)
	require.False(t, got.Degraded)
	require.Equal(t, "Информация не найдена.", got.Text)
	require.Empty(t, got.Citations)
}

func TestRetrieve_IndexFailureDegradesToSearchError(t *testing.T) {
	svc := newTestService(failingStore{}, &fakeReranker{}, nil)
	got := svc.Retrieve(context.Background(), "сұрақ", model.Filter{})
	require.True(t, got.Degraded)
	require.Equal(t, "Error searching database.", got.Text)
}

func TestRetrieve_ContextBlockCarriesSourceHeader(t *testing.T) {
	store := seededStore(t, "Абылай хан — қазақ ханы.")
	svc := newTestService(store, &fakeReranker{results: []ai.RerankResult{{Index: 0, Relevance: 0.9}}}, nil)

	got := svc.Retrieve(context.Background(), "сұрақ", model.Filter{})
	require.Contains(t, got.Text, "Кітап атауы: Қазақстан тарихы")
	require.Contains(t, got.Text, "Сынып: 9")
	require.Contains(t, got.Text, "Баспа: Атамұра")
	require.Contains(t, got.Text, "Беттер: 1")
	require.Contains(t, got.Text, "Абылай хан — қазақ ханы.")
}

func TestStreamChat_PromptEmbedsRetrievedContext(t *testing.T) {
	store := seededStore(t, "passage body")
	generator := &fakeGenerator{fragments: []model.Fragment{
		model.TextFragment("Hel"),
		model.TextFragment("lo"),
	}}
	svc := newTestService(store, &fakeReranker{results: []ai.RerankResult{{Index: 0, Relevance: 0.9}}}, generator)

	history := []model.Turn{{Role: model.RoleUser, Content: "алдыңғы сұрақ"}}
	stream, citations, err := svc.StreamChat(context.Background(), history, "сұрақ", model.Filter{})
	require.NoError(t, err)
	require.Len(t, citations, 1)

	var texts []string
	for frag := range stream {
		texts = append(texts, frag.Text)
	}
	require.Equal(t, []string{"Hel", "lo"}, texts)

	require.Equal(t, model.RoleSystem, generator.gotPrompt[0].Role)
	require.Contains(t, generator.gotPrompt[0].Content, "passage body")
	require.Equal(t, "алдыңғы сұрақ", generator.gotPrompt[1].Content)
	require.Equal(t, "сұрақ", generator.gotPrompt[len(generator.gotPrompt)-1].Content)
}

func TestChat_ConcatenatesFragments(t *testing.T) {
	store := seededStore(t, "passage body")
	generator := &fakeGenerator{fragments: []model.Fragment{
		model.TextFragment("Жауап "),
		model.TextFragment("мәтіні"),
	}}
	svc := newTestService(store, &fakeReranker{results: []ai.RerankResult{{Index: 0, Relevance: 0.9}}}, generator)

	answer, citations, err := svc.Chat(context.Background(), nil, "сұрақ", model.Filter{})
	require.NoError(t, err)
	require.Equal(t, "Жауап мәтіні", answer)
	require.Len(t, citations, 1)
}

func indexOf(haystack, needle string) int {
	return strings.Index(haystack, needle)
}
