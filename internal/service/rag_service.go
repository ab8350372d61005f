package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/model"
	"github.com/jauapai/jauap/internal/prompt"
)

// Context strings surfaced to the generator when retrieval cannot produce
// passages. The generator is instructed to answer only from context, so
// these flow into a "no answer available" reply instead of hallucination.
const (
	noResultContext    = "Информация не найдена."
	searchErrorContext = "Error searching database."
)

type RetrievalConfig struct {
	PrefetchLimit int
	FusedLimit    int
	RerankTopK    int
}

func (c *RetrievalConfig) fill() {
	if c.PrefetchLimit <= 0 {
		c.PrefetchLimit = 30
	}
	if c.FusedLimit <= 0 {
		c.FusedLimit = 50
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 5
	}
}

// RetrievedContext is the assembled evidence for one question. Degraded
// marks results produced without reranking or after a search failure;
// Empty marks the valid "nothing matched" outcome.
type RetrievedContext struct {
	Text      string
	Citations []model.Citation
	Degraded  bool
	Empty     bool
}

type RAGService struct {
	dense     ai.IDenseEmbedder
	sparse    ai.ISparseEncoder
	reranker  ai.IReranker
	generator ai.IStreamGenerator
	store     index.Store
	cfg       RetrievalConfig
}

func NewRAGService(dense ai.IDenseEmbedder, sparse ai.ISparseEncoder, reranker ai.IReranker,
	generator ai.IStreamGenerator, store index.Store, cfg RetrievalConfig) *RAGService {
	cfg.fill()
	return &RAGService{
		dense:     dense,
		sparse:    sparse,
		reranker:  reranker,
		generator: generator,
		store:     store,
		cfg:       cfg,
	}
}

// Retrieve runs the hybrid search for question and renders the context
// block. Search failures degrade to an explicit error context instead of
// failing the chat request.
func (s *RAGService) Retrieve(ctx context.Context, question string, filter model.Filter) *RetrievedContext {
	logger := logutil.GetLogger(ctx)
	candidates, err := s.search(ctx, question, filter)
	if err != nil {
		logger.Error("hybrid search failed", zap.Error(err))
		return &RetrievedContext{Text: searchErrorContext, Degraded: true}
	}
	if len(candidates) == 0 {
		return &RetrievedContext{Text: noResultContext, Empty: true}
	}

	ranked, degraded := s.rerank(ctx, question, candidates)
	blocks := make([]string, 0, len(ranked))
	citations := make([]model.Citation, 0, len(ranked))
	for _, candidate := range ranked {
		blocks = append(blocks, formatContextBlock(candidate))
		citations = append(citations, model.Citation{
			Discipline: candidate.Tags.Discipline,
			Grade:      candidate.Tags.Grade,
			Publisher:  candidate.Tags.Publisher,
			Pages:      candidate.Pages,
		})
	}
	return &RetrievedContext{
		Text:      strings.Join(blocks, "\n\n"),
		Citations: citations,
		Degraded:  degraded,
	}
}

func (s *RAGService) search(ctx context.Context, question string, filter model.Filter) ([]*model.Candidate, error) {
	denseVec, err := s.dense.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sparseVec, err := s.sparse.EncodeQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	candidates, err := s.store.Query(ctx, index.QueryParams{
		Dense:         denseVec,
		Sparse:        sparseVec,
		Filter:        filter,
		PrefetchLimit: s.cfg.PrefetchLimit,
		FinalLimit:    s.cfg.FusedLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return candidates, nil
}

// rerank reorders fusion-ranked candidates with the cross-encoder. When the
// reranker fails the first top-k candidates pass through in fusion order,
// without relevance scores.
func (s *RAGService) rerank(ctx context.Context, question string, candidates []*model.Candidate) ([]*model.Candidate, bool) {
	topK := s.cfg.RerankTopK
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if s.reranker == nil {
		return candidates[:topK], true
	}
	documents := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		documents = append(documents, candidate.Content)
	}
	results, err := s.reranker.Rerank(ctx, question, documents, topK)
	if err != nil {
		logutil.GetLogger(ctx).Warn("rerank failed, falling back to fusion order", zap.Error(err))
		return candidates[:topK], true
	}
	ranked := make([]*model.Candidate, 0, len(results))
	for _, result := range results {
		if result.Index < 0 || result.Index >= len(candidates) {
			continue
		}
		candidate := candidates[result.Index]
		candidate.Relevance = result.Relevance
		candidate.Reranked = true
		ranked = append(ranked, candidate)
	}
	if len(ranked) == 0 {
		return candidates[:topK], true
	}
	return ranked, false
}

// StreamChat retrieves context for question, assembles the prompt with the
// conversation history and opens the generation stream. Citations describe
// the passages behind the context and are available before the stream ends.
func (s *RAGService) StreamChat(ctx context.Context, history []model.Turn, question string, filter model.Filter) (<-chan model.Fragment, []model.Citation, error) {
	retrieved := s.Retrieve(ctx, question, filter)
	messages := prompt.Build(history, question, retrieved.Text)
	stream, err := s.generator.Stream(ctx, messages)
	if err != nil {
		return nil, nil, fmt.Errorf("open generation stream: %w", err)
	}
	return stream, retrieved.Citations, nil
}

// Chat is the non-streaming variant: it drains the fragment stream and
// returns the concatenated answer. Fragments already produced before a
// mid-stream failure stay in the answer, matching what a streaming client
// would have displayed.
func (s *RAGService) Chat(ctx context.Context, history []model.Turn, question string, filter model.Filter) (string, []model.Citation, error) {
	stream, citations, err := s.StreamChat(ctx, history, question, filter)
	if err != nil {
		return "", nil, err
	}
	var answer strings.Builder
	for fragment := range stream {
		answer.WriteString(fragment.Text)
	}
	return answer.String(), citations, nil
}

func formatContextBlock(candidate *model.Candidate) string {
	pages := make([]string, 0, len(candidate.Pages))
	for _, page := range candidate.Pages {
		pages = append(pages, strconv.Itoa(page))
	}
	return fmt.Sprintf("Кітап атауы: %s\nСынып: %s\nБаспа: %s\nБеттер: %s\n\n%s",
		orUnknown(candidate.Tags.Discipline),
		orUnknown(candidate.Tags.Grade),
		orUnknown(candidate.Tags.Publisher),
		strings.Join(pages, ", "),
		candidate.Content,
	)
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Unknown"
	}
	return value
}
