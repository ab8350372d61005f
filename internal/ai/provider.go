package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jauapai/jauap/internal/model"
)

// Task types passed to dense embedders. Query and document embeddings may
// use different instruction prefixes on some models.
const (
	TaskTypeQuery    = "query"
	TaskTypeDocument = "document"
)

// IDenseEmbedder maps text to a fixed-length float vector. Batch output is
// order-aligned with input order.
type IDenseEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// ISparseEncoder maps text to lexical token weights. Batch output is
// order-aligned with input order.
type ISparseEncoder interface {
	EncodeQuery(ctx context.Context, text string) (model.SparseVector, error)
	EncodeDocuments(ctx context.Context, texts []string) ([]model.SparseVector, error)
	ModelName() string
}

type RerankResult struct {
	Index     int
	Relevance float64
}

// IReranker scores (query, document) pairs jointly and returns the top-k
// by relevance, each result carrying the original document index.
type IReranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)
}

// IStreamGenerator invokes the language model in streaming mode. The
// returned channel is closed after the final fragment; a mid-stream failure
// is reported as a trailing error fragment, never as a panic or a dropped
// stream. The generator stops pulling when ctx is done.
type IStreamGenerator interface {
	Stream(ctx context.Context, messages []model.Message) (<-chan model.Fragment, error)
}

type (
	DenseFactory     func(ctx context.Context, args interface{}) (IDenseEmbedder, error)
	SparseFactory    func(ctx context.Context, args interface{}) (ISparseEncoder, error)
	RerankFactory    func(ctx context.Context, args interface{}) (IReranker, error)
	GeneratorFactory func(ctx context.Context, args interface{}) (IStreamGenerator, error)
)

var (
	denseRegistry     = map[string]DenseFactory{}
	sparseRegistry    = map[string]SparseFactory{}
	rerankRegistry    = map[string]RerankFactory{}
	generatorRegistry = map[string]GeneratorFactory{}
)

func RegisterDense(name string, factory DenseFactory) {
	if key := registryKey(name); key != "" && factory != nil {
		denseRegistry[key] = factory
	}
}

func RegisterSparse(name string, factory SparseFactory) {
	if key := registryKey(name); key != "" && factory != nil {
		sparseRegistry[key] = factory
	}
}

func RegisterRerank(name string, factory RerankFactory) {
	if key := registryKey(name); key != "" && factory != nil {
		rerankRegistry[key] = factory
	}
}

func RegisterGenerator(name string, factory GeneratorFactory) {
	if key := registryKey(name); key != "" && factory != nil {
		generatorRegistry[key] = factory
	}
}

func NewDenseEmbedder(ctx context.Context, name string, args interface{}) (IDenseEmbedder, error) {
	factory := denseRegistry[registryKey(name)]
	if factory == nil {
		return nil, fmt.Errorf("unsupported dense embedder: %s", name)
	}
	return factory(ctx, args)
}

func NewSparseEncoder(ctx context.Context, name string, args interface{}) (ISparseEncoder, error) {
	factory := sparseRegistry[registryKey(name)]
	if factory == nil {
		return nil, fmt.Errorf("unsupported sparse encoder: %s", name)
	}
	return factory(ctx, args)
}

func NewReranker(ctx context.Context, name string, args interface{}) (IReranker, error) {
	factory := rerankRegistry[registryKey(name)]
	if factory == nil {
		return nil, fmt.Errorf("unsupported reranker: %s", name)
	}
	return factory(ctx, args)
}

func NewStreamGenerator(ctx context.Context, name string, args interface{}) (IStreamGenerator, error) {
	factory := generatorRegistry[registryKey(name)]
	if factory == nil {
		return nil, fmt.Errorf("unsupported generator: %s", name)
	}
	return factory(ctx, args)
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
