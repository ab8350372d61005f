package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const voyageDefaultBaseURL = "https://api.voyageai.com/v1"

type voyageConfig struct {
	APIKey          string `json:"api_key"`
	Model           string `json:"model"`
	BaseURL         string `json:"base_url"`
	OutputDimension int    `json:"output_dimension"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

type voyageEmbedder struct {
	client    *resty.Client
	model     string
	dimension int
}

type voyageEmbedRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type,omitempty"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *voyageEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *voyageEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, texts, "document")
}

func (p *voyageEmbedder) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	body := voyageEmbedRequest{
		Input:           texts,
		Model:           p.model,
		InputType:       inputType,
		OutputDimension: p.dimension,
	}
	result := &voyageEmbedResponse{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("voyage embed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("voyage embed: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("voyage embed: got %d vectors for %d inputs", len(result.Data), len(texts))
	}
	// The API documents input order, but the index field is authoritative.
	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})
	vectors := make([][]float32, len(result.Data))
	for i, item := range result.Data {
		if p.dimension > 0 && len(item.Embedding) != p.dimension {
			return nil, fmt.Errorf("voyage embed: vector %d has dimension %d, want %d", i, len(item.Embedding), p.dimension)
		}
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (p *voyageEmbedder) ModelName() string {
	return p.model
}

type voyageReranker struct {
	client *resty.Client
	model  string
}

type voyageRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k"`
}

type voyageRerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

func (p *voyageReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	body := voyageRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     p.model,
		TopK:      topK,
	}
	result := &voyageRerankResponse{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post("/rerank")
	if err != nil {
		return nil, fmt.Errorf("voyage rerank: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("voyage rerank: status %d: %s", resp.StatusCode(), resp.String())
	}
	out := make([]RerankResult, 0, len(result.Data))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(documents) {
			return nil, fmt.Errorf("voyage rerank: result index %d out of range", item.Index)
		}
		out = append(out, RerankResult{Index: item.Index, Relevance: item.RelevanceScore})
	}
	return out, nil
}

func newVoyageClient(cfg *voyageConfig) (*resty.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = voyageDefaultBaseURL
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(apiKey).
		SetTimeout(timeout), nil
}

func createVoyageDenseFactory(_ context.Context, args interface{}) (IDenseEmbedder, error) {
	cfg := &voyageConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("voyage embed model is required")
	}
	client, err := newVoyageClient(cfg)
	if err != nil {
		return nil, err
	}
	return &voyageEmbedder{client: client, model: cfg.Model, dimension: cfg.OutputDimension}, nil
}

func createVoyageRerankFactory(_ context.Context, args interface{}) (IReranker, error) {
	cfg := &voyageConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("voyage rerank model is required")
	}
	client, err := newVoyageClient(cfg)
	if err != nil {
		return nil, err
	}
	return &voyageReranker{client: client, model: cfg.Model}, nil
}

func init() {
	RegisterDense("voyage", createVoyageDenseFactory)
	RegisterRerank("voyage", createVoyageRerankFactory)
}
