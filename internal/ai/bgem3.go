package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jauapai/jauap/internal/model"
)

// bgem3Encoder talks to a self-hosted BGE-M3 inference service that exposes
// the model's lexical weights over HTTP. Token ids arrive as JSON object
// keys, one map per input text, aligned with input order.
type bgem3Config struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type bgem3Encoder struct {
	client *resty.Client
	model  string
}

type bgem3EncodeRequest struct {
	Texts        []string `json:"texts"`
	ReturnSparse bool     `json:"return_sparse"`
}

type bgem3EncodeResponse struct {
	LexicalWeights []map[string]float32 `json:"lexical_weights"`
}

func (p *bgem3Encoder) EncodeQuery(ctx context.Context, text string) (model.SparseVector, error) {
	vectors, err := p.EncodeDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *bgem3Encoder) EncodeDocuments(ctx context.Context, texts []string) ([]model.SparseVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result := &bgem3EncodeResponse{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(bgem3EncodeRequest{Texts: texts, ReturnSparse: true}).
		SetResult(result).
		Post("/encode")
	if err != nil {
		return nil, fmt.Errorf("bge-m3 encode: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bge-m3 encode: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.LexicalWeights) != len(texts) {
		return nil, fmt.Errorf("bge-m3 encode: got %d outputs for %d inputs", len(result.LexicalWeights), len(texts))
	}
	out := make([]model.SparseVector, len(result.LexicalWeights))
	for i, weights := range result.LexicalWeights {
		vec := make(model.SparseVector, len(weights))
		for key, weight := range weights {
			tokenID, err := strconv.ParseInt(key, 10, 32)
			if err != nil || tokenID < 0 {
				return nil, fmt.Errorf("bge-m3 encode: invalid token id %q", key)
			}
			if weight <= 0 {
				continue
			}
			vec[int32(tokenID)] = weight
		}
		out[i] = vec
	}
	return out, nil
}

func (p *bgem3Encoder) ModelName() string {
	return p.model
}

func createBGEM3Factory(_ context.Context, args interface{}) (ISparseEncoder, error) {
	cfg := &bgem3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrUnavailable
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "bge-m3"
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(endpoint, "/")).
		SetTimeout(timeout)
	return &bgem3Encoder{client: client, model: modelName}, nil
}

func init() {
	RegisterSparse("bge-m3", createBGEM3Factory)
}
