package ai

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/jauapai/jauap/internal/model"
)

const streamErrorText = "Кешіріңіз, жауапты аяқтау кезінде қате пайда болды."

type geminiConfig struct {
	APIKey          string   `json:"api_key"`
	Model           string   `json:"model"`
	Temperature     *float32 `json:"temperature"`
	OutputDimension int32    `json:"output_dimension"`
}

type geminiGenerator struct {
	client      *genai.Client
	model       string
	temperature *float32
}

func (p *geminiGenerator) Stream(ctx context.Context, messages []model.Message) (<-chan model.Fragment, error) {
	contents, system := toGenaiContents(messages)
	config := &genai.GenerateContentConfig{Temperature: p.temperature}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	stream := p.client.Models.GenerateContentStream(ctx, p.model, contents, config)
	out := make(chan model.Fragment)
	go pumpStream(ctx, stream, out)
	return out, nil
}

// pumpStream forwards fragments in model emission order. A mid-stream
// failure becomes a trailing error fragment so fragments already shown to
// the user stay intact.
func pumpStream(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], out chan<- model.Fragment) {
	defer close(out)
	for resp, err := range stream {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(ctx, out, model.ErrorFragment(streamErrorText))
			return
		}
		for _, frag := range extractFragments(resp) {
			if !emit(ctx, out, frag) {
				return
			}
		}
	}
}

func emit(ctx context.Context, out chan<- model.Fragment, frag model.Fragment) bool {
	select {
	case out <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

// extractFragments normalizes one response chunk into plain text fragments,
// whatever the part layout of the chunk.
func extractFragments(resp *genai.GenerateContentResponse) []model.Fragment {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil
	}
	frags := make([]model.Fragment, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		frags = append(frags, model.TextFragment(part.Text))
	}
	return frags
}

func toGenaiContents(messages []model.Message) ([]*genai.Content, string) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = msg.Content
		case model.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, system
}

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

func (p *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (p *geminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimension > 0 {
		config.OutputDimensionality = &p.dimension
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: empty vector at %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (p *geminiEmbedder) ModelName() string {
	return p.model
}

func newGeminiClient(ctx context.Context, cfg *geminiConfig) (*genai.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func createGeminiGeneratorFactory(ctx context.Context, args interface{}) (IStreamGenerator, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiGenerator{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func createGeminiDenseFactory(ctx context.Context, args interface{}) (IDenseEmbedder, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini embed model is required")
	}
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedder{client: client, model: cfg.Model, dimension: cfg.OutputDimension}, nil
}

func init() {
	RegisterGenerator("gemini", createGeminiGeneratorFactory)
	RegisterDense("gemini", createGeminiDenseFactory)
}
