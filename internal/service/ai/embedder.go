package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"

	"shopassist/internal/config"
)

// embedBatchSize is the most contents sent in a single EmbedContent call.
const embedBatchSize = 100

// Embedder turns text into fixed-width vectors through the Gemini embedding API.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

var _ embedding.Embedder = (*Embedder)(nil)

// NewEmbedder builds the embedder described by cfg.Embedding.
func NewEmbedder(ctx context.Context, cfg *config.Config) (*Embedder, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if cfg.Embedding.APIKey == "" {
		return nil, errors.New("embedding api key must be configured")
	}
	client, err := newGenAIClient(ctx, cfg.Embedding.APIKey)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		client:     client,
		model:      cfg.Embedding.Model,
		dimensions: cfg.Embedding.Dimensions,
	}, nil
}

// Dimensions is the vector width every result is checked against.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// EmbedStrings returns one vector per input text, in input order.
func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	var embedCfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		embedCfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, embedCfg)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("embed content: %w", err))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("embed content: missing embedding %d", i)
		}
		if e.dimensions > 0 && len(emb.Values) != e.dimensions {
			return nil, fmt.Errorf("embed content: expected %d dimensions, got %d", e.dimensions, len(emb.Values))
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}
