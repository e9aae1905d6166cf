package ollamaEmbedding

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/internal/rag/llm/ollamaLLM"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/ollama/ollama/api"
)

type client struct {
	api    *api.Client
	model  string
	logger *logger_i.Logger
}

func NewOllamaEmbeddingClient(host string, modelName string) (embedding.Embedder, error) {
	c, err := ollamaLLM.NewAPIClient(host)
	if err != nil {
		return nil, err
	}
	return &client{api: c, model: modelName, logger: logger_i.NewLogger("ollama_embedding")}, nil
}

func (c *client) Model() string {
	return "ollama/" + c.model
}

func (c *client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := c.doCall(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batch(ctx, texts, config.EmbeddingBatchSize, c.doCall)
}

func (c *client) doCall(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("ollama_embedding", time.Since(start)) }()

	res, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model:     c.model,
		Input:     texts,
		KeepAlive: &api.Duration{Duration: 5 * time.Minute},
	})
	if err != nil {
		c.logger.WithTrace(ctx).Error("ollama embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ragErrors.ErrEmbeddingProvider, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ragErrors.ErrEmbeddingProvider, len(texts), len(res.Embeddings))
	}
	return res.Embeddings, nil
}
