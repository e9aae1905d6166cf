package openaiEmbedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/customHttpClient"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type client struct {
	api       openai.Client
	model     string
	dimension int64
	logger    *logger_i.Logger
}

func NewOpenAIEmbeddingClient(modelName string, apiKey string, extra ...option.RequestOption) (embedding.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedding: missing api key")
	}
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(customHttpClient.NewClient(config.ProviderHTTPTimeout)),
		option.WithMaxRetries(0),
	}, extra...)
	return &client{
		api:       openai.NewClient(opts...),
		model:     modelName,
		dimension: int64(config.EmbeddingOutputDimensionality),
		logger:    logger_i.NewLogger("openai_embedding"),
	}, nil
}

func (c *client) Model() string {
	return fmt.Sprintf("%s@%d", c.model, c.dimension)
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
	defer func() { metrics.CaptureDependencyLatency("openai_embedding", time.Since(start)) }()

	res, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      c.model,
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(c.dimension),
	})
	if err != nil {
		c.logger.WithTrace(ctx).Error("openai embedding failed", "error", err, "count", len(texts))
		return nil, fmt.Errorf("%w: %w", ragErrors.ErrEmbeddingProvider, err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ragErrors.ErrEmbeddingProvider, len(texts), len(res.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range res.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ragErrors.ErrEmbeddingProvider, d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vectors[d.Index] = v
	}
	return vectors, nil
}
