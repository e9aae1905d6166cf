package googleEmbedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/customHttpClient"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"google.golang.org/genai"
)

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

type client struct {
	genAi     *genai.Client
	model     string
	dimension int32
	logger    *logger_i.Logger
}

func NewGoogleEmbeddingClient(ctx context.Context, modelName string, apiKey string) (embedding.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("google embedding: missing api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: customHttpClient.NewClient(config.ProviderHTTPTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("google embedding: create client: %w", err)
	}
	logger := logger_i.NewLogger("google_embedding")
	logger.Info("google embedding client created", "model", modelName)
	return &client{
		genAi:     c,
		model:     modelName,
		dimension: config.EmbeddingOutputDimensionality,
		logger:    logger,
	}, nil
}

func (c *client) Model() string {
	return fmt.Sprintf("%s@%d", c.model, c.dimension)
}

func (c *client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := c.callWithRetry(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batch(ctx, texts, config.EmbeddingBatchSize, func(ctx context.Context, part []string) ([][]float32, error) {
		return c.callWithRetry(ctx, part, taskDocument)
	})
}

// callWithRetry retries once after a rate limit, anything else is returned as is.
func (c *client) callWithRetry(ctx context.Context, texts []string, task string) ([][]float32, error) {
	log := c.logger.WithTrace(ctx)
	res, err := c.doCall(ctx, texts, task)
	if err != nil && isRateLimited(err) {
		log.Warn("embedding rate limit hit, retrying", "delay", config.EmbeddingRetryDelay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ragErrors.ErrEmbeddingProvider, ctx.Err())
		case <-time.After(config.EmbeddingRetryDelay):
		}
		res, err = c.doCall(ctx, texts, task)
	}
	if err != nil {
		log.Error("error getting embeddings from google", "error", err, "count", len(texts))
		return nil, fmt.Errorf("%w: %w", ragErrors.ErrEmbeddingProvider, err)
	}
	return res, nil
}

func (c *client) doCall(ctx context.Context, texts []string, task string) ([][]float32, error) {
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("google_embedding", time.Since(start)) }()

	dimension := c.dimension
	result, err := c.genAi.Models.EmbedContent(ctx, c.model, getContent(texts), &genai.EmbedContentConfig{
		OutputDimensionality: &dimension,
		TaskType:             task,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingCount(result))
	}
	vectors := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

func getContent(texts []string) []*genai.Content {
	contentsToSend := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contentsToSend = append(contentsToSend, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		})
	}
	return contentsToSend
}

func embeddingCount(res *genai.EmbedContentResponse) int {
	if res == nil {
		return 0
	}
	return len(res.Embeddings)
}

func isRateLimited(err error) bool {
	if ragErrors.IsRetryable(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429")
}
