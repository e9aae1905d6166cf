package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/customHttpClient"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"google.golang.org/genai"
)

type llmClient struct {
	client    *genai.Client
	modelName string
	logger    *logger_i.Logger
}

func NewGeminiClient(ctx context.Context, modelName string, apiKey string) (llm.Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: customHttpClient.NewClient(config.ProviderHTTPTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	logger := logger_i.NewLogger("llm_gemini")
	logger.Info("gemini client created", "model", modelName)
	return &llmClient{client: c, modelName: modelName, logger: logger}, nil
}

func (c *llmClient) Complete(ctx context.Context, systemPrompt string, messages []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.ResolveOptions(opts...)
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("gemini_generate", time.Since(start)) }()

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	contentConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(o.Temperature),
		MaxOutputTokens: int32(o.MaxTokens),
	}
	if systemPrompt != "" {
		contentConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, contentConfig)
	if err != nil {
		c.logger.WithTrace(ctx).Error("gemini generation failed", "error", err, "retryable", ragErrors.IsRetryable(err))
		return "", fmt.Errorf("%w: %w", ragErrors.ErrGenerationProvider, err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: empty response", ragErrors.ErrGenerationProvider)
	}
	return result.Text(), nil
}
