package openaiLLM

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
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type llmClient struct {
	client    openai.Client
	modelName string
	logger    *logger_i.Logger
}

func NewOpenAIClient(modelName string, apiKey string, extra ...option.RequestOption) (llm.Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: missing api key")
	}
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(customHttpClient.NewClient(config.ProviderHTTPTimeout)),
		// retries are left to the caller
		option.WithMaxRetries(0),
	}, extra...)

	return &llmClient{
		client:    openai.NewClient(opts...),
		modelName: modelName,
		logger:    logger_i.NewLogger("llm_openai"),
	}, nil
}

func (c *llmClient) Complete(ctx context.Context, systemPrompt string, messages []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.ResolveOptions(opts...)
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("openai_generate", time.Since(start)) }()

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		params = append(params, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		if m.Role == llm.RoleAssistant {
			params = append(params, openai.AssistantMessage(m.Content))
			continue
		}
		params = append(params, openai.UserMessage(m.Content))
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.modelName,
		Messages:    params,
		Temperature: openai.Float(float64(o.Temperature)),
		MaxTokens:   openai.Int(int64(o.MaxTokens)),
	})
	if err != nil {
		c.logger.WithTrace(ctx).Error("openai completion failed", "error", err)
		return "", fmt.Errorf("%w: %w", ragErrors.ErrGenerationProvider, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ragErrors.ErrGenerationProvider)
	}
	return completion.Choices[0].Message.Content, nil
}
