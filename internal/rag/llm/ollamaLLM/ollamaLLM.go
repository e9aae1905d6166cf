package ollamaLLM

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/customHttpClient"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/ollama/ollama/api"
)

type llmClient struct {
	client    *api.Client
	modelName string
	logger    *logger_i.Logger
}

// NewOllamaClient talks to a local ollama server. An empty host falls back to OLLAMA_HOST.
func NewOllamaClient(host string, modelName string) (llm.Provider, error) {
	client, err := NewAPIClient(host)
	if err != nil {
		return nil, err
	}
	return &llmClient{client: client, modelName: modelName, logger: logger_i.NewLogger("llm_ollama")}, nil
}

// NewAPIClient is shared with the ollama embedder.
func NewAPIClient(host string) (*api.Client, error) {
	if host == "" {
		return api.ClientFromEnvironment()
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	return api.NewClient(base, customHttpClient.NewClient(config.ProviderHTTPTimeout)), nil
}

func (c *llmClient) Complete(ctx context.Context, systemPrompt string, messages []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.ResolveOptions(opts...)
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("ollama_generate", time.Since(start)) }()

	chat := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		chat = append(chat, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		chat = append(chat, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	var out strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.modelName,
		Messages: chat,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": o.Temperature,
			"num_predict": o.MaxTokens,
		},
	}, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		c.logger.WithTrace(ctx).Error("ollama chat failed", "error", err)
		return "", fmt.Errorf("%w: %w", ragErrors.ErrGenerationProvider, err)
	}
	return out.String(), nil
}
