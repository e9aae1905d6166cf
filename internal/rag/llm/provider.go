package llm

import (
	"context"

	"github.com/akolanti/CivicRAG/internal/config"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Provider is the generation model. Language detection, translation, query expansion,
// reranking and answer generation all go through it.
type Provider interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, opts ...Option) (string, error)
}

type Options struct {
	Temperature float32
	MaxTokens   int
}

type Option func(*Options)

func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func ResolveOptions(opts ...Option) Options {
	o := Options{
		Temperature: config.ModelTemperature,
		MaxTokens:   config.ModelMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UserMessage is the common single turn request.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
