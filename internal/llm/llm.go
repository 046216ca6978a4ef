// Package llm talks to the hosted chat model and holds the retry and latency
// plumbing shared with the embedding client.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// ChatModel produces a completion for an ordered list of messages.
type ChatModel interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// NewClient builds an OpenAI-compatible client. An empty baseURL keeps the
// public endpoint.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}
