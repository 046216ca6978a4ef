package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ChatOptions configures an OpenAIChat.
type ChatOptions struct {
	Model       string
	Temperature float32
	// Timeout bounds each request; zero means 120s.
	Timeout time.Duration
	Retry   RetryPolicy
	Stats   *LLMStats
	Logger  *slog.Logger
}

// OpenAIChat calls the chat completions endpoint.
type OpenAIChat struct {
	client *openai.Client
	opts   ChatOptions
}

func NewOpenAIChat(client *openai.Client, opts ChatOptions) *OpenAIChat {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &OpenAIChat{client: client, opts: opts}
}

func (c *OpenAIChat) Model() string { return c.opts.Model }

// Generate sends messages and returns the first choice's content.
func (c *OpenAIChat) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    toOpenAI(messages),
		Temperature: wireTemperature(c.opts.Temperature),
	}

	var answer string
	err := c.opts.Retry.Do(ctx, c.opts.Logger, "chat completion", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		c.opts.Stats.Record(time.Since(start), err)
		if err != nil {
			return Classify(err, "chat completion")
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty response from chat model")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// wireTemperature maps 0 to the smallest positive float; the request field is
// omitempty and a literal zero would fall back to the server default.
func wireTemperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// Classify turns rate-limit and server errors into RetryableError and wraps
// everything else with op.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
