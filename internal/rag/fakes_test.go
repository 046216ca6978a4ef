package rag

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/dgallion1/pdfchat/internal/llm"
)

// letterEmbedder embeds text as its a-z letter histogram.
type letterEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		} else if unicode.IsLetter(r) {
			v[int(r)%26]++
		}
	}
	return v
}

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *letterEmbedder) Model() string { return "letters" }

// scriptedChat returns replies in order and records every request.
type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]llm.Message
}

func (c *scriptedChat) Generate(_ context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, messages)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "I don't know.", nil
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}
