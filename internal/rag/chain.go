// Package rag answers questions over the indexed documents and builds that
// index from the documents directory.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/pdfchat/internal/embedding"
	"github.com/dgallion1/pdfchat/internal/llm"
	"github.com/dgallion1/pdfchat/internal/vectorstore"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// Turn is one completed exchange of chat history.
type Turn struct {
	User      string
	Assistant string
}

// Source is a retrieved chunk returned with an answer. Page is 0-based.
type Source struct {
	Name  string  `json:"name"`
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

type Answer struct {
	Text string `json:"answer"`
	// Question is the standalone question used for retrieval.
	Question string   `json:"question"`
	Sources  []Source `json:"sources"`
}

type ChainOptions struct {
	TopK              int
	HistoryTokenLimit int
}

// Chain is a conversational retrieval chain: condense, retrieve, stuff, answer.
type Chain struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	model    llm.ChatModel
	opts     ChainOptions
	log      *slog.Logger
}

func NewChain(embedder embedding.Embedder, store vectorstore.Store, model llm.ChatModel, opts ChainOptions, log *slog.Logger) *Chain {
	if opts.TopK <= 0 {
		opts.TopK = vectorstore.DefaultK
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chain{embedder: embedder, store: store, model: model, opts: opts, log: log}
}

// Ask answers question given the completed turns before it, oldest first.
func (c *Chain) Ask(ctx context.Context, question string, history []Turn) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	start := time.Now()

	standalone := question
	if turns := trimHistory(history, c.opts.HistoryTokenLimit); len(turns) > 0 {
		condensed, err := c.model.Generate(ctx, condenseMessages(turns, question))
		if err != nil {
			return Answer{}, fmt.Errorf("condense question: %w", err)
		}
		if condensed = strings.TrimSpace(condensed); condensed != "" {
			standalone = condensed
		}
	}

	vec, err := c.embedder.EmbedQuery(ctx, standalone)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	matches, err := c.store.Search(ctx, vec, c.opts.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			Name:  m.Chunk.Source,
			Page:  m.Chunk.Page,
			Text:  m.Chunk.Text,
			Score: m.Score,
		})
	}

	text, err := c.model.Generate(ctx, qaMessages(sources, standalone))
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}

	c.log.Info("question answered",
		"history_turns", len(history),
		"condensed", standalone != question,
		"sources", len(sources),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Answer{Text: strings.TrimSpace(text), Question: standalone, Sources: sources}, nil
}
