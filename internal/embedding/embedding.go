// Package embedding turns chunk and question text into vectors through the
// hosted embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dgallion1/pdfchat/internal/llm"
)

// ErrEmptyInput is returned when asked to embed blank text.
var ErrEmptyInput = errors.New("cannot embed empty text")

// Embedder maps text to vectors. EmbedDocuments returns one vector per input,
// in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Options configures an OpenAIEmbedder.
type Options struct {
	Model      string
	BatchSize  int
	RatePerSec float64
	// Timeout bounds each request; zero means 60s.
	Timeout time.Duration
	Retry   llm.RetryPolicy
	Stats   *llm.LLMStats
	Logger  *slog.Logger
}

// OpenAIEmbedder calls the embeddings endpoint in rate-limited batches.
type OpenAIEmbedder struct {
	client  *openai.Client
	opts    Options
	limiter *rate.Limiter
}

func NewOpenAIEmbedder(client *openai.Client, opts Options) *OpenAIEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = llm.DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &OpenAIEmbedder{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

func (e *OpenAIEmbedder) Model() string { return e.opts.Model }

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyInput
		}
	}

	var vecs [][]float32
	err := e.opts.Retry.Do(ctx, e.opts.Logger, "embeddings", func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.opts.Model),
			Input: texts,
		})
		e.opts.Stats.Record(time.Since(start), err)
		if err != nil {
			return llm.Classify(err, "embeddings")
		}
		vecs, err = ordered(resp.Data, len(texts))
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// ordered places each returned embedding at its Index.
func ordered(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", want, len(data))
	}
	sorted := make([]openai.Embedding, len(data))
	copy(sorted, data)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := make([][]float32, want)
	for i, d := range sorted {
		if d.Index != i {
			return nil, fmt.Errorf("embeddings: unexpected index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embeddings: empty vector at index %d", i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
