package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pdfchat/internal/chunker"
	"github.com/dgallion1/pdfchat/internal/config"
	"github.com/dgallion1/pdfchat/internal/embedding"
	"github.com/dgallion1/pdfchat/internal/llm"
	"github.com/dgallion1/pdfchat/internal/parser"
	"github.com/dgallion1/pdfchat/internal/rag"
	"github.com/dgallion1/pdfchat/internal/vectorstore"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg config.Config
	log *slog.Logger

	chatStats  *llm.LLMStats
	embedStats *llm.LLMStats

	embedder *embedding.OpenAIEmbedder
	chat     *llm.OpenAIChat
	store    vectorstore.Store
	ingester *rag.Ingester
	chain    *rag.Chain
}

// newApp loads configuration and wires the pipeline. With memory set the
// index lives only for the life of the process.
func newApp(cmd *cobra.Command, memory bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))

	var store vectorstore.Store
	if memory {
		store = vectorstore.NewMemoryStore()
	} else {
		s, err := vectorstore.NewSQLiteStore(cfg.PersistDir)
		if err != nil {
			return nil, err
		}
		store = s
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		chatStats:  llm.NewLLMStats(time.Hour),
		embedStats: llm.NewLLMStats(time.Hour),
		store:      store,
	}

	client := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	a.embedder = embedding.NewOpenAIEmbedder(client, embedding.Options{
		Model:      cfg.EmbeddingModel,
		BatchSize:  cfg.EmbedBatchSize,
		RatePerSec: cfg.EmbedRatePerSec,
		Stats:      a.embedStats,
		Logger:     log.With("component", "embedding"),
	})
	a.chat = llm.NewOpenAIChat(client, llm.ChatOptions{
		Model:       cfg.ChatModel,
		Temperature: cfg.ChatTemperature,
		Stats:       a.chatStats,
		Logger:      log.With("component", "chat"),
	})

	chunking := chunker.DefaultConfig()
	chunking.ChunkSize = cfg.ChunkSize
	chunking.ChunkOverlap = cfg.ChunkOverlap

	a.ingester = rag.NewIngester(cfg.DocumentsDir, a.embedder, store, rag.IngesterOptions{
		Chunking:       chunking,
		Parser:         parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		EmbedBatchSize: cfg.EmbedBatchSize,
	}, log.With("component", "ingest"))
	a.chain = rag.NewChain(a.embedder, store, a.chat, rag.ChainOptions{
		TopK:              cfg.TopK,
		HistoryTokenLimit: cfg.HistoryTokenLimit,
	}, log.With("component", "chain"))

	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close vector store", "error", err)
	}
}
