package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pdfchat/internal/api"
	"github.com/dgallion1/pdfchat/internal/library"
	"github.com/dgallion1/pdfchat/internal/parser"
	"github.com/dgallion1/pdfchat/internal/pipeline"
	"github.com/dgallion1/pdfchat/internal/session"
	"github.com/dgallion1/pdfchat/internal/watcher"
)

var (
	serveMemory bool
	servePort   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat UI",
	Long: `Serves the chat page with its document viewer, the JSON API and the
background ingestion workers. With --memory the documents directory is
ingested into an in-memory index at startup instead of using the persisted
one.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "build an in-memory index at startup")
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, serveMemory)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib := library.New(cfg.DocumentsDir, log.With("component", "library"))
	if err := lib.Refresh(); err != nil {
		return err
	}

	if serveMemory {
		report, err := a.ingester.IngestDir(ctx)
		if err != nil && !errors.Is(err, parser.ErrNoDocuments) {
			return fmt.Errorf("build in-memory index: %w", err)
		}
		log.Info("in-memory index built", "documents", report.Documents, "chunks", report.Chunks)
	}

	sessions := session.NewStore(cfg.SessionTTL, func() string {
		if doc, ok := lib.First(); ok {
			return doc.Name
		}
		return ""
	})

	orch := pipeline.NewOrchestrator(pipeline.Options{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.MaxQueueSize,
		JobTTL:    cfg.JobTTL,
		OnDone: func(pipeline.JobSnapshot) {
			if err := lib.Refresh(); err != nil {
				log.Warn("refresh library", "error", err)
			}
		},
	}, a.ingester, log.With("component", "pipeline"))
	orch.Start(ctx)

	if cfg.WatchDocuments {
		w, err := watcher.New(cfg.DocumentsDir, watcher.Options{
			OnChange: func(path string) {
				if _, err := orch.SubmitPath(path, pipeline.TriggerWatch); err != nil {
					log.Warn("queue changed document", "path", path, "error", err)
				}
			},
			OnRemove: func(path string) {
				if err := a.ingester.RemoveSource(ctx, filepath.Base(path)); err != nil {
					log.Warn("drop removed document", "path", path, "error", err)
				}
				if err := lib.Refresh(); err != nil {
					log.Warn("refresh library", "error", err)
				}
			},
		}, log.With("component", "watcher"))
		if err != nil {
			orch.Stop()
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("watcher stopped", "error", err)
			}
		}()
	}

	go cleanupSessions(ctx, sessions, log)

	srv := api.NewServer(api.Deps{
		Chain:          a.chain,
		Documents:      lib,
		Jobs:           orch,
		Index:          a.store,
		Sessions:       sessions,
		ChatModel:      a.chat.Model(),
		ChatStats:      a.chatStats,
		EmbeddingModel: a.embedder.Model(),
		EmbedStats:     a.embedStats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info("starting pdfchat", "port", cfg.Port, "documents", len(lib.List()), "watch", cfg.WatchDocuments)

	select {
	case err := <-errCh:
		orch.Stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	orch.Stop()
	return err
}

// cleanupSessions drops idle sessions until ctx is done.
func cleanupSessions(ctx context.Context, sessions *session.Store, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Cleanup(); n > 0 {
				log.Info("expired sessions", "count", n)
			}
		}
	}
}
