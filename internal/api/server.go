package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pdfchat/internal/config"
	"github.com/dgallion1/pdfchat/internal/library"
	"github.com/dgallion1/pdfchat/internal/llm"
	"github.com/dgallion1/pdfchat/internal/pipeline"
	"github.com/dgallion1/pdfchat/internal/rag"
	"github.com/dgallion1/pdfchat/internal/session"
	"github.com/dgallion1/pdfchat/internal/vectorstore"
)

// Asker answers a question given the completed turns before it.
type Asker interface {
	Ask(ctx context.Context, question string, history []rag.Turn) (rag.Answer, error)
}

// Documents is the PDF catalogue behind the viewer.
type Documents interface {
	List() []library.Document
	Get(name string) (library.Document, error)
	Open(name string) (*os.File, library.Document, error)
	PageText(name string, page int) (string, error)
	Refresh() error
}

// Jobs queues and reports ingestion jobs.
type Jobs interface {
	SubmitPath(path string, trigger pipeline.Trigger) (*pipeline.Job, error)
	GetJob(id string) *pipeline.Job
	Jobs() []pipeline.JobSnapshot
	QueueDepth() int
}

// Index is the read side of the vector store.
type Index interface {
	Count(ctx context.Context) (int, error)
	Sources(ctx context.Context) ([]vectorstore.SourceInfo, error)
}

// Deps are the components the HTTP layer drives.
type Deps struct {
	Chain     Asker
	Documents Documents
	Jobs      Jobs
	Index     Index
	Sessions  *session.Store

	ChatModel      string
	ChatStats      *llm.LLMStats
	EmbeddingModel string
	EmbedStats     *llm.LLMStats
}

// Server is the HTTP server for the chat UI and its JSON API.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(cfg.SessionTTL, nil)
	}
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	// Browser and chat endpoints carry a session.
	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(s.deps.Sessions))

		r.Get("/", s.handleIndex)
		r.Post("/chat", s.handleChatForm)
		r.Post("/api/chat", s.handleChat)

		r.Get("/api/session", s.handleSession)
		r.Post("/api/session/document", s.handleSelectDocument)
		r.Post("/api/session/page", s.handleSelectPage)
		r.Post("/api/session/source", s.handleSelectSource)
		r.Post("/api/session/reset", s.handleResetSession)
	})

	r.Get("/api/documents", s.handleListDocuments)
	r.Get("/documents/{name}", s.handleRawDocument)
	r.Get("/api/documents/{name}/pages/{page}", s.handlePageText)
	r.Get("/api/stats/llm", s.handleLLMStats)

	// Admin endpoints; open when no key is configured.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AdminAPIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Post("/api/ingest/rescan", s.handleRescan)
		r.Get("/api/ingest/jobs", s.handleListJobs)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": s.deps.Sessions.Len(),
	}
	if s.deps.Documents != nil {
		resp["documents"] = len(s.deps.Documents.List())
	}
	if s.deps.Index != nil {
		n, err := s.deps.Index.Count(r.Context())
		if err != nil {
			s.log.Error("count chunks", "error", err)
			jsonError(w, "index unavailable", http.StatusServiceUnavailable)
			return
		}
		resp["chunks"] = n
	}
	if s.deps.Jobs != nil {
		resp["queue_depth"] = s.deps.Jobs.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
