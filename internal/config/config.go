package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when PDFCHAT_CONFIG is unset and the file exists.
const DefaultFile = "pdfchat.yaml"

type Config struct {
	Port string

	// Documents and index locations
	DocumentsDir string
	PersistDir   string

	// Hosted model access
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	EmbeddingModel  string
	ChatModel       string
	ChatTemperature float32

	// Splitting and retrieval
	ChunkSize    int
	ChunkOverlap int
	TopK         int

	// HistoryTokenLimit caps the chat history sent with each question.
	HistoryTokenLimit int

	// Embedding request pacing
	EmbedBatchSize  int
	EmbedRatePerSec float64

	// Ingestion worker pool
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Sessions
	SessionTTL time.Duration

	// Auth for upload and rescan; open when empty
	AdminAPIKey string

	// PDF
	PDFFallbackPdftotext bool

	WatchDocuments bool
	LogLevel       slog.Level
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first, then an optional YAML file supplies any keys the
// environment leaves unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("PDFCHAT_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	file, err := readFile(path)
	if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}

	src := source{file: file}
	cfg := Config{
		Port: src.str("PORT", "8501"),

		DocumentsDir: src.str("DOCUMENTS_DIR", "./documents"),
		PersistDir:   src.str("PERSIST_DIR", "./chroma_db"),

		OpenAIAPIKey:    src.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   src.str("OPENAI_BASE_URL", ""),
		EmbeddingModel:  src.str("EMBEDDING_MODEL", "text-embedding-ada-002"),
		ChatModel:       src.str("CHAT_MODEL", "gpt-4o-mini"),
		ChatTemperature: float32(src.float("CHAT_TEMPERATURE", 0)),

		ChunkSize:    src.int("CHUNK_SIZE", 1000),
		ChunkOverlap: src.int("CHUNK_OVERLAP", 0),
		TopK:         src.int("RETRIEVER_TOP_K", 4),

		HistoryTokenLimit: src.int("HISTORY_TOKEN_LIMIT", 2000),

		EmbedBatchSize:  src.int("EMBED_BATCH_SIZE", 64),
		EmbedRatePerSec: src.float("EMBED_RATE_PER_SEC", 5),

		WorkerCount:  src.int("WORKER_COUNT", 2),
		MaxQueueSize: src.int("MAX_QUEUE_SIZE", 50),
		JobTTL:       src.duration("JOB_TTL", 1*time.Hour),

		MaxUploadBytes: src.int64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		SessionTTL: src.duration("SESSION_TTL", 24*time.Hour),

		AdminAPIKey: src.str("ADMIN_API_KEY", ""),

		PDFFallbackPdftotext: src.bool("PDF_FALLBACK_PDFTOTEXT", true),

		WatchDocuments: src.bool("WATCH_DOCUMENTS", false),
		LogLevel:       src.level("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.HistoryTokenLimit <= 0 {
		cfg.HistoryTokenLimit = 2000
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedRatePerSec <= 0 {
		cfg.EmbedRatePerSec = 5
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.DocumentsDir == "" || c.PersistDir == "" {
		return fmt.Errorf("DOCUMENTS_DIR and PERSIST_DIR are required")
	}
	return nil
}

// readFile parses a flat YAML mapping whose keys are the environment variable
// names in any case, e.g. "chunk_size: 800".
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// source resolves a key from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) str(key, fallback string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (s source) int(key string, fallback int) int {
	if v := s.lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) int64(key string, fallback int64) int64 {
	if v := s.lookup(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) float(key string, fallback float64) float64 {
	if v := s.lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s source) bool(key string, fallback bool) bool {
	if v := s.lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func (s source) level(key string, fallback slog.Level) slog.Level {
	if v := s.lookup(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return fallback
}
