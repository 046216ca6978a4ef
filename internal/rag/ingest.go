package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/pdfchat/internal/chunker"
	"github.com/dgallion1/pdfchat/internal/doctree"
	"github.com/dgallion1/pdfchat/internal/embedding"
	"github.com/dgallion1/pdfchat/internal/parser"
	"github.com/dgallion1/pdfchat/internal/vectorstore"
)

// Stage of a single file's ingestion.
type Stage string

const (
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
)

// Hooks receive progress for one file. Nil fields are skipped.
type Hooks struct {
	Stage    func(Stage)
	Chunks   func(total int)
	Embedded func(n int)
	Stored   func(n int)
}

func (h Hooks) stage(s Stage) {
	if h.Stage != nil {
		h.Stage(s)
	}
}

func (h Hooks) chunks(n int) {
	if h.Chunks != nil {
		h.Chunks(n)
	}
}

func (h Hooks) embedded(n int) {
	if h.Embedded != nil {
		h.Embedded(n)
	}
}

func (h Hooks) stored(n int) {
	if h.Stored != nil {
		h.Stored(n)
	}
}

// FileStatus is the outcome of ingesting one file.
type FileStatus string

const (
	FileIngested  FileStatus = "ingested"
	FileUnchanged FileStatus = "unchanged"
	FileEmpty     FileStatus = "empty"
)

type FileResult struct {
	Name        string     `json:"name"`
	Status      FileStatus `json:"status"`
	Chunks      int        `json:"chunks"`
	ContentHash string     `json:"content_hash,omitempty"`
	// Replaced is set when earlier chunks of the same file were removed.
	Replaced bool `json:"replaced,omitempty"`
}

// ParseError marks a file that could not be read. Ingesting a directory
// records it and moves on.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Name, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Report summarises a directory ingestion.
type Report struct {
	Documents int         `json:"documents"`
	Chunks    int         `json:"chunks"`
	Skipped   int         `json:"skipped"`
	Failed    []FileError `json:"failed,omitempty"`
}

type IngesterOptions struct {
	Chunking       chunker.Config
	Parser         parser.Options
	EmbedBatchSize int
}

// Ingester loads documents, splits them, embeds the chunks and stores them.
type Ingester struct {
	dir      string
	embedder embedding.Embedder
	store    vectorstore.Store
	opts     IngesterOptions
	log      *slog.Logger

	// sources serialises work on the same file name.
	sources sync.Map
}

func NewIngester(dir string, embedder embedding.Embedder, store vectorstore.Store, opts IngesterOptions, log *slog.Logger) *Ingester {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{dir: dir, embedder: embedder, store: store, opts: opts, log: log}
}

func (in *Ingester) Dir() string { return in.dir }

// IngestDir ingests every supported file in the documents directory.
// It returns parser.ErrNoDocuments when there is nothing to ingest.
func (in *Ingester) IngestDir(ctx context.Context) (Report, error) {
	var report Report
	names, err := parser.ListDir(in.dir)
	if err != nil {
		return report, err
	}
	if len(names) == 0 {
		return report, parser.ErrNoDocuments
	}

	for _, name := range names {
		res, err := in.IngestPath(ctx, filepath.Join(in.dir, name), Hooks{})
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				in.log.Warn("skipping unreadable document", "name", name, "error", pe.Err)
				report.Failed = append(report.Failed, FileError{Name: name, Error: pe.Err.Error()})
				continue
			}
			return report, err
		}
		switch res.Status {
		case FileIngested:
			report.Documents++
			report.Chunks += res.Chunks
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// IngestPath ingests one file. Unchanged content is skipped; changed content
// replaces the file's previous chunks.
func (in *Ingester) IngestPath(ctx context.Context, path string, hooks Hooks) (FileResult, error) {
	name := filepath.Base(path)
	unlock := in.lock(name)
	defer unlock()

	log := in.log.With("name", name)
	start := time.Now()
	res := FileResult{Name: name}

	hooks.stage(StageParsing)
	tree, err := parser.ParsePath(path, in.opts.Parser)
	if err != nil {
		return res, &ParseError{Name: name, Err: err}
	}
	text := tree.Text()
	if text == "" {
		log.Warn("no extractable text")
		res.Status = FileEmpty
		return res, nil
	}
	res.ContentHash = doctree.ContentHashHex([]byte(text))

	exists, err := in.store.HasContent(ctx, name, res.ContentHash)
	if err != nil {
		return res, fmt.Errorf("dedup check %s: %w", name, err)
	}
	if exists {
		log.Info("unchanged document, skipping")
		res.Status = FileUnchanged
		return res, nil
	}

	hooks.stage(StageChunking)
	chunks := chunker.ChunkTree(tree, in.opts.Chunking)
	hooks.chunks(len(chunks))
	res.Chunks = len(chunks)
	log.Info("chunked document", "chunks", len(chunks), "pages", tree.Pages)

	hooks.stage(StageEmbedding)
	records := make([]vectorstore.Record, 0, len(chunks))
	for startIdx := 0; startIdx < len(chunks); startIdx += in.opts.EmbedBatchSize {
		batch := chunks[startIdx:min(startIdx+in.opts.EmbedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := in.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("embed %s: %w", name, err)
		}
		if len(vecs) != len(batch) {
			return res, fmt.Errorf("embed %s: expected %d vectors, got %d", name, len(batch), len(vecs))
		}
		for i, c := range batch {
			records = append(records, vectorstore.Record{
				Chunk:     c,
				Embedding: vecs[i],
				Model:     in.embedder.Model(),
			})
		}
		hooks.embedded(len(batch))
	}

	hooks.stage(StageStoring)
	previous, err := in.sourceChunks(ctx, name)
	if err != nil {
		return res, err
	}
	if err := in.store.ReplaceSource(ctx, name, records); err != nil {
		return res, fmt.Errorf("store %s: %w", name, err)
	}
	res.Replaced = previous > 0
	hooks.stored(len(records))

	res.Status = FileIngested
	log.Info("document ingested",
		"chunks", len(records),
		"replaced", res.Replaced,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// RemoveSource drops every chunk of the named file. It waits for any
// ingestion of the same name to finish first.
func (in *Ingester) RemoveSource(ctx context.Context, name string) error {
	unlock := in.lock(name)
	defer unlock()
	if err := in.store.DeleteSource(ctx, name); err != nil {
		return err
	}
	in.log.Info("document removed from index", "name", name)
	return nil
}

func (in *Ingester) sourceChunks(ctx context.Context, name string) (int, error) {
	sources, err := in.store.Sources(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	for _, s := range sources {
		if s.Name == name {
			return s.Chunks, nil
		}
	}
	return 0, nil
}

func (in *Ingester) lock(name string) func() {
	v, _ := in.sources.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
