// Package library catalogues the PDFs in the documents directory for the
// viewer.
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/pdfchat/internal/parser"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidName = errors.New("invalid document name")
)

// Document describes one PDF on disk.
type Document struct {
	Name    string    `json:"name"`
	Pages   int       `json:"pages"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	path    string
}

func (d Document) Path() string { return d.path }

// Library holds the PDF listing. Page counts are cached per file and only
// recomputed when the file's size or modification time changes.
type Library struct {
	dir string
	log *slog.Logger

	// pageCount is swappable for tests.
	pageCount func(path string) (int, error)

	mu     sync.RWMutex
	docs   []Document
	byName map[string]Document
}

func New(dir string, log *slog.Logger) *Library {
	if log == nil {
		log = slog.Default()
	}
	return &Library{
		dir:       dir,
		log:       log,
		pageCount: parser.PageCount,
		byName:    map[string]Document{},
	}
}

func (l *Library) Dir() string { return l.dir }

// Refresh rescans the directory. A missing directory yields an empty library.
// PDFs that cannot be opened are logged and left out.
func (l *Library) Refresh() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read documents dir: %w", err)
	}

	l.mu.RLock()
	prev := l.byName
	l.mu.RUnlock()

	var docs []Document
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		doc := Document{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			path:    filepath.Join(l.dir, name),
		}
		if old, ok := prev[name]; ok && old.Size == doc.Size && old.ModTime.Equal(doc.ModTime) {
			doc.Pages = old.Pages
		} else {
			pages, err := l.pageCount(doc.path)
			if err != nil {
				l.log.Warn("skipping unreadable pdf", "name", name, "error", err)
				continue
			}
			doc.Pages = pages
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	byName := make(map[string]Document, len(docs))
	for _, d := range docs {
		byName[d.Name] = d
	}

	l.mu.Lock()
	l.docs = docs
	l.byName = byName
	l.mu.Unlock()
	return nil
}

// List returns the documents sorted by name.
func (l *Library) List() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Document, len(l.docs))
	copy(out, l.docs)
	return out
}

// First returns the first document by name.
func (l *Library) First() (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.docs) == 0 {
		return Document{}, false
	}
	return l.docs[0], true
}

func (l *Library) Get(name string) (Document, error) {
	if err := ValidateName(name); err != nil {
		return Document{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.byName[name]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

// Open returns the raw PDF for serving.
func (l *Library) Open(name string) (*os.File, Document, error) {
	d, err := l.Get(name)
	if err != nil {
		return nil, Document{}, err
	}
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Document{}, ErrNotFound
		}
		return nil, Document{}, fmt.Errorf("open %s: %w", name, err)
	}
	return f, d, nil
}

// PageText returns the extracted text of a 1-based page.
func (l *Library) PageText(name string, page int) (string, error) {
	d, err := l.Get(name)
	if err != nil {
		return "", err
	}
	if page < 1 || page > d.Pages {
		return "", parser.ErrPageNotFound
	}
	return parser.PageText(d.path, page)
}

// ValidateName accepts plain base file names only.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return ErrInvalidName
	}
	return nil
}
