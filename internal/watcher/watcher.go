// Package watcher reports settled changes to supported files in the
// documents directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dgallion1/pdfchat/internal/parser"
)

type Options struct {
	// Debounce is how long a file must be quiet before it is reported.
	Debounce time.Duration
	// OnChange receives files that were created or written.
	OnChange func(path string)
	// OnRemove receives files that were removed or renamed away.
	OnRemove func(path string)
}

// Watcher watches a single directory, non-recursively.
type Watcher struct {
	dir  string
	fs   *fsnotify.Watcher
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func New(dir string, opts Options, log *slog.Logger) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:     dir,
		fs:      fsw,
		opts:    opts,
		log:     log,
		pending: map[string]*time.Timer{},
	}, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if relevant(ev) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	err := w.fs.Close()
	w.stopPending()
	w.wg.Wait()
	return err
}

// relevant keeps content events on supported, visible files.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !parser.IsSupportedExtension(name) {
		return false
	}
	return true
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.opts.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		current := w.pending[path] == timer
		if current {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if current {
			w.fire(path)
		}
	})
	w.pending[path] = timer
}

func (w *Watcher) fire(path string) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.log.Info("document removed", "path", path)
		if w.opts.OnRemove != nil {
			w.opts.OnRemove(path)
		}
	case err != nil:
		w.log.Warn("stat changed document", "path", path, "error", err)
	case info.IsDir():
	default:
		w.log.Info("document changed", "path", path)
		if w.opts.OnChange != nil {
			w.opts.OnChange(path)
		}
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}
