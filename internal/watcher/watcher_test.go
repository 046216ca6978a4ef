package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) onChange(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, filepath.Base(p))
}

func (r *recorder) onRemove(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, filepath.Base(p))
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changed...), append([]string(nil), r.removed...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	w, err := New(dir, Options{
		Debounce: 50 * time.Millisecond,
		OnChange: rec.onChange,
		OnRemove: rec.onRemove,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		assert.NoError(t, w.Close())
	})
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "report.pdf")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		changed, _ := rec.snapshot()
		return len(changed) == 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	changed, _ := rec.snapshot()
	assert.Equal(t, []string{"report.pdf"}, changed, "burst of writes reported once")
}

func TestWatcher_IgnoresUnsupportedAndHidden(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draft.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		changed, _ := rec.snapshot()
		return len(changed) == 1
	}, 3*time.Second, 20*time.Millisecond)
	changed, _ := rec.snapshot()
	assert.Equal(t, []string{"notes.txt"}, changed)
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := &recorder{}
	startWatcher(t, dir, rec)
	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, removed := rec.snapshot()
		return len(removed) == 1 && removed[0] == "old.pdf"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create pdf", fsnotify.Event{Name: "/d/a.pdf", Op: fsnotify.Create}, true},
		{"write md", fsnotify.Event{Name: "/d/a.md", Op: fsnotify.Write}, true},
		{"remove", fsnotify.Event{Name: "/d/a.pdf", Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: "/d/a.pdf", Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: "/d/a.pdf", Op: fsnotify.Chmod}, false},
		{"hidden", fsnotify.Event{Name: "/d/.a.pdf", Op: fsnotify.Create}, false},
		{"unsupported", fsnotify.Event{Name: "/d/a.exe", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev))
		})
	}
}
