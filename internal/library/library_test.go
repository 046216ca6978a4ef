package library

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/pdfchat/internal/parser"
)

func newTestLibrary(t *testing.T, files map[string]int) (*Library, *int) {
	t.Helper()
	dir := t.TempDir()
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lib := New(dir, nil)
	calls := 0
	lib.pageCount = func(path string) (int, error) {
		calls++
		n, ok := files[filepath.Base(path)]
		if !ok || n < 0 {
			return 0, errors.New("broken pdf")
		}
		return n, nil
	}
	return lib, &calls
}

func TestRefresh_ListsPDFsSorted(t *testing.T) {
	lib, _ := newTestLibrary(t, map[string]int{"b.pdf": 3, "a.pdf": 10, "notes.txt": 1, "broken.pdf": -1})
	if err := lib.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	docs := lib.List()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].Name != "a.pdf" || docs[0].Pages != 10 {
		t.Errorf("unexpected first doc %+v", docs[0])
	}
	if docs[1].Name != "b.pdf" || docs[1].Pages != 3 {
		t.Errorf("unexpected second doc %+v", docs[1])
	}
	first, ok := lib.First()
	if !ok || first.Name != "a.pdf" {
		t.Errorf("expected first a.pdf, got %+v %v", first, ok)
	}
}

func TestRefresh_CachesUnchangedFiles(t *testing.T) {
	lib, calls := newTestLibrary(t, map[string]int{"a.pdf": 2})
	if err := lib.Refresh(); err != nil {
		t.Fatal(err)
	}
	if err := lib.Refresh(); err != nil {
		t.Fatal(err)
	}
	if *calls != 1 {
		t.Errorf("expected page count once for unchanged file, got %d", *calls)
	}

	path := filepath.Join(lib.Dir(), "a.pdf")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if err := lib.Refresh(); err != nil {
		t.Fatal(err)
	}
	if *calls != 2 {
		t.Errorf("expected recount after modification, got %d", *calls)
	}
}

func TestRefresh_MissingDirIsEmpty(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "nope"), nil)
	if err := lib.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(lib.List()) != 0 {
		t.Error("expected empty library")
	}
	if _, ok := lib.First(); ok {
		t.Error("expected no first document")
	}
}

func TestGetAndOpen(t *testing.T) {
	lib, _ := newTestLibrary(t, map[string]int{"a.pdf": 1})
	if err := lib.Refresh(); err != nil {
		t.Fatal(err)
	}

	f, doc, err := lib.Open("a.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()
	if doc.Pages != 1 || doc.Path() == "" {
		t.Errorf("unexpected doc %+v", doc)
	}

	if _, err := lib.Get("missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := lib.Open("../a.pdf"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestRealPDF_PagesAndText(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "parser", "testdata", "three-pages.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "guide.pdf"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	lib := New(dir, nil)
	if err := lib.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	doc, err := lib.Get("guide.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", doc.Pages)
	}
	text, err := lib.PageText("guide.pdf", 3)
	if err != nil || !strings.Contains(text, "Gamma vault notes") {
		t.Errorf("page 3: got %q, %v", text, err)
	}
	if _, err := lib.PageText("guide.pdf", 4); !errors.Is(err, parser.ErrPageNotFound) {
		t.Errorf("expected ErrPageNotFound past the last page, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"report.pdf", true},
		{"with space.pdf", true},
		{"", false},
		{"..", false},
		{"../etc/passwd", false},
		{"sub/file.pdf", false},
		{`sub\file.pdf`, false},
	}
	for _, tt := range tests {
		if err := ValidateName(tt.name); (err == nil) != tt.ok {
			t.Errorf("ValidateName(%q) = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}
