package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

func TestChunkTree_SmallNodeFitsOneChunk(t *testing.T) {
	tree := &doctree.DocTree{
		Title:  "Small",
		Source: "small.pdf",
		Children: []*doctree.DocNode{
			{Title: "Page 1", Text: "A short page of text.", Page: 1},
		},
	}

	chunks := ChunkTree(tree, DefaultConfig())

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Index != 0 {
		t.Errorf("expected index 0, got %d", c.Index)
	}
	if c.Source != "small.pdf" {
		t.Errorf("expected source %q, got %q", "small.pdf", c.Source)
	}
	if c.Page != 0 {
		t.Errorf("expected 0-based page 0, got %d", c.Page)
	}
	if c.ID == "" || c.ContentHash == "" {
		t.Errorf("expected ID and content hash to be set, got %q / %q", c.ID, c.ContentHash)
	}
}

func TestChunkTree_NeverExceedsChunkSize(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, strings.Repeat("The quick brown fox jumps over the lazy dog. ", 3))
	}
	paras = append(paras, strings.Repeat("x", 2500)) // no sentence boundary at all
	tree := &doctree.DocTree{
		Source:   "big.txt",
		Children: []*doctree.DocNode{{Text: strings.Join(paras, "\n\n")}},
	}

	cfg := Config{ChunkSize: 300, ChunkOverlap: 0}
	chunks := ChunkTree(tree, cfg)

	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		if n := utf8.RuneCountInString(c.Text); n > cfg.ChunkSize {
			t.Errorf("chunk %d: %d runes exceeds %d", i, n, cfg.ChunkSize)
		}
	}
}

func TestChunkTree_ChunksNeverSpanPages(t *testing.T) {
	tree := &doctree.DocTree{
		Source: "paged.pdf",
		Children: []*doctree.DocNode{
			{Text: "first page", Page: 1},
			{Text: "third page", Page: 3},
		},
	}
	chunks := ChunkTree(tree, DefaultConfig())

	if len(chunks) != 2 {
		t.Fatalf("expected one chunk per page, got %d", len(chunks))
	}
	if chunks[0].Page != 0 || chunks[0].Text != "first page" {
		t.Errorf("chunk 0: got page %d text %q", chunks[0].Page, chunks[0].Text)
	}
	if chunks[1].Page != 2 || chunks[1].DisplayPage() != 3 {
		t.Errorf("chunk 1: expected 0-based page 2, got %d", chunks[1].Page)
	}
}

func TestChunkTree_BreadcrumbPropagation(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "Chapter 1",
				Children: []*doctree.DocNode{
					{Title: "Section 1.1", Text: "content"},
				},
			},
			{Title: "Chapter 2", Text: "more"},
		},
	}
	chunks := ChunkTree(tree, DefaultConfig())

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	want := []string{"Chapter 1", "Section 1.1"}
	if strings.Join(chunks[0].Breadcrumb, "/") != strings.Join(want, "/") {
		t.Errorf("expected breadcrumb %v, got %v", want, chunks[0].Breadcrumb)
	}
	if len(chunks[1].Breadcrumb) != 1 || chunks[1].Breadcrumb[0] != "Chapter 2" {
		t.Errorf("sibling breadcrumb leaked: %v", chunks[1].Breadcrumb)
	}
}

func TestChunkTree_StableIDs(t *testing.T) {
	tree := &doctree.DocTree{
		Source:   "a.txt",
		Children: []*doctree.DocNode{{Text: "one\n\ntwo"}},
	}
	cfg := Config{ChunkSize: 4}
	first := ChunkTree(tree, cfg)
	second := ChunkTree(tree, cfg)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 chunks each, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[0].ID == first[1].ID {
		t.Errorf("expected stable, distinct IDs: %q %q %q", first[0].ID, second[0].ID, first[1].ID)
	}
}

func TestChunkTree_EmptyTree(t *testing.T) {
	chunks := ChunkTree(&doctree.DocTree{Title: "Empty"}, DefaultConfig())
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestSplitText_MergesUpToSize(t *testing.T) {
	text := "aaaa\n\nbbbb\n\ncccc"
	got := SplitText(text, Config{ChunkSize: 10})
	// "aaaa\n\nbbbb" is exactly 10 runes.
	want := []string{"aaaa\n\nbbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSplitText_Overlap(t *testing.T) {
	text := "aaaa\n\nbbbb\n\ncccc\n\ndddd"
	got := SplitText(text, Config{ChunkSize: 10, ChunkOverlap: 4})
	want := []string{"aaaa\n\nbbbb", "bbbb\n\ncccc", "cccc\n\ndddd"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSplitText_CountsRunesNotBytes(t *testing.T) {
	text := "가나다라\n\n마바사아"
	got := SplitText(text, Config{ChunkSize: 10})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk for 10 runes, got %d: %q", len(got), got)
	}
}

func TestSplitText_OversizedParagraphSplitsOnSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	got := SplitText(text, Config{ChunkSize: 30})
	want := []string{"One two three. Four five six.", "Seven eight nine."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestConfig_NormalizedFallbacks(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{"zero value", Config{}, DefaultConfig()},
		{"overlap too large", Config{ChunkSize: 100, ChunkOverlap: 100}, Config{ChunkSize: 100, Separator: "\n\n"}},
		{"negative overlap", Config{ChunkSize: 50, ChunkOverlap: -1}, Config{ChunkSize: 50, Separator: "\n\n"}},
		{"custom separator", Config{ChunkSize: 50, Separator: "\n"}, Config{ChunkSize: 50, Separator: "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
