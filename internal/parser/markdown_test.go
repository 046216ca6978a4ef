package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

func parseMarkdown(t *testing.T, input, filename string) *doctree.DocTree {
	t.Helper()
	tree, err := (&MarkdownParser{}).Parse(strings.NewReader(input), filename)
	if err != nil {
		t.Fatalf("Parse(%s): %v", filename, err)
	}
	return tree
}

func TestMarkdownParser_PrefaceThenSections(t *testing.T) {
	input := `Read this before the first chapter.

# Setup

Install the reader.

### Offline mode

Copy the manuals first.

# Usage

Ask a question.
`
	doc := parseMarkdown(t, input, "manual.md")

	if len(doc.Children) != 3 {
		t.Fatalf("expected preface plus 2 chapters, got %d nodes", len(doc.Children))
	}
	preface := doc.Children[0]
	if preface.Title != "" || preface.Text != "Read this before the first chapter." {
		t.Errorf("unexpected preface node %+v", preface)
	}

	setup := doc.Children[1]
	if setup.Title != "Setup" || setup.Text != "Install the reader." {
		t.Errorf("unexpected setup node %+v", setup)
	}
	// A level-3 heading directly under a level-1 still nests.
	if len(setup.Children) != 1 || setup.Children[0].Title != "Offline mode" {
		t.Fatalf("expected Offline mode under Setup, got %+v", setup.Children)
	}
	if doc.Children[2].Title != "Usage" || len(doc.Children[2].Children) != 0 {
		t.Errorf("Usage must return to the top level, got %+v", doc.Children[2])
	}

	if !strings.HasPrefix(doc.Text(), "Read this before the first chapter.\nInstall the reader.") {
		t.Errorf("flattened text out of order: %q", doc.Text())
	}
}

func TestMarkdownParser_BlockText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"list items one per line", "- first item\n- second item\n", "first item\nsecond item"},
		{"blockquote", "> quoted line\n", "quoted line"},
		{"inline emphasis flattened", "Some **bold** words.\n", "Some bold words."},
		{"fenced code kept raw", "```\nGET /health\n```\n", "GET /health"},
		{"paragraphs joined", "One.\n\nTwo.\n", "One.\n\nTwo."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseMarkdown(t, tt.input, "block.md")
			if len(doc.Children) != 1 {
				t.Fatalf("expected one untitled node, got %d", len(doc.Children))
			}
			if got := doc.Children[0].Text; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMarkdownParser_HeadingOnlySections(t *testing.T) {
	doc := parseMarkdown(t, "# Empty\n\n## Also empty\n", "outline.md")

	if len(doc.Children) != 1 || doc.Children[0].Text != "" || len(doc.Children[0].Children) != 1 {
		t.Fatalf("unexpected outline %+v", doc.Children)
	}
	if doc.Text() != "" {
		t.Errorf("headings alone carry no chunkable text, got %q", doc.Text())
	}
}

func TestMarkdownParser_BlankInput(t *testing.T) {
	for _, input := range []string{"", "   \n\n  \n"} {
		doc := parseMarkdown(t, input, "blank.md")
		if len(doc.Children) != 0 || doc.Text() != "" {
			t.Errorf("input %q: expected no nodes, got %+v", input, doc.Children)
		}
	}
}

func TestMarkdownParser_TitleFromFilename(t *testing.T) {
	for filename, want := range map[string]string{
		"faq.md":          "faq",
		"notes.markdown":  "notes",
		"release.v2.md":   "release.v2",
		"no-extension.md": "no-extension",
	} {
		if got := parseMarkdown(t, "text", filename).Title; got != want {
			t.Errorf("%s: expected title %q, got %q", filename, want, got)
		}
	}
}
