package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int    // Maximum chunk length.
	ChunkOverlap int    // Characters carried over from the end of the previous chunk.
	Separator    string // Boundary pieces are split on before merging.
}

// DefaultConfig returns the 1000-character, no-overlap split.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 0,
		Separator:    "\n\n",
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 0
	}
	if c.Separator == "" {
		c.Separator = d.Separator
	}
	return c
}

// ChunkTree walks a DocTree and splits every node's text into chunks. A chunk
// never spans two nodes, so it never spans two pages.
func ChunkTree(tree *doctree.DocTree, cfg Config) []doctree.Chunk {
	cfg = cfg.normalized()
	docHash := doctree.ContentHashHex([]byte(tree.Text()))

	var chunks []doctree.Chunk
	var walk func(node *doctree.DocNode, breadcrumb []string)
	walk = func(node *doctree.DocNode, breadcrumb []string) {
		var bc []string
		bc = append(bc, breadcrumb...)
		if node.Title != "" {
			bc = append(bc, node.Title)
		}

		page := 0
		if node.Page > 0 {
			page = node.Page - 1
		}
		for _, part := range SplitText(node.Text, cfg) {
			index := len(chunks)
			chunks = append(chunks, doctree.Chunk{
				ID:          chunkID(tree.Source, docHash, index),
				Source:      tree.Source,
				Text:        part,
				Index:       index,
				Page:        page,
				Breadcrumb:  copyBreadcrumb(bc),
				ContentHash: docHash,
			})
		}

		for _, child := range node.Children {
			walk(child, bc)
		}
	}
	for _, child := range tree.Children {
		walk(child, nil)
	}
	return chunks
}

// SplitText cuts text on the separator and merges the pieces back into
// chunks of at most cfg.ChunkSize characters.
func SplitText(text string, cfg Config) []string {
	cfg = cfg.normalized()
	var pieces []string
	for _, p := range strings.Split(text, cfg.Separator) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) > cfg.ChunkSize {
			// Oversized pieces are pre-split so the merge below can honor the limit.
			pieces = append(pieces, splitOversized(p, cfg.ChunkSize)...)
			continue
		}
		pieces = append(pieces, p)
	}
	return mergePieces(pieces, cfg.Separator, cfg.ChunkSize, cfg.ChunkOverlap)
}

// mergePieces greedily joins pieces with sep while the result stays within
// size. When a chunk is emitted, the trailing pieces whose combined length
// fits in overlap seed the next chunk.
func mergePieces(pieces []string, sep string, size, overlap int) []string {
	sepLen := runeLen(sep)
	var out []string
	var current []string
	total := 0

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > size && len(current) > 0 {
			out = append(out, strings.Join(current, sep))
			for len(current) > 0 && (total > overlap || joinedLen(n) > size) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(n)
		current = append(current, p)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, sep))
	}
	return out
}

// splitOversized breaks a single piece on sentence boundaries and, for
// sentences that are still too long, on rune counts.
func splitOversized(text string, size int) []string {
	var sentences []string
	for _, s := range splitSentences(text) {
		if runeLen(s) <= size {
			sentences = append(sentences, s)
			continue
		}
		sentences = append(sentences, hardSplit(s, size)...)
	}
	return mergePieces(sentences, " ", size, 0)
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func chunkID(source, docHash string, index int) string {
	return doctree.ContentHashHex([]byte(fmt.Sprintf("%s\x00%s\x00%d", source, docHash, index)))[:32]
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
