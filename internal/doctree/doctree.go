package doctree

import (
	"crypto/sha256"
	"fmt"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Source   string     // Base filename under the documents directory
	Pages    int        // Page count for paged formats (0 if N/A)
	Children []*DocNode // Top-level sections or pages
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page, 1-based (0 if N/A)
	Children []*DocNode // Subsections
}

// Chunk is a sized text segment of exactly one document and one page.
type Chunk struct {
	ID          string   // Stable identifier: source, index and content hash
	Source      string   // Base filename of the owning document
	Text        string   // Chunk text content
	Index       int      // Sequence number within document
	Page        int      // Source page, 0-based as stored in chunk metadata (0 if N/A)
	Breadcrumb  []string // Heading hierarchy, e.g. ["Financial Results", "Revenue"]
	ContentHash string   // Hash of the whole document's text at ingestion time
}

// DisplayPage returns the 1-based page number used by the viewer.
func (c Chunk) DisplayPage() int {
	return c.Page + 1
}

// Text flattens all node text of the tree in document order.
func (t *DocTree) Text() string {
	var out []byte
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if n.Text != "" {
				if len(out) > 0 {
					out = append(out, '\n')
				}
				out = append(out, n.Text...)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return string(out)
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
