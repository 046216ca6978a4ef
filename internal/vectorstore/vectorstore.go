// Package vectorstore persists chunk embeddings and answers nearest-neighbour
// queries by exact cosine similarity.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

// DefaultK is the number of matches returned when k <= 0.
const DefaultK = 4

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already in the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Record is a chunk with its embedding.
type Record struct {
	Chunk     doctree.Chunk
	Embedding []float32
	Model     string
}

// Match is a search hit. Score is the cosine similarity to the query.
type Match struct {
	Record
	Score float32
}

// SourceInfo summarises the chunks stored for one source document.
type SourceInfo struct {
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
	Chunks      int    `json:"chunks"`
}

// Store is a vector index over chunk records.
type Store interface {
	Add(ctx context.Context, records []Record) error
	// Search returns up to k records ordered by descending similarity; equal
	// scores keep insertion order.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Sources(ctx context.Context) ([]SourceInfo, error)
	HasContent(ctx context.Context, source, contentHash string) (bool, error)
	DeleteSource(ctx context.Context, source string) error
	// ReplaceSource swaps every record of source for records in one step. The
	// dimension check ignores the records being replaced. On error the
	// previous records are kept.
	ReplaceSource(ctx context.Context, source string, records []Record) error
	Close() error
}

// CosineSimilarity returns a value in [-1, 1]; 0 for mismatched lengths or
// zero vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// topK orders matches (already in insertion order) by score and keeps k.
func topK(matches []Match, k int) []Match {
	if k <= 0 {
		k = DefaultK
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// checkDims verifies every record matches dim, or the first record when dim
// is 0. It returns the resulting dimension.
func checkDims(records []Record, dim int) (int, error) {
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return dim, ErrDimensionMismatch
		}
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return dim, ErrDimensionMismatch
		}
	}
	return dim, nil
}
