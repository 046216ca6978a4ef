package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Add(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkDims(records, s.dim)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	s.dim = dim

	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		if i := s.indexOf(r.Chunk.ID); i >= 0 {
			s.records[i] = r
			continue
		}
		s.records = append(s.records, r)
	}
	return nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].Chunk.ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("search: %w: index has %d, query has %d", ErrDimensionMismatch, s.dim, len(vector))
	}
	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, Match{Record: r, Score: CosineSimilarity(vector, r.Embedding)})
	}
	return topK(matches, k), nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Sources(context.Context) ([]SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := map[string]*SourceInfo{}
	for _, r := range s.records {
		info, ok := byName[r.Chunk.Source]
		if !ok {
			info = &SourceInfo{Name: r.Chunk.Source, ContentHash: r.Chunk.ContentHash}
			byName[r.Chunk.Source] = info
		}
		info.Chunks++
	}
	out := make([]SourceInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) HasContent(_ context.Context, source, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Chunk.Source == source && r.Chunk.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeleteSource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Chunk.Source != source {
			kept = append(kept, r)
		}
	}
	s.records = kept
	if len(s.records) == 0 {
		s.dim = 0
	}
	return nil
}

func (s *MemoryStore) ReplaceSource(_ context.Context, source string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := 0
	for _, r := range s.records {
		if r.Chunk.Source != source {
			dim = len(r.Embedding)
			break
		}
	}
	dim, err := checkDims(records, dim)
	if err != nil {
		return fmt.Errorf("replace %s: %w", source, err)
	}

	kept := make([]Record, 0, len(s.records)+len(records))
	for _, r := range s.records {
		if r.Chunk.Source != source {
			kept = append(kept, r)
		}
	}
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		kept = append(kept, r)
	}
	s.records = kept
	s.dim = dim
	return nil
}

func (s *MemoryStore) Close() error { return nil }
