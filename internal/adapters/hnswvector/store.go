// Package hnswvector is a reference in-process implementation of
// adapters.VectorStore, backed by github.com/coder/hnsw. It is a stand-in
// for a real external vector-store client: production deployments swap
// this out behind the same interface without touching C3/C8.
package hnswvector

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/policyqa/policyqa/internal/adapters"
)

// Config configures the HNSW graph underlying the store.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// DefaultConfig returns sensible HNSW tuning defaults: M=16, EfSearch=20,
// cosine distance.
func DefaultConfig(dimensions int) Config {
	return Config{Dimensions: dimensions, M: 16, EfSearch: 20}
}

type chunkRecord struct {
	chunkID    string
	policyID   int64
	chunkIndex int
	docType    string
	content    string
}

// Store is a concurrency-safe in-memory dense index over DocumentChunk
// vectors, with equality filtering and a parallel metadata scroll.
type Store struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	cfg     Config
	byKey   map[uint64]chunkRecord
	idToKey map[string]uint64
	nextKey uint64
}

// New creates an empty Store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnswvector: dimensions must be positive")
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:   graph,
		cfg:     cfg,
		byKey:   make(map[uint64]chunkRecord),
		idToKey: make(map[string]uint64),
	}, nil
}

// Index inserts or replaces a chunk's vector and scroll-visible metadata.
func (s *Store) Index(chunkID string, policyID int64, chunkIndex int, docType, content string, vector []float32) error {
	if len(vector) != s.cfg.Dimensions {
		return fmt.Errorf("hnswvector: dimension mismatch: expected %d, got %d", s.cfg.Dimensions, len(vector))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idToKey[chunkID]; ok {
		delete(s.byKey, existing) // lazy delete: coder/hnsw cannot safely remove the last node
		delete(s.idToKey, chunkID)
	}

	vec := normalize(vector)
	key := s.nextKey
	s.nextKey++

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.byKey[key] = chunkRecord{chunkID: chunkID, policyID: policyID, chunkIndex: chunkIndex, docType: docType, content: content}
	s.idToKey[chunkID] = key

	return nil
}

// DenseSearch implements adapters.VectorStore.
func (s *Store) DenseSearch(_ context.Context, queryVec []float32, k int, filter adapters.ScrollFilter, minScore float64) ([]adapters.DenseHit, error) {
	if len(queryVec) != s.cfg.Dimensions {
		return nil, fmt.Errorf("hnswvector: query dimension mismatch: expected %d, got %d", s.cfg.Dimensions, len(queryVec))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return []adapters.DenseHit{}, nil
	}

	query := normalize(queryVec)
	// Over-fetch since filter/minScore are applied after the ANN search.
	nodes := s.graph.Search(query, k*4+20)

	hits := make([]adapters.DenseHit, 0, k)
	for _, node := range nodes {
		rec, ok := s.byKey[node.Key]
		if !ok {
			continue // lazily-deleted node
		}
		if !filter.Match(rec.policyID, rec.docType) {
			continue
		}
		dist := s.graph.Distance(query, node.Value)
		score := 1.0 - float64(dist)/2.0
		if score < minScore {
			continue
		}
		hits = append(hits, adapters.DenseHit{
			ChunkID:    rec.chunkID,
			PolicyID:   rec.policyID,
			ChunkIndex: rec.chunkIndex,
			DocType:    rec.docType,
			Content:    rec.content,
			Score:      score,
		})
		if len(hits) >= k {
			break
		}
	}

	return hits, nil
}

// Scroll implements adapters.VectorStore.
func (s *Store) Scroll(_ context.Context, filter adapters.ScrollFilter, limit int) ([]adapters.ScrolledChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]adapters.ScrolledChunk, 0, limit)
	for _, rec := range s.byKey {
		if !filter.Match(rec.policyID, rec.docType) {
			continue
		}
		out = append(out, adapters.ScrolledChunk{
			ChunkID:    rec.chunkID,
			PolicyID:   rec.policyID,
			ChunkIndex: rec.chunkIndex,
			Content:    rec.content,
			DocType:    rec.docType,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ adapters.VectorStore = (*Store)(nil)

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	out := make([]float32, len(v))
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}
