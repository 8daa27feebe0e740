package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sparseindex"
)

// fakeVectorStore is a minimal adapters.VectorStore for fusion tests: it
// returns a fixed, pre-ranked hit list regardless of the query vector.
type fakeVectorStore struct {
	hits   []adapters.DenseHit
	scroll []adapters.ScrolledChunk
	err    error
}

func (f *fakeVectorStore) DenseSearch(_ context.Context, _ []float32, k int, filter adapters.ScrollFilter, minScore float64) ([]adapters.DenseHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]adapters.DenseHit, 0, len(f.hits))
	for _, h := range f.hits {
		if !filter.Match(h.PolicyID, h.DocType) || h.Score < minScore {
			continue
		}
		out = append(out, h)
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (f *fakeVectorStore) Scroll(_ context.Context, filter adapters.ScrollFilter, limit int) ([]adapters.ScrolledChunk, error) {
	out := make([]adapters.ScrolledChunk, 0, len(f.scroll))
	for _, c := range f.scroll {
		if !filter.Match(c.PolicyID, c.DocType) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return []float32{1, 0}, nil }
func (fakeEmbedder) Dimensions() int                                      { return 2 }

// TS01: a chunk found by both legs outranks one found by only one leg.
func TestSearcher_Search_HybridOutranksSingleSource(t *testing.T) {
	// Given: dense finds chunk c1 (policy 1) and c2 (policy 2); sparse finds
	// c1 and c3 (policy 3)
	vector := &fakeVectorStore{
		hits: []adapters.DenseHit{
			{ChunkID: "c1", PolicyID: 1, Content: "지원금 안내", Score: 0.9},
			{ChunkID: "c2", PolicyID: 2, Content: "창업 공고", Score: 0.8},
		},
		scroll: []adapters.ScrolledChunk{
			{ChunkID: "c1", PolicyID: 1, Content: "지원금 안내"},
			{ChunkID: "c2", PolicyID: 2, Content: "창업 공고"},
			{ChunkID: "c3", PolicyID: 3, Content: "지원금 세부 자격"},
		},
	}
	sparse := sparseindex.New()
	sparse.Load([]sparseindex.Document{
		{ChunkID: "c1", Content: "지원금 안내"},
		{ChunkID: "c3", Content: "지원금 세부 자격"},
	})

	s := New(vector, sparse, fakeEmbedder{}, DefaultConfig())

	// When: searching
	hits, metrics, err := s.Search(context.Background(), "지원금", adapters.ScrollFilter{}, 10, 0)
	require.NoError(t, err)

	// Then: policy 1 (hybrid match) ranks first
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(1), hits[0].PolicyID)
	assert.Equal(t, model.MatchHybrid, hits[0].MatchType)
	assert.Greater(t, metrics.FinalCount, 0)
}

// TS02: a policy matched only by the sparse leg is still resolved and
// surfaced with its metadata filled in from the vector store's scroll.
func TestSearcher_Search_SparseOnlyMatchResolvesMetadata(t *testing.T) {
	// Given: dense finds nothing for policy 3's chunk, only sparse does
	vector := &fakeVectorStore{
		hits: nil,
		scroll: []adapters.ScrolledChunk{
			{ChunkID: "c3", PolicyID: 3, DocType: "guideline", Content: "지원금 세부 자격 요건"},
		},
	}
	sparse := sparseindex.New()
	sparse.Load([]sparseindex.Document{
		{ChunkID: "c3", Content: "지원금 세부 자격 요건"},
	})

	s := New(vector, sparse, fakeEmbedder{}, DefaultConfig())

	// When: searching
	hits, _, err := s.Search(context.Background(), "지원금", adapters.ScrollFilter{}, 10, 0)
	require.NoError(t, err)

	// Then: the sparse-only policy is present with resolved metadata
	require.Len(t, hits, 1)
	assert.Equal(t, int64(3), hits[0].PolicyID)
	assert.Contains(t, hits[0].MatchedExcerpt, "지원금")
}

// TS03: the dense leg failing degrades gracefully to sparse-only results
// when a sparse index is configured.
func TestSearcher_Search_DenseFailureDegradesToSparse(t *testing.T) {
	// Given: a vector store that errors on dense search but still serves
	// Scroll (metadata resolution still works), and a working sparse index
	vector := &fakeVectorStore{
		err: assert.AnError,
		scroll: []adapters.ScrolledChunk{
			{ChunkID: "c1", PolicyID: 1, Content: "지원금 안내"},
		},
	}
	sparse := sparseindex.New()
	sparse.Load([]sparseindex.Document{{ChunkID: "c1", Content: "지원금 안내"}})
	s := New(vector, sparse, fakeEmbedder{}, DefaultConfig())

	// When: searching
	hits, _, err := s.Search(context.Background(), "지원금", adapters.ScrollFilter{}, 10, 0)

	// Then: no error, sparse-only results still surface
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.MatchSparse, hits[0].MatchType)
}

// TS04: no vector store and no sparse index is not an error; it yields no hits.
func TestSearcher_Search_NoSourcesConfigured(t *testing.T) {
	// Given: a searcher with neither leg wired
	s := New(nil, nil, nil, DefaultConfig())

	// When: searching
	hits, _, err := s.Search(context.Background(), "지원금", adapters.ScrollFilter{}, 10, 0)

	// Then: no error (both legs are simply no-ops), but no hits either
	require.NoError(t, err)
	assert.Empty(t, hits)
}
