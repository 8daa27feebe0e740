package searchworkflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/config"
	"github.com/policyqa/policyqa/internal/hybrid"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sparseindex"
	"github.com/policyqa/policyqa/internal/websearch"
)

type fakeVectorStore struct {
	hits   []adapters.DenseHit
	scroll []adapters.ScrolledChunk
}

func (f *fakeVectorStore) DenseSearch(_ context.Context, _ []float32, k int, filter adapters.ScrollFilter, minScore float64) ([]adapters.DenseHit, error) {
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

// Scenario 7: dense-only, sparse-only, and hybrid hits all surface with
// their respective match-type label.
func TestHandler_Search_LabelsMatchTypesABC(t *testing.T) {
	vector := &fakeVectorStore{
		hits: []adapters.DenseHit{
			{ChunkID: "c1", PolicyID: 1, Content: "지원금 안내 A", Score: 0.9},
			{ChunkID: "c2", PolicyID: 2, Content: "창업 지원금 B", Score: 0.7},
		},
		scroll: []adapters.ScrolledChunk{
			{ChunkID: "c1", PolicyID: 1, Content: "지원금 안내 A"},
			{ChunkID: "c2", PolicyID: 2, Content: "창업 지원금 B"},
			{ChunkID: "c3", PolicyID: 3, Content: "지원금 세부 자격 C"},
		},
	}
	sparse := sparseindex.New()
	sparse.Load([]sparseindex.Document{
		{ChunkID: "c1", Content: "지원금 안내 A"},
		{ChunkID: "c3", Content: "지원금 세부 자격 C"},
	})
	searcher := hybrid.New(vector, sparse, fakeEmbedder{}, hybrid.DefaultConfig())
	h := NewHandler(searcher, nil, config.Default())

	result, err := h.Search(context.Background(), "지원금", adapters.ScrollFilter{})
	require.NoError(t, err)

	byPolicy := make(map[int64]model.MatchType)
	for _, hit := range result.Policies {
		byPolicy[hit.PolicyID] = hit.MatchType
	}
	assert.Equal(t, model.MatchDense, byPolicy[2])
	assert.Equal(t, model.MatchSparse, byPolicy[3])
	assert.Equal(t, model.MatchHybrid, byPolicy[1])
}

// Scenario 6: a thin, low-scoring result set triggers a web-search
// fallback and its evidence is appended after internal evidence.
func TestHandler_Search_FallsBackToWebOnThinResults(t *testing.T) {
	vector := &fakeVectorStore{
		hits: []adapters.DenseHit{
			{ChunkID: "c1", PolicyID: 1, Content: "희귀 지원금", Score: 0.2},
		},
		scroll: []adapters.ScrolledChunk{
			{ChunkID: "c1", PolicyID: 1, Content: "희귀 지원금"},
		},
	}
	sparse := sparseindex.New()
	searcher := hybrid.New(vector, sparse, fakeEmbedder{}, hybrid.DefaultConfig())

	provider := websearch.NewFakeProvider()
	provider.Canned["희귀 지원금 찾기"] = []websearch.Result{
		{Title: "관련 공고", URL: "https://example.gov/rare", Snippet: "희귀 지원금 안내"},
	}
	webSearcher := websearch.New(provider, 0, 0)

	cfg := config.Default()
	cfg.ThresholdDefault = 0.1
	cfg.ThresholdMin = 0.05
	h := NewHandler(searcher, webSearcher, cfg)

	result, err := h.Search(context.Background(), "희귀 지원금 찾기", adapters.ScrollFilter{})
	require.NoError(t, err)

	assert.True(t, result.Metrics.WebSearchTriggered)
	require.Len(t, result.WebSources, 1)
	require.NotEmpty(t, result.Evidence)
	assert.Equal(t, model.EvidenceWeb, result.Evidence[len(result.Evidence)-1].Type)
}

// ExtractKeywords is deterministic and only reports vocabulary hits.
func TestExtractKeywords_OnlyReportsKnownVocabulary(t *testing.T) {
	vocab := map[string]float64{"지원금": -0.05, "창업": -0.05, "R&D": 0.05}

	got := ExtractKeywords("청년 창업 지원금 공고", vocab)

	assert.ElementsMatch(t, []string{"창업", "지원금"}, got)
}

func TestExtractKeywords_NoMatchIsEmpty(t *testing.T) {
	vocab := map[string]float64{"지원금": -0.05}

	got := ExtractKeywords("오늘 날씨 어때", vocab)

	assert.Empty(t, got)
}
