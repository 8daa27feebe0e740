// Package hybrid implements the hybrid searcher: concurrent dense +
// sparse retrieval fused with Reciprocal Rank Fusion, chunk-to-policy
// aggregation, and match-type labelling. Concurrency follows an
// errgroup fan-out pattern with graceful single-source degradation;
// the RRF math is generalized from a single weight pair to a
// configurable dense/sparse weight and fusion mode.
package hybrid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/errkit"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sparseindex"
)

// QueryEmbedder is the minimal embedding capability the dense leg needs:
// turning query text into a vector. embed.Embedder (and embed.StaticEmbedder)
// satisfy this interface without any adaptation.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}


// FusionMode selects how dense and sparse rankings are combined.
type FusionMode string

const (
	FusionRRF      FusionMode = "rrf"
	FusionWeighted FusionMode = "weighted"
)

// DefaultRRFConstant is the standard RRF smoothing constant.
const DefaultRRFConstant = 60

// Config tunes the hybrid searcher. Zero-value Config is invalid; use
// DefaultConfig as a starting point.
type Config struct {
	Mode                FusionMode
	RRFConstant         int
	DenseWeight         float64
	SparseWeight        float64
	CandidatesPerSource int
}

// DefaultConfig returns the retrieval defaults: RRF fusion, k=60,
// dense/sparse weights of 0.7/0.3, and 100 candidates fetched per source
// before fusion.
func DefaultConfig() Config {
	return Config{
		Mode:                FusionRRF,
		RRFConstant:         DefaultRRFConstant,
		DenseWeight:         0.7,
		SparseWeight:        0.3,
		CandidatesPerSource: 100,
	}
}

// Searcher fuses a VectorStore's dense search with a sparseindex.Index's
// BM25 search into policy-ranked hits.
type Searcher struct {
	vector   adapters.VectorStore
	sparse   *sparseindex.Index
	embedder QueryEmbedder
	cfg      Config

	metaMu sync.RWMutex
	meta   map[string]adapters.ScrolledChunk // chunkID -> metadata, lazily warmed
}

// New constructs a Searcher. embedder may be nil only if the caller never
// intends to exercise the dense leg (e.g. a sparse-only deployment); in
// that case dense search is skipped and nothing is recorded in SearchMetrics.
func New(vector adapters.VectorStore, sparse *sparseindex.Index, embedder QueryEmbedder, cfg Config) *Searcher {
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.CandidatesPerSource <= 0 {
		cfg.CandidatesPerSource = 30
	}
	return &Searcher{vector: vector, sparse: sparse, embedder: embedder, cfg: cfg}
}

// chunkScore is the per-chunk fused candidate before policy aggregation.
type chunkScore struct {
	chunkID    string
	policyID   int64
	chunkIndex int
	docType    string
	content    string
	score      float64
	denseRank   int // 1-indexed, 0 if absent
	sparseRank  int
	denseScore  float64
	sparseScore float64
	sparseOK    bool
}

// Search runs the dense and sparse legs concurrently, fuses their rankings,
// aggregates to one hit per policy (keeping that policy's best-scoring
// chunk), and returns up to finalLimit hits ordered by descending score.
func (s *Searcher) Search(ctx context.Context, query string, filter adapters.ScrollFilter, finalLimit int, minScore float64) ([]model.SearchHit, model.SearchMetrics, error) {
	start := time.Now()
	metrics := model.SearchMetrics{}

	var denseHits []adapters.DenseHit
	var sparseHits []sparseindex.Result
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if s.vector == nil || s.embedder == nil {
			return nil
		}
		vec, err := s.embedder.Embed(gctx, query)
		if err != nil {
			denseErr = errkit.TransportEmbedding(err)
			return nil
		}
		hits, err := s.vector.DenseSearch(gctx, vec, s.cfg.CandidatesPerSource, filter, 0)
		if err != nil {
			denseErr = errkit.TransportVectorStore(err)
			return nil
		}
		denseHits = hits
		return nil
	})

	g.Go(func() error {
		if s.sparse == nil {
			return nil
		}
		hits, err := s.sparse.Search(gctx, query, s.cfg.CandidatesPerSource)
		if err != nil {
			sparseErr = errkit.Internal("sparse search failed", err)
			return nil
		}
		sparseHits = hits
		return nil
	})

	_ = g.Wait()

	if denseErr != nil && sparseErr != nil {
		return nil, metrics, fmt.Errorf("hybrid search: both legs failed: dense: %v, sparse: %v", denseErr, sparseErr)
	}

	fused := s.fuse(denseHits, sparseHits)
	s.resolveSparseMeta(ctx, fused)
	aggregated := s.aggregateByPolicy(fused, filter)

	// Filter by minScore and truncate.
	out := make([]model.SearchHit, 0, len(aggregated))
	for _, hit := range aggregated {
		if hit.Score < minScore {
			continue
		}
		out = append(out, hit)
	}
	if finalLimit > 0 && len(out) > finalLimit {
		out = out[:finalLimit]
	}

	metrics.TotalCandidates = len(fused)
	metrics.FinalCount = len(out)
	metrics.ThresholdUsed = minScore
	metrics.SearchTimeMS = time.Since(start).Milliseconds()
	if len(out) > 0 {
		metrics.TopScore = out[0].Score
		sum := 0.0
		min := out[0].Score
		for _, h := range out {
			sum += h.Score
			if h.Score < min {
				min = h.Score
			}
		}
		metrics.AvgScore = sum / float64(len(out))
		metrics.MinScore = min
	}

	return out, metrics, nil
}

// fuse combines the dense and sparse candidate lists into per-chunk
// scores, using either RRF or a weighted-average of normalized scores
// depending on cfg.Mode.
func (s *Searcher) fuse(dense []adapters.DenseHit, sparse []sparseindex.Result) []chunkScore {
	byChunk := make(map[string]*chunkScore)

	getOrCreate := func(chunkID string) *chunkScore {
		if c, ok := byChunk[chunkID]; ok {
			return c
		}
		c := &chunkScore{chunkID: chunkID}
		byChunk[chunkID] = c
		return c
	}

	for rank, d := range dense {
		c := getOrCreate(d.ChunkID)
		c.policyID = d.PolicyID
		c.chunkIndex = d.ChunkIndex
		c.docType = d.DocType
		c.content = d.Content
		c.denseRank = rank + 1
		c.denseScore = d.Score
	}
	for rank, r := range sparse {
		c := getOrCreate(r.ChunkID)
		c.sparseRank = rank + 1
		c.sparseScore = r.Score
		c.sparseOK = true
	}

	switch s.cfg.Mode {
	case FusionWeighted:
		s.scoreWeighted(byChunk, dense, sparse)
	default:
		s.scoreRRF(byChunk)
	}

	results := make([]chunkScore, 0, len(byChunk))
	for _, c := range byChunk {
		results = append(results, *c)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
	return results
}

// scoreRRF computes the standard RRF sum over the sources a chunk
// actually appears in, then rescales it against the best score a chunk
// ranked first on every source could reach (DenseWeight+SparseWeight)/
// (k+1) — so the result lands on the same roughly-[0,1] scale as
// scoreWeighted's normalized scores, and both fusion modes can be
// compared against the same configured similarity threshold. A chunk
// missing from a source contributes no term for that source at all;
// it is treated as absent, not as tied for last place (rank=∞).
func (s *Searcher) scoreRRF(byChunk map[string]*chunkScore) {
	k := s.cfg.RRFConstant
	maxPossible := (s.cfg.DenseWeight + s.cfg.SparseWeight) / float64(k+1)
	if maxPossible == 0 {
		maxPossible = 1
	}
	for _, c := range byChunk {
		if c.denseRank > 0 {
			c.score += s.cfg.DenseWeight / float64(k+c.denseRank)
		}
		if c.sparseRank > 0 {
			c.score += s.cfg.SparseWeight / float64(k+c.sparseRank)
		}
		c.score /= maxPossible
	}
}

// scoreWeighted computes a simple weighted average of min-max-normalized
// raw scores, an alternative to RRF for deployments that want to preserve
// absolute score magnitude rather than rank position.
func (s *Searcher) scoreWeighted(byChunk map[string]*chunkScore, dense []adapters.DenseHit, sparse []sparseindex.Result) {
	var denseMax float64
	for _, d := range dense {
		if d.Score > denseMax {
			denseMax = d.Score
		}
	}
	var sparseMax float64
	for _, r := range sparse {
		if r.Score > sparseMax {
			sparseMax = r.Score
		}
	}

	totalWeight := s.cfg.DenseWeight + s.cfg.SparseWeight
	if totalWeight == 0 {
		totalWeight = 1
	}

	for _, c := range byChunk {
		var dn, sn float64
		if c.denseRank > 0 && denseMax > 0 {
			dn = c.denseScore / denseMax
		}
		if c.sparseOK && sparseMax > 0 {
			sn = c.sparseScore / sparseMax
		}
		c.score = (s.cfg.DenseWeight*dn + s.cfg.SparseWeight*sn) / totalWeight
	}
}

// resolveSparseMeta fills in PolicyID/DocType/Content for chunks that only
// matched via the sparse leg, using the vector store's Scroll as the
// metadata source of record (both legs index the same chunk corpus).
func (s *Searcher) resolveSparseMeta(ctx context.Context, fused []chunkScore) {
	if s.vector == nil {
		return
	}
	needsMeta := false
	for _, c := range fused {
		if c.policyID == 0 {
			needsMeta = true
			break
		}
	}
	if !needsMeta {
		return
	}

	s.warmMeta(ctx)

	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	for i := range fused {
		if fused[i].policyID != 0 {
			continue
		}
		if rec, ok := s.meta[fused[i].chunkID]; ok {
			fused[i].policyID = rec.PolicyID
			fused[i].chunkIndex = rec.ChunkIndex
			fused[i].docType = rec.DocType
			fused[i].content = rec.Content
		}
	}
}

// warmMeta populates the chunk metadata cache from a full vector-store
// scroll, if it hasn't been populated yet.
func (s *Searcher) warmMeta(ctx context.Context) {
	s.metaMu.RLock()
	loaded := s.meta != nil
	s.metaMu.RUnlock()
	if loaded {
		return
	}

	chunks, err := s.vector.Scroll(ctx, adapters.ScrollFilter{}, 0)
	if err != nil {
		return // best-effort: sparse-only hits simply stay unresolved
	}

	m := make(map[string]adapters.ScrolledChunk, len(chunks))
	for _, c := range chunks {
		m[c.ChunkID] = c
	}

	s.metaMu.Lock()
	s.meta = m
	s.metaMu.Unlock()
}

// aggregateByPolicy collapses chunk-level fused scores to one SearchHit per
// policy id, keeping the highest-scoring chunk as the representative
// excerpt and labelling MatchType by which leg(s) contributed.
func (s *Searcher) aggregateByPolicy(fused []chunkScore, filter adapters.ScrollFilter) []model.SearchHit {
	best := make(map[int64]chunkScore)
	for _, c := range fused {
		if c.policyID == 0 {
			continue // dense leg never resolved metadata for this chunk
		}
		if !filter.Match(c.policyID, c.docType) {
			continue
		}
		if existing, ok := best[c.policyID]; !ok || c.score > existing.score {
			best[c.policyID] = c
		}
	}

	hits := make([]model.SearchHit, 0, len(best))
	for _, c := range best {
		matchType := model.MatchHybrid
		switch {
		case c.denseRank > 0 && c.sparseRank == 0:
			matchType = model.MatchDense
		case c.sparseRank > 0 && c.denseRank == 0:
			matchType = model.MatchSparse
		}
		hits = append(hits, model.SearchHit{
			PolicyID:       c.policyID,
			Score:          c.score,
			MatchType:      matchType,
			MatchedExcerpt: c.content,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PolicyID < hits[j].PolicyID
	})
	return hits
}
