// Package sparseindex implements the sparse (keyword) half of the hybrid
// searcher. The inverted index and scoring are hand-rolled to a fixed
// BM25 formula (k1=1.5, b=0.75, deterministic score floor and tie-break);
// Bleve's unicode-aware tokenizer is used underneath as the
// text-segmentation substrate so Korean/Latin-mixed policy text
// tokenizes the same way source text does in code search.
package sparseindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Constants for the standard BM25 parameterization.
const (
	K1         = 1.5
	B          = 0.75
	ScoreFloor = 0.1
)

// Document is one unit indexed by the sparse engine: a policy document
// chunk, addressed by ChunkID (the same id used by the dense VectorStore
// so fusion can join on it).
type Document struct {
	ChunkID string
	Content string
}

// Result is one scored hit from Search, ordered descending by Score with
// ascending ChunkID as the deterministic tie-break.
type Result struct {
	ChunkID string
	Score   float64
}

type posting struct {
	chunkID string
	tf      int
}

// Index is a hand-rolled BM25 posting-list index. It is safe for
// concurrent Search calls once built. Load takes the write lock and Search
// the read lock; an index made with NewLazy builds once from its source
// via sync.Once, on Warm or on the first Search.
type Index struct {
	mu         sync.RWMutex
	postings   map[string][]posting // term -> postings, insertion order
	docLen     map[string]int       // chunkID -> token count
	docContent map[string]string    // chunkID -> original content, for excerpting
	totalLen   int
	built      bool
	buildOnce  sync.Once
	source     func(ctx context.Context) ([]Document, error)
	buildErr   error
}

// New creates an empty index that documents are added to directly via Load.
func New() *Index {
	return &Index{
		postings:   make(map[string][]posting),
		docLen:     make(map[string]int),
		docContent: make(map[string]string),
	}
}

// NewLazy creates an index that builds itself from source on first Search
// or explicit Warm call, rather than eagerly at construction time.
func NewLazy(source func(ctx context.Context) ([]Document, error)) *Index {
	idx := New()
	idx.source = source
	return idx
}

// Warm forces the lazy build to run now, instead of deferring to the first
// Search call. It is a no-op for indexes constructed with New and loaded
// directly via Load.
func (idx *Index) Warm(ctx context.Context) error {
	idx.buildOnce.Do(func() {
		idx.buildErr = idx.runBuild(ctx)
	})
	return idx.buildErr
}

func (idx *Index) runBuild(ctx context.Context) error {
	if idx.source == nil {
		idx.mu.Lock()
		idx.built = true
		idx.mu.Unlock()
		return nil
	}
	docs, err := idx.source(ctx)
	if err != nil {
		return err
	}
	idx.Load(docs)
	return nil
}

// Load indexes docs, replacing any existing postings for their chunk ids.
// Load is not safe to call concurrently with Search; callers build the
// index fully before first use (or via Warm) rather than mutating it
// under load.
func (idx *Index) Load(docs []Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, doc := range docs {
		idx.remove(doc.ChunkID)
		tokens := Tokenize(doc.Content)
		idx.docLen[doc.ChunkID] = len(tokens)
		idx.docContent[doc.ChunkID] = doc.Content
		idx.totalLen += len(tokens)

		counts := make(map[string]int, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		for term, tf := range counts {
			idx.postings[term] = append(idx.postings[term], posting{chunkID: doc.ChunkID, tf: tf})
		}
	}
	idx.built = true
}

// remove drops an existing chunk's postings and length bookkeeping.
// Callers must hold idx.mu.
func (idx *Index) remove(chunkID string) {
	if length, ok := idx.docLen[chunkID]; ok {
		idx.totalLen -= length
		delete(idx.docLen, chunkID)
		delete(idx.docContent, chunkID)
		for term, list := range idx.postings {
			filtered := list[:0]
			for _, p := range list {
				if p.chunkID != chunkID {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) == 0 {
				delete(idx.postings, term)
			} else {
				idx.postings[term] = filtered
			}
		}
	}
}

// DocCount returns the number of indexed chunks.
func (idx *Index) DocCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLen)
}

// Search scores every document containing at least one query term using
// BM25 (k1=1.5, b=0.75), drops scores below ScoreFloor, and returns the
// top k results ordered by (descending score, ascending chunk id).
//
// If the index was constructed with NewLazy and has not yet been built,
// Search triggers the one-time build first.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	idx.buildOnce.Do(func() {
		idx.buildErr = idx.runBuild(ctx)
	})
	if idx.buildErr != nil {
		return nil, idx.buildErr
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLen)
	if n == 0 {
		return nil, nil
	}
	avgdl := float64(idx.totalLen) / float64(n)
	if avgdl == 0 {
		avgdl = 1
	}

	terms := Tokenize(query)
	scores := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		list := idx.postings[term]
		if len(list) == 0 {
			continue
		}
		idf := inverseDocFreq(n, len(list))
		for _, p := range list {
			dl := float64(idx.docLen[p.chunkID])
			tf := float64(p.tf)
			norm := tf * (K1 + 1) / (tf + K1*(1-B+B*dl/avgdl))
			scores[p.chunkID] += idf * norm
		}
	}

	results := make([]Result, 0, len(scores))
	for chunkID, score := range scores {
		if score < ScoreFloor {
			continue
		}
		results = append(results, Result{ChunkID: chunkID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// inverseDocFreq is the standard BM25 IDF term with the +1 floor so common
// terms (appearing in every document) never go negative.
func inverseDocFreq(n, df int) float64 {
	return math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
}
