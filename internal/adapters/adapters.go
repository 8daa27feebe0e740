// Package adapters defines the uniform interfaces over the vector store
// and relational store. Concrete implementations live in sibling
// packages (hnswvector, memrelational) and are swappable reference
// backends; production deployments supply their own.
package adapters

import (
	"context"

	"github.com/policyqa/policyqa/internal/model"
)

// ScrollFilter is an equality filter over DocumentChunk payload fields,
// used by both dense-search and scroll.
type ScrollFilter struct {
	PolicyID int64 // zero means "no policy filter"
	DocType  string
	Region   string
	Category string
}

// Match reports whether a chunk with the given policy id/doc type matches
// the equality filter. Region/Category are applied by callers that have
// access to the owning PolicyRecord (the chunk itself carries no region/
// category).
func (f ScrollFilter) Match(policyID int64, docType string) bool {
	if f.PolicyID != 0 && f.PolicyID != policyID {
		return false
	}
	if f.DocType != "" && f.DocType != docType {
		return false
	}
	return true
}

// DenseHit is one result of a dense-search call, before policy-level
// aggregation.
type DenseHit struct {
	ChunkID        string
	PolicyID       int64
	ChunkIndex     int
	DocType        string
	Content        string
	Score          float64 // cosine similarity, descending
}

// VectorStore is the uniform interface over the vector store: dense
// similarity search and an unordered metadata scroll.
//
// Both operations fail with a Transport error on network issues;
// DenseSearch may additionally fail with an Embedding error for a
// malformed query vector. Neither retries internally.
type VectorStore interface {
	// DenseSearch returns at most k hits matching filter, each with score
	// >= minScore, sorted descending by score.
	DenseSearch(ctx context.Context, queryVec []float32, k int, filter ScrollFilter, minScore float64) ([]DenseHit, error)

	// Scroll returns up to limit chunks matching filter, without vectors.
	Scroll(ctx context.Context, filter ScrollFilter, limit int) ([]ScrolledChunk, error)
}

// ScrolledChunk is a DocumentChunk as returned by Scroll: vectors are
// never populated since the caller doesn't need them for cached context.
type ScrolledChunk struct {
	ChunkID    string
	PolicyID   int64
	ChunkIndex int
	Content    string
	DocType    string
}

// RelationalStore is the uniform interface over the relational metadata
// store: policy lookup by id.
type RelationalStore interface {
	// LookupPolicies returns only the PolicyRecords that exist among ids,
	// keyed by id.
	LookupPolicies(ctx context.Context, ids []int64) (map[int64]model.PolicyRecord, error)
}
