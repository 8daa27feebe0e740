// Package memrelational is a reference in-process implementation of
// adapters.RelationalStore, suitable for tests and small deployments.
// Production deployments swap in a real relational-store client behind
// the same interface.
package memrelational

import (
	"context"
	"sync"

	"github.com/policyqa/policyqa/internal/model"
)

// Store is a concurrency-safe in-memory policy catalog.
type Store struct {
	mu       sync.RWMutex
	policies map[int64]model.PolicyRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{policies: make(map[int64]model.PolicyRecord)}
}

// Seed loads records into the store, replacing any existing records.
func (s *Store) Seed(records ...model.PolicyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.policies[r.ID] = r
	}
}

// LookupPolicies implements adapters.RelationalStore.
func (s *Store) LookupPolicies(_ context.Context, ids []int64) (map[int64]model.PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]model.PolicyRecord, len(ids))
	for _, id := range ids {
		if rec, ok := s.policies[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}
