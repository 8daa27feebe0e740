// Package websearch implements the web search adapter: a single call to
// an external provider with a hard per-call deadline, used by the QA
// workflow's web-enrichment nodes. The HTTP client shape follows the
// same discipline as the LLM completion client (context-scoped timeout,
// no internal retry, structured transport error on failure).
package websearch

import (
	"context"
	"time"

	"github.com/policyqa/policyqa/internal/errkit"
)

// DefaultMaxResults and DefaultDeadline bound the web-search fallback.
const (
	DefaultMaxResults = 5
	DefaultDeadline   = 10 * time.Second
)

// Result is one web search hit.
type Result struct {
	Title       string
	URL         string
	Snippet     string
	FetchedDate string
	Score       float64
}

// Provider performs a single web search call. Implementations must not
// retry internally — they fail fast with an errkit.TransportWebSearch
// error so the caller's degrade-gracefully policy applies uniformly.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int, domainBias string) ([]Result, error)
}

// Searcher wraps a Provider with a default deadline and result cap, so
// callers never need to remember either.
type Searcher struct {
	provider   Provider
	deadline   time.Duration
	maxResults int
}

// New constructs a Searcher around provider, applying DefaultDeadline and
// DefaultMaxResults unless overridden.
func New(provider Provider, deadline time.Duration, maxResults int) *Searcher {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{provider: provider, deadline: deadline, maxResults: maxResults}
}

// Search enforces the hard per-call deadline and wraps any provider error
// as errkit.TransportWebSearch.
func (s *Searcher) Search(ctx context.Context, query string, domainBias string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	results, err := s.provider.Search(ctx, query, s.maxResults, domainBias)
	if err != nil {
		return nil, errkit.TransportWebSearch(err)
	}
	return results, nil
}

// FakeProvider is a deterministic reference Provider for tests and
// offline deployments: it returns canned results keyed by the exact
// query string, with no network access.
type FakeProvider struct {
	Canned map[string][]Result
}

// NewFakeProvider constructs an empty FakeProvider; populate Canned to
// script responses.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Canned: make(map[string][]Result)}
}

// Search implements Provider by looking up query verbatim in Canned,
// returning an empty slice (not an error) on a miss.
func (f *FakeProvider) Search(_ context.Context, query string, maxResults int, _ string) ([]Result, error) {
	results, ok := f.Canned[query]
	if !ok {
		return []Result{}, nil
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

var _ Provider = (*FakeProvider)(nil)
