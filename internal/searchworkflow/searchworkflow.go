// Package searchworkflow implements the search workflow: keyword
// extraction, the dynamic similarity threshold, a hybrid search call,
// fallback-to-web triggering, and a templated one-line summary — all
// without an LLM call, unlike the QA workflow's answer nodes.
package searchworkflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/config"
	"github.com/policyqa/policyqa/internal/hybrid"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/websearch"
)

// ExtractKeywords is the rule-based keyword extraction step: it reports,
// in sorted order, which of cfg's keyword-adjustment vocabulary terms the
// query contains. Unknown words are not extracted — the dynamic threshold
// only conditions on the vocabulary it has adjustments for.
func ExtractKeywords(query string, vocab map[string]float64) []string {
	lower := strings.ToLower(query)
	out := make([]string, 0, len(vocab))
	for kw := range vocab {
		if strings.Contains(lower, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	sort.Strings(out) // deterministic order; vocab is a map
	return out
}

// Result is what Handler.Search returns.
type Result struct {
	Policies  []model.SearchHit
	Metrics   model.SearchMetrics
	Evidence  []model.Evidence
	WebSources []websearch.Result
	Summary   string
}

// Handler is the transport-agnostic entry point for the search workflow.
type Handler struct {
	searcher *hybrid.Searcher
	web      *websearch.Searcher
	cfg      config.SearchConfig
}

// NewHandler constructs a Handler.
func NewHandler(searcher *hybrid.Searcher, web *websearch.Searcher, cfg config.SearchConfig) *Handler {
	return &Handler{searcher: searcher, web: web, cfg: cfg}
}

// Search runs the full C8 pipeline for one query against filter.
func (h *Handler) Search(ctx context.Context, query string, filter adapters.ScrollFilter) (Result, error) {
	start := time.Now()

	keywords := ExtractKeywords(query, h.cfg.KeywordAdjustments)

	// Step 1: a provisional, near-unfiltered pass to learn the candidate
	// count the dynamic threshold formula conditions on.
	provisional, _, err := h.searcher.Search(ctx, query, filter, h.cfg.CandidatesPerSource, h.cfg.ThresholdMin)
	if err != nil {
		return Result{}, err
	}

	threshold := h.cfg.DynamicThreshold(config.ThresholdInputs{
		Keywords:               keywords,
		RegionPresent:          filter.Region != "",
		CategoryPresent:        filter.Category != "",
		ProvisionalResultCount: len(provisional),
	})

	hits := make([]model.SearchHit, 0, len(provisional))
	for _, hit := range provisional {
		if hit.Score < threshold {
			continue
		}
		hits = append(hits, hit)
	}
	if len(hits) > h.cfg.FinalLimit {
		hits = hits[:h.cfg.FinalLimit]
	}

	metrics := model.SearchMetrics{
		TotalCandidates: len(provisional),
		FinalCount:      len(hits),
		ThresholdUsed:   threshold,
	}
	if len(hits) > 0 {
		sum, min := 0.0, hits[0].Score
		for _, hit := range hits {
			sum += hit.Score
			if hit.Score < min {
				min = hit.Score
			}
		}
		metrics.TopScore = hits[0].Score
		metrics.AvgScore = sum / float64(len(hits))
		metrics.MinScore = min
	}

	evidence := make([]model.Evidence, 0, len(hits))
	for _, hit := range hits {
		evidence = append(evidence, model.NewInternalEvidence(hit.PolicyID, 0, "", hit.MatchedExcerpt, hit.Score))
	}

	var webSources []websearch.Result
	if h.cfg.ShouldFallbackToWeb(len(hits), metrics.TopScore) && h.web != nil {
		metrics.WebSearchTriggered = true
		metrics.SufficiencyReason = "below_fallback_threshold"
		results, err := h.web.Search(ctx, query, "")
		if err == nil {
			webSources = results
			metrics.WebSearchCount = len(results)
			for _, r := range results {
				evidence = append(evidence, model.NewWebEvidence(r.Title, r.URL, r.Snippet, r.FetchedDate, r.Score))
			}
		}
	}

	metrics.SearchTimeMS = time.Since(start).Milliseconds()

	return Result{
		Policies:   hits,
		Metrics:    metrics,
		Evidence:   evidence,
		WebSources: webSources,
		Summary:    summarize(hits, metrics),
	}, nil
}

// summarize builds the one-line templated result summary; no LLM call.
func summarize(hits []model.SearchHit, metrics model.SearchMetrics) string {
	if len(hits) == 0 {
		if metrics.WebSearchTriggered {
			return fmt.Sprintf("사내 문서에서 일치하는 정책을 찾지 못해 웹 검색 결과 %d건을 함께 제공합니다.", metrics.WebSearchCount)
		}
		return "조건에 맞는 정책을 찾지 못했습니다."
	}
	summary := fmt.Sprintf("정책 %d건을 찾았습니다 (최고 점수 %.2f).", len(hits), metrics.TopScore)
	if metrics.WebSearchTriggered {
		summary += fmt.Sprintf(" 웹 검색 결과 %d건을 보충했습니다.", metrics.WebSearchCount)
	}
	return summary
}
