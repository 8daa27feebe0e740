package model

// MatchType reports which retrieval source(s) produced a SearchHit.
type MatchType string

const (
	MatchDense  MatchType = "dense"
	MatchSparse MatchType = "sparse"
	MatchHybrid MatchType = "hybrid"
)

// SearchHit is one policy-level result of the hybrid searcher or search
// workflow.
type SearchHit struct {
	PolicyID       int64
	Score          float64
	MatchType      MatchType
	MatchedExcerpt string
}

// SearchMetrics summarizes one search-workflow invocation.
type SearchMetrics struct {
	TotalCandidates    int
	FinalCount         int
	TopScore           float64
	AvgScore           float64
	MinScore           float64
	ThresholdUsed      float64
	WebSearchTriggered bool
	WebSearchCount     int
	SearchTimeMS       int64
	SufficiencyReason  string
}
