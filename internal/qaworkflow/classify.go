package qaworkflow

import "strings"

// webOnlyLexicon routes a query straight to the web-only branch: these are
// requests for a link/URL/procedure rather than a policy-content question.
// Deliberately excludes homepage/address phrasing ("홈페이지", "주소") — those
// are policy-content questions that happen to want a URL value, and are
// instead caught by check_sufficiency's own homepage-style detector once
// the cached docs turn out not to contain one.
var webOnlyLexicon = []string{
	"link", "url", "where to apply", "how to apply",
	"링크", "신청 링크", "신청 방법",
}

// ClassifyQueryType implements the classify_query_type node: a pure,
// deterministic lexicon match over the current query. Unmatched queries
// default to QueryTypePolicyQA.
func ClassifyQueryType(query string) QueryType {
	lower := strings.ToLower(query)
	for _, kw := range webOnlyLexicon {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return QueryTypeWebOnly
		}
	}
	return QueryTypePolicyQA
}

// homepageLexicon flags a policy-QA query that is actually asking for a
// homepage/URL value the cached chunks may not contain.
var homepageLexicon = []string{"홈페이지", "homepage", "주소", "url", "site"}

func looksLikeHomepageQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range homepageLexicon {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MinSufficientDocs is the minimum retrieved-document count check_sufficiency
// requires before treating the cached context as sufficient on its own.
const MinSufficientDocs = 3

// CheckSufficiency implements the check_sufficiency node: reports whether
// the cached policy context is sufficient to answer current_query without
// a web search, and why not when it isn't.
func CheckSufficiency(state *QAState) (sufficient bool, reason string) {
	if len(state.RetrievedDocs) == 0 {
		return false, "no_cached_documents"
	}
	if state.PolicyInfo == nil {
		return false, "no_policy_info"
	}
	if looksLikeHomepageQuery(state.CurrentQuery) {
		return false, "homepage_like_query"
	}
	if len(state.RetrievedDocs) < MinSufficientDocs {
		return false, "insufficient_document_count"
	}
	return true, ""
}
