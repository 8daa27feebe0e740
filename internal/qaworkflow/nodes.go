package qaworkflow

import (
	"context"

	"github.com/policyqa/policyqa/internal/errkit"
	"github.com/policyqa/policyqa/internal/llm"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sessioncache"
	"github.com/policyqa/policyqa/internal/websearch"
)

// deps bundles the collaborators every node needs. A Handler owns one deps
// value and shares it across every Chat call.
type deps struct {
	policyCache *sessioncache.PolicyContextCache
	chatCache   *sessioncache.ChatCache
	web         *websearch.Searcher
	completer   llm.Completer
}

type nodeFunc func(ctx context.Context, d *deps, s *QAState) NodeName

var graph = map[NodeName]nodeFunc{
	NodeClassifyQueryType:   nodeClassifyQueryType,
	NodeLoadCachedDocs:      nodeLoadCachedDocs,
	NodeCheckSufficiency:    nodeCheckSufficiency,
	NodeWebSearchOnly:       nodeWebSearchOnly,
	NodeWebSearchSupplement: nodeWebSearchSupplement,
	NodeAnswerDocsOnly:      nodeAnswerDocsOnly,
	NodeAnswerWebOnly:       nodeAnswerWebOnly,
	NodeAnswerHybrid:        nodeAnswerHybrid,
}

// run executes the graph starting at classify_query_type until it reaches
// NodeEnd or a node sets state.Err, per spec: a precondition failure
// short-circuits straight to END with Err populated; every other error
// kind degrades gracefully and the workflow still completes.
func run(ctx context.Context, d *deps, s *QAState) {
	node := NodeClassifyQueryType
	for node != NodeEnd {
		fn, ok := graph[node]
		if !ok {
			return
		}
		next := fn(ctx, d, s)
		if s.Err != nil {
			return
		}
		node = next
	}
}

func nodeClassifyQueryType(_ context.Context, _ *deps, s *QAState) NodeName {
	s.QueryType = ClassifyQueryType(s.CurrentQuery)
	return NodeLoadCachedDocs
}

// nodeLoadCachedDocs always runs after classification, for both query
// types: even a WEB_ONLY request needs the cached policy name to build a
// targeted search query, and an uninitialized session must fail the
// precondition check regardless of query type.
func nodeLoadCachedDocs(_ context.Context, d *deps, s *QAState) NodeName {
	pc, ok := d.policyCache.Get(s.SessionID)
	if !ok {
		s.Err = errkit.PreconditionNotInitialized(string(s.SessionID))
		return NodeEnd
	}
	info := pc.Policy
	s.PolicyInfo = &info
	s.RetrievedDocs = pc.Chunks
	s.PolicyID = pc.PolicyID

	if s.QueryType == QueryTypeWebOnly {
		return NodeWebSearchOnly
	}
	return NodeCheckSufficiency
}

func nodeCheckSufficiency(_ context.Context, _ *deps, s *QAState) NodeName {
	sufficient, reason := CheckSufficiency(s)
	s.SufficiencyReason = reason
	if sufficient {
		return NodeAnswerDocsOnly
	}
	s.NeedWebSearch = true
	return NodeWebSearchSupplement
}

func webSearchQuery(s *QAState) string {
	if s.PolicyInfo != nil && s.PolicyInfo.Name != "" {
		return s.PolicyInfo.Name + " " + s.CurrentQuery
	}
	return s.CurrentQuery
}

func nodeWebSearchOnly(ctx context.Context, d *deps, s *QAState) NodeName {
	results, err := d.web.Search(ctx, webSearchQuery(s), "")
	if err != nil {
		// Soft degrade: a web-only request whose web search fails still
		// completes, with an empty result set and no answer evidence.
		s.WebSources = nil
	} else {
		s.WebSources = results
	}
	return NodeAnswerWebOnly
}

func nodeWebSearchSupplement(ctx context.Context, d *deps, s *QAState) NodeName {
	results, err := d.web.Search(ctx, webSearchQuery(s), "")
	if err != nil {
		s.WebSources = nil
	} else {
		s.WebSources = results
	}
	if len(s.RetrievedDocs) > 0 {
		return NodeAnswerHybrid
	}
	return NodeAnswerWebOnly
}

func buildDocRefs(s *QAState) []docRef {
	out := make([]docRef, 0, len(s.RetrievedDocs))
	for _, c := range s.RetrievedDocs {
		out = append(out, docRef{docType: c.DocType, content: c.Content})
	}
	return out
}

func buildWebRefs(s *QAState) []webRef {
	out := make([]webRef, 0, len(s.WebSources))
	for _, r := range s.WebSources {
		out = append(out, webRef{title: r.Title, snippet: r.Snippet})
	}
	return out
}

func internalEvidence(s *QAState) []model.Evidence {
	out := make([]model.Evidence, 0, len(s.RetrievedDocs))
	for _, c := range s.RetrievedDocs {
		out = append(out, model.NewInternalEvidence(c.PolicyID, c.Index, c.DocType, c.Content, 1.0))
	}
	return out
}

func webEvidence(s *QAState) []model.Evidence {
	out := make([]model.Evidence, 0, len(s.WebSources))
	for _, w := range s.WebSources {
		out = append(out, model.NewWebEvidence(w.Title, w.URL, w.Snippet, w.FetchedDate, w.Score))
	}
	return out
}

// hybridEvidence lists internal entries first (matching the document
// presentation order used in the prompt, 1..N), then web entries (1..M),
// per the citation contract's numbering rule.
func hybridEvidence(s *QAState) []model.Evidence {
	return append(internalEvidence(s), webEvidence(s)...)
}

func completeOrFallback(ctx context.Context, d *deps, prompt string) (string, bool) {
	answer, err := d.completer.Complete(ctx, prompt)
	if err != nil {
		// LLM transport failure: fall back to an apology, empty evidence;
		// the workflow still completes rather than aborting the request.
		return "죄송합니다. 지금은 답변을 생성할 수 없습니다. 잠시 후 다시 시도해 주세요.", false
	}
	return answer, true
}

func nodeAnswerDocsOnly(ctx context.Context, d *deps, s *QAState) NodeName {
	prompt := docsOnlyPrompt(s.CurrentQuery, buildDocRefs(s))
	answer, ok := completeOrFallback(ctx, d, prompt)
	s.Answer = answer
	if ok {
		s.Evidence = internalEvidence(s)
	}
	return NodeEnd
}

func nodeAnswerWebOnly(ctx context.Context, d *deps, s *QAState) NodeName {
	prompt := webOnlyPrompt(s.CurrentQuery, buildWebRefs(s))
	answer, ok := completeOrFallback(ctx, d, prompt)
	s.Answer = answer
	if ok {
		s.Evidence = webEvidence(s)
	}
	return NodeEnd
}

func nodeAnswerHybrid(ctx context.Context, d *deps, s *QAState) NodeName {
	prompt := hybridPrompt(s.CurrentQuery, buildDocRefs(s), buildWebRefs(s))
	answer, ok := completeOrFallback(ctx, d, prompt)
	s.Answer = answer
	if ok {
		s.Evidence = hybridEvidence(s)
	}
	return NodeEnd
}
