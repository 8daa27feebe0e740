// Package qaworkflow implements the question-answering workflow: a
// finite-state orchestrator over a per-request QAState value. Nodes are
// pure with respect to the state they're given; the node graph itself is
// data (a table from node name to its implementing function, which
// returns the name of the next node), generalizing a single hand-wired
// classifier pipeline into an explicit, inspectable state machine.
package qaworkflow

import (
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/websearch"
)

// QueryType is the outcome of classify_query_type.
type QueryType string

const (
	QueryTypePolicyQA QueryType = "POLICY_QA"
	QueryTypeWebOnly  QueryType = "WEB_ONLY"
)

// QAState is the request-local value threaded through every node.
type QAState struct {
	SessionID    model.SessionID
	PolicyID     int64
	CurrentQuery string
	Messages     []model.ChatTurn // history snapshot, read-only

	QueryType     QueryType
	PolicyInfo    *model.PolicyRecord
	RetrievedDocs []model.DocumentChunk
	WebSources    []websearch.Result

	Answer        string
	Evidence      []model.Evidence
	NeedWebSearch bool

	SufficiencyReason string
	Err               error
}

// NodeName identifies one node in the QA workflow graph.
type NodeName string

const (
	NodeClassifyQueryType  NodeName = "classify_query_type"
	NodeLoadCachedDocs     NodeName = "load_cached_docs"
	NodeCheckSufficiency   NodeName = "check_sufficiency"
	NodeWebSearchOnly      NodeName = "web_search_only"
	NodeWebSearchSupplement NodeName = "web_search_supplement"
	NodeAnswerDocsOnly     NodeName = "answer_docs_only"
	NodeAnswerWebOnly      NodeName = "answer_web_only"
	NodeAnswerHybrid       NodeName = "answer_hybrid"
	NodeEnd                NodeName = "end"
)
