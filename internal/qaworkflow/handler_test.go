package qaworkflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/errkit"
	"github.com/policyqa/policyqa/internal/llm"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sessioncache"
	"github.com/policyqa/policyqa/internal/websearch"
)

type fakeRelational struct {
	records map[int64]model.PolicyRecord
}

func (f *fakeRelational) LookupPolicies(_ context.Context, ids []int64) (map[int64]model.PolicyRecord, error) {
	out := make(map[int64]model.PolicyRecord)
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type fakeVectorStore struct {
	chunks []adapters.ScrolledChunk
}

func (f *fakeVectorStore) DenseSearch(context.Context, []float32, int, adapters.ScrollFilter, float64) ([]adapters.DenseHit, error) {
	return nil, nil
}

func (f *fakeVectorStore) Scroll(_ context.Context, filter adapters.ScrollFilter, limit int) ([]adapters.ScrolledChunk, error) {
	out := make([]adapters.ScrolledChunk, 0)
	for _, c := range f.chunks {
		if !filter.Match(c.PolicyID, c.DocType) {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestHandler(t *testing.T, chunkCount int, webCanned map[string][]websearch.Result) *Handler {
	t.Helper()
	chunks := make([]adapters.ScrolledChunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		chunks = append(chunks, adapters.ScrolledChunk{
			ChunkID: "c" + string(rune('0'+i)), PolicyID: 507, ChunkIndex: i,
			Content: "지원금 내용 " + string(rune('0'+i)), DocType: "overview",
		})
	}
	relational := &fakeRelational{records: map[int64]model.PolicyRecord{
		507: {ID: 507, Name: "청년창업지원금"},
	}}
	vector := &fakeVectorStore{chunks: chunks}
	provider := websearch.NewFakeProvider()
	if webCanned != nil {
		provider.Canned = webCanned
	}
	searcher := websearch.New(provider, 0, 0)
	policyCache := sessioncache.NewPolicyContextCache(sessioncache.DefaultTTL)
	chatCache := sessioncache.NewChatCache(sessioncache.DefaultTTL)
	t.Cleanup(func() { policyCache.Close(); chatCache.Close() })

	return NewHandler(relational, vector, searcher, llm.TemplateCompleter{}, policyCache, chatCache)
}

// Scenario 1: docs-only answer, sufficient cached context.
func TestHandler_Chat_DocsOnlyAnswer(t *testing.T) {
	h := newTestHandler(t, 5, nil)
	sid := model.NewSessionID()
	require.NoError(t, h.InitPolicy(context.Background(), sid, 507))

	result, err := h.Chat(context.Background(), sid, "지원 금액은 얼마야?")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
	assert.Len(t, result.Evidence, 5)
	for _, e := range result.Evidence {
		assert.Equal(t, model.EvidenceInternal, e.Type)
	}
}

// Scenario 2: a web-only (link request) query never touches cached docs.
func TestHandler_Chat_WebOnlyLinkRequest(t *testing.T) {
	webResult := []websearch.Result{{Title: "청년창업지원금 신청", URL: "https://example.gov/apply", Snippet: "신청 링크"}}
	h := newTestHandler(t, 5, map[string][]websearch.Result{
		"청년창업지원금 신청 링크 알려줘": webResult,
	})
	sid := model.NewSessionID()
	require.NoError(t, h.InitPolicy(context.Background(), sid, 507))

	result, err := h.Chat(context.Background(), sid, "신청 링크 알려줘")

	require.NoError(t, err)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, model.EvidenceWeb, result.Evidence[0].Type)
	assert.Equal(t, "https://example.gov/apply", result.Evidence[0].URL)
}

// Scenario 3: a homepage-style query that wasn't caught by classify_query_type
// triggers insufficiency and produces a hybrid answer mixing both evidence
// kinds, internal entries first.
func TestHandler_Chat_HybridAnswerOnHomepageGap(t *testing.T) {
	webResult := []websearch.Result{{Title: "공식 홈페이지", URL: "https://example.gov", Snippet: "홈페이지 주소"}}
	h := newTestHandler(t, 1, map[string][]websearch.Result{
		"청년창업지원금 홈페이지 주소는?": webResult,
	})
	sid := model.NewSessionID()
	require.NoError(t, h.InitPolicy(context.Background(), sid, 507))

	result, err := h.Chat(context.Background(), sid, "홈페이지 주소는?")

	require.NoError(t, err)
	require.Len(t, result.Evidence, 2)
	assert.Equal(t, model.EvidenceInternal, result.Evidence[0].Type)
	assert.Equal(t, model.EvidenceWeb, result.Evidence[1].Type)
}

// Scenario 4: chatting before init-policy fails with a precondition error.
func TestHandler_Chat_PreconditionFailsWithoutInit(t *testing.T) {
	h := newTestHandler(t, 5, nil)
	sid := model.NewSessionID()

	_, err := h.Chat(context.Background(), sid, "지원 금액은 얼마야?")

	require.Error(t, err)
	assert.Equal(t, errkit.KindPrecondition, errkit.KindOf(err))
}

// Scenario 5: cleanup clears both caches, so a subsequent chat fails the
// precondition check again, and cleanup itself is idempotent.
func TestHandler_Cleanup_ClearsCachesAndIsIdempotent(t *testing.T) {
	h := newTestHandler(t, 5, nil)
	sid := model.NewSessionID()
	require.NoError(t, h.InitPolicy(context.Background(), sid, 507))
	_, err := h.Chat(context.Background(), sid, "지원 금액은 얼마야?")
	require.NoError(t, err)

	h.Cleanup(sid)
	h.Cleanup(sid) // idempotent

	_, err = h.Chat(context.Background(), sid, "지원 금액은 얼마야?")
	require.Error(t, err)
	assert.Equal(t, errkit.KindPrecondition, errkit.KindOf(err))
}

var _ adapters.RelationalStore = (*fakeRelational)(nil)
var _ adapters.VectorStore = (*fakeVectorStore)(nil)
