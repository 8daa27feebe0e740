package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/hybrid"
	"github.com/policyqa/policyqa/internal/llm"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/qaworkflow"
	"github.com/policyqa/policyqa/internal/searchworkflow"
	"github.com/policyqa/policyqa/internal/sessioncache"
	"github.com/policyqa/policyqa/internal/sparseindex"
	"github.com/policyqa/policyqa/internal/websearch"
	"github.com/policyqa/policyqa/internal/config"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	relational := &fakeRelational{records: map[int64]model.PolicyRecord{
		507: {ID: 507, Name: "청년창업지원금"},
	}}
	vector := &fakeVectorStore{chunks: []adapters.ScrolledChunk{
		{ChunkID: "c0", PolicyID: 507, Content: "지원금 개요", DocType: "overview"},
		{ChunkID: "c1", PolicyID: 507, Content: "지원 대상", DocType: "overview"},
		{ChunkID: "c2", PolicyID: 507, Content: "지원 금액", DocType: "overview"},
	}}
	webSearcher := websearch.New(websearch.NewFakeProvider(), 0, 0)
	policyCache := sessioncache.NewPolicyContextCache(sessioncache.DefaultTTL)
	chatCache := sessioncache.NewChatCache(sessioncache.DefaultTTL)
	t.Cleanup(func() { policyCache.Close(); chatCache.Close() })

	qa := qaworkflow.NewHandler(relational, vector, webSearcher, llm.TemplateCompleter{}, policyCache, chatCache)
	searcher := hybrid.New(vector, sparseindex.New(), nil, hybrid.DefaultConfig())
	search := searchworkflow.NewHandler(searcher, webSearcher, config.Default())

	return NewServer(qa, search)
}

func TestServer_InitPolicyThenChat_Succeeds(t *testing.T) {
	s := newTestServer(t)
	sid := string(model.NewSessionID())

	_, initOut, err := s.handleInitPolicy(context.Background(), nil, InitPolicyInput{SessionID: sid, PolicyID: 507})
	require.NoError(t, err)
	assert.True(t, initOut.OK)

	_, chatOut, err := s.handleChat(context.Background(), nil, ChatInput{SessionID: sid, Query: "지원 금액은 얼마야?"})
	require.NoError(t, err)
	assert.NotEmpty(t, chatOut.Answer)
}

func TestServer_Chat_RejectsMalformedSessionID(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleChat(context.Background(), nil, ChatInput{SessionID: "not-a-uuid!", Query: "hi"})

	require.Error(t, err)
	var me *mcpError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, codeInvalidParams, me.Code)
}

func TestServer_Cleanup_IsIdempotent(t *testing.T) {
	s := newTestServer(t)
	sid := string(model.NewSessionID())
	_, _, err := s.handleInitPolicy(context.Background(), nil, InitPolicyInput{SessionID: sid, PolicyID: 507})
	require.NoError(t, err)

	_, out1, err := s.handleCleanup(context.Background(), nil, CleanupInput{SessionID: sid})
	require.NoError(t, err)
	assert.True(t, out1.OK)

	_, out2, err := s.handleCleanup(context.Background(), nil, CleanupInput{SessionID: sid})
	require.NoError(t, err)
	assert.True(t, out2.OK)
}

func TestServer_SearchPolicies_ReturnsSummary(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleSearchPolicies(context.Background(), nil, SearchPoliciesInput{Query: "지원금"})

	require.NoError(t, err)
	assert.NotEmpty(t, out.Summary)
}
