package qaworkflow

import (
	"context"
	"time"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/errkit"
	"github.com/policyqa/policyqa/internal/llm"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/sessioncache"
	"github.com/policyqa/policyqa/internal/websearch"
)

// Handler is the transport-agnostic entry point for the QA workflow:
// init-policy, chat, and cleanup. It is safe for concurrent use by
// multiple sessions; per-session state lives entirely in the two caches it
// owns, not in the Handler itself.
type Handler struct {
	d *deps

	relational adapters.RelationalStore
	vector     adapters.VectorStore
}

// NewHandler constructs a Handler. completer and webSearcher may be
// llm.TemplateCompleter{} / a websearch.Searcher wrapping
// websearch.NewFakeProvider() for offline/test use.
func NewHandler(relational adapters.RelationalStore, vector adapters.VectorStore, webSearcher *websearch.Searcher, completer llm.Completer, policyCache *sessioncache.PolicyContextCache, chatCache *sessioncache.ChatCache) *Handler {
	return &Handler{
		d: &deps{
			policyCache: policyCache,
			chatCache:   chatCache,
			web:         webSearcher,
			completer:   completer,
		},
		relational: relational,
		vector:     vector,
	}
}

// ChatResult is what Chat returns to its caller.
type ChatResult struct {
	Answer   string
	Evidence []model.Evidence
}

// InitPolicy materializes session_id's PolicyContext from the relational
// and vector stores and caches it. It is idempotent: calling it again for
// the same session overwrites the prior context.
func (h *Handler) InitPolicy(ctx context.Context, sessionID model.SessionID, policyID int64) error {
	records, err := h.relational.LookupPolicies(ctx, []int64{policyID})
	if err != nil {
		return errkit.TransportMetadataStore(err)
	}
	record, ok := records[policyID]
	if !ok {
		return errkit.NotFoundPolicy(policyID)
	}

	scrolled, err := h.vector.Scroll(ctx, adapters.ScrollFilter{PolicyID: policyID}, 0)
	if err != nil {
		return errkit.TransportVectorStore(err)
	}
	chunks := make([]model.DocumentChunk, 0, len(scrolled))
	for _, c := range scrolled {
		chunks = append(chunks, model.DocumentChunk{
			ID:       c.ChunkID,
			PolicyID: c.PolicyID,
			Index:    c.ChunkIndex,
			Content:  c.Content,
			DocType:  c.DocType,
		})
	}

	h.d.policyCache.Set(sessionID, model.PolicyContext{
		PolicyID: policyID,
		Policy:   record,
		Chunks:   chunks,
		CachedAt: time.Now(),
	})
	return nil
}

// Chat runs the QA workflow graph for one turn and appends both the user
// query and the resulting assistant answer to the session's chat history.
func (h *Handler) Chat(ctx context.Context, sessionID model.SessionID, query string) (ChatResult, error) {
	history := h.d.chatCache.History(sessionID)

	state := &QAState{
		SessionID:    sessionID,
		CurrentQuery: query,
		Messages:     history,
	}
	run(ctx, h.d, state)

	h.d.chatCache.Append(sessionID, model.ChatTurn{Role: model.RoleUser, Content: query})

	if state.Err != nil {
		return ChatResult{}, state.Err
	}

	h.d.chatCache.Append(sessionID, model.ChatTurn{
		Role:     model.RoleAssistant,
		Content:  state.Answer,
		Evidence: state.Evidence,
	})
	return ChatResult{Answer: state.Answer, Evidence: state.Evidence}, nil
}

// Cleanup clears session_id's policy context and chat history. Safe to
// call on a session that was never initialized, or more than once.
func (h *Handler) Cleanup(sessionID model.SessionID) {
	h.d.policyCache.Clear(sessionID)
	h.d.chatCache.Clear(sessionID)
}
