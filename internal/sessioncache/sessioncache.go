// Package sessioncache implements the two session-scoped stores:
// ChatCache, a bounded FIFO of chat turns per session, and
// PolicyContextCache, a single cached PolicyContext per session. Both
// enforce a TTL via a background sweep, a safety net for clients that
// never call cleanup explicitly; per-session access is guarded by a
// single map-wide RWMutex.
package sessioncache

import (
	"sync"
	"time"

	"github.com/policyqa/policyqa/internal/model"
)

// MaxHistoryTurns bounds ChatCache: each session keeps at most
// 2*MaxHistoryTurns messages (user+assistant pairs), per spec §4.5.
const MaxHistoryTurns = 25

// DefaultTTL is the safety-net expiry applied to entries that are never
// explicitly cleared.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 5 * time.Minute

type chatEntry struct {
	turns     []model.ChatTurn
	lastTouch time.Time
}

// ChatCache is a session_id -> bounded FIFO of ChatTurn.
type ChatCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[model.SessionID]*chatEntry

	stop chan struct{}
	once sync.Once
}

// NewChatCache creates a ChatCache with the given TTL (DefaultTTL if <= 0)
// and starts its background sweep goroutine at DefaultSweepInterval.
func NewChatCache(ttl time.Duration) *ChatCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ChatCache{
		ttl:  ttl,
		m:    make(map[model.SessionID]*chatEntry),
		stop: make(chan struct{}),
	}
	go c.sweepLoop(DefaultSweepInterval)
	return c
}

// Append enqueues turn for session_id, evicting from the head until the
// history is at most 2*MaxHistoryTurns messages long.
func (c *ChatCache) Append(sessionID model.SessionID, turn model.ChatTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[sessionID]
	if !ok {
		e = &chatEntry{}
		c.m[sessionID] = e
	}
	e.turns = append(e.turns, turn)

	maxLen := 2 * MaxHistoryTurns
	if len(e.turns) > maxLen {
		e.turns = e.turns[len(e.turns)-maxLen:]
	}
	e.lastTouch = time.Now()
}

// History returns a snapshot copy of session_id's turns; callers must not
// mutate the returned slice. Returns an empty slice for an unknown
// session, never nil.
func (c *ChatCache) History(sessionID model.SessionID) []model.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.m[sessionID]
	if !ok {
		return []model.ChatTurn{}
	}
	out := make([]model.ChatTurn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Clear removes session_id's entry entirely.
func (c *ChatCache) Clear(sessionID model.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, sessionID)
}

// Close stops the background sweep goroutine.
func (c *ChatCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *ChatCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *ChatCache) sweep() {
	cutoff := time.Now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.m {
		if e.lastTouch.Before(cutoff) {
			delete(c.m, id)
		}
	}
}

type policyEntry struct {
	context   model.PolicyContext
	lastTouch time.Time
}

// PolicyContextCache is a session_id -> PolicyContext store, one entry per
// session.
type PolicyContextCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[model.SessionID]*policyEntry

	stop chan struct{}
	once sync.Once
}

// NewPolicyContextCache creates a PolicyContextCache with the given TTL
// (DefaultTTL if <= 0) and starts its background sweep.
func NewPolicyContextCache(ttl time.Duration) *PolicyContextCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &PolicyContextCache{
		ttl:  ttl,
		m:    make(map[model.SessionID]*policyEntry),
		stop: make(chan struct{}),
	}
	go c.sweepLoop(DefaultSweepInterval)
	return c
}

// Set overwrites any prior PolicyContext for session_id.
func (c *PolicyContextCache) Set(sessionID model.SessionID, ctx model.PolicyContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sessionID] = &policyEntry{context: ctx, lastTouch: time.Now()}
}

// Get returns the cached PolicyContext for session_id, or ok=false if
// absent. A miss is not an error; callers needing a context translate
// absence into errkit.PreconditionNotInitialized.
func (c *PolicyContextCache) Get(sessionID model.SessionID) (model.PolicyContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[sessionID]
	if !ok {
		return model.PolicyContext{}, false
	}
	return e.context, true
}

// Clear removes session_id's cached context.
func (c *PolicyContextCache) Clear(sessionID model.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, sessionID)
}

// Close stops the background sweep goroutine.
func (c *PolicyContextCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *PolicyContextCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *PolicyContextCache) sweep() {
	cutoff := time.Now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.m {
		if e.lastTouch.Before(cutoff) {
			delete(c.m, id)
		}
	}
}
