package sessioncache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyqa/policyqa/internal/model"
)

// TS01: history is bounded to 2*MaxHistoryTurns messages, evicting from
// the head.
func TestChatCache_Append_BoundsHistoryLength(t *testing.T) {
	// Given: an empty chat cache
	c := NewChatCache(DefaultTTL)
	defer c.Close()
	sid := model.NewSessionID()

	// When: more than the cap worth of turns are appended
	limit := 2 * MaxHistoryTurns
	for i := 0; i < limit+10; i++ {
		c.Append(sid, model.ChatTurn{Role: model.RoleUser, Content: "turn"})
	}

	// Then: history never exceeds the cap
	assert.Len(t, c.History(sid), limit)
}

// TS02: History on an unknown session returns an empty, non-nil slice.
func TestChatCache_History_UnknownSessionIsEmpty(t *testing.T) {
	c := NewChatCache(DefaultTTL)
	defer c.Close()

	history := c.History(model.NewSessionID())
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

// TS03: Clear removes the entry entirely.
func TestChatCache_Clear_RemovesEntry(t *testing.T) {
	c := NewChatCache(DefaultTTL)
	defer c.Close()
	sid := model.NewSessionID()
	c.Append(sid, model.ChatTurn{Role: model.RoleUser, Content: "hi"})
	require.Len(t, c.History(sid), 1)

	c.Clear(sid)

	assert.Empty(t, c.History(sid))
}

// TS04: History returns a copy; mutating it does not affect the cache.
func TestChatCache_History_ReturnsIndependentCopy(t *testing.T) {
	c := NewChatCache(DefaultTTL)
	defer c.Close()
	sid := model.NewSessionID()
	c.Append(sid, model.ChatTurn{Role: model.RoleUser, Content: "original"})

	snapshot := c.History(sid)
	snapshot[0].Content = "mutated"

	assert.Equal(t, "original", c.History(sid)[0].Content)
}

// TS05: PolicyContextCache set/get/clear round-trip.
func TestPolicyContextCache_SetGetClear(t *testing.T) {
	c := NewPolicyContextCache(DefaultTTL)
	defer c.Close()
	sid := model.NewSessionID()

	_, ok := c.Get(sid)
	assert.False(t, ok)

	c.Set(sid, model.PolicyContext{PolicyID: 42})
	got, ok := c.Get(sid)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.PolicyID)

	c.Clear(sid)
	_, ok = c.Get(sid)
	assert.False(t, ok)
}

// TS06: Set overwrites a prior entry for the same session.
func TestPolicyContextCache_Set_Overwrites(t *testing.T) {
	c := NewPolicyContextCache(DefaultTTL)
	defer c.Close()
	sid := model.NewSessionID()

	c.Set(sid, model.PolicyContext{PolicyID: 1})
	c.Set(sid, model.PolicyContext{PolicyID: 2})

	got, ok := c.Get(sid)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.PolicyID)
}

// TS07: entries older than TTL are swept by the background sweep.
func TestPolicyContextCache_Sweep_EvictsExpiredEntries(t *testing.T) {
	// Given: a cache with a tiny TTL whose sweep we trigger directly
	// rather than waiting on the real 5-minute ticker.
	c := NewPolicyContextCache(time.Millisecond)
	defer c.Close()
	sid := model.NewSessionID()
	c.Set(sid, model.PolicyContext{PolicyID: 7})

	time.Sleep(5 * time.Millisecond)
	c.sweep()

	_, ok := c.Get(sid)
	assert.False(t, ok)
}
