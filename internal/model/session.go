package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SessionID is an opaque, UUID-shaped identifier for a conversation.
type SessionID string

var sessionIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{8,64}$`)

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// ValidateSessionID reports whether s looks like a UUID-shaped identifier.
func ValidateSessionID(s SessionID) error {
	if s == "" || !sessionIDPattern.MatchString(string(s)) {
		return fmt.Errorf("invalid session id %q: must be a non-empty UUID-shaped string", s)
	}
	return nil
}

// PolicyContext is the per-session materialized view created by init-policy.
type PolicyContext struct {
	PolicyID  int64
	Policy    PolicyRecord
	Chunks    []DocumentChunk
	CachedAt  time.Time
}

// Role distinguishes user and assistant chat turns.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message in a session's conversation. Evidence is only
// populated for assistant turns and is frozen at answer time.
type ChatTurn struct {
	Role     Role
	Content  string
	Evidence []Evidence
}
