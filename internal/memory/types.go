package memory

import (
	"encoding/json"
	"errors"
	"time"
)

// Type identifies a memory category. The category determines the namespace
// shape and whether a session identifier participates in it.
type Type string

const (
	// TypePreferences holds user preferences. Scoped to the actor only;
	// session identifiers are always ignored.
	TypePreferences Type = "preferences"

	// TypeInfrastructure holds learned infrastructure knowledge. Scoped to
	// (actor, session), or actor alone for cross-session search.
	TypeInfrastructure Type = "infrastructure"

	// TypeInvestigations holds past investigation summaries. Same scoping
	// rules as infrastructure.
	TypeInvestigations Type = "investigations"
)

var (
	ErrActorRequired   = errors.New("actor id is required")
	ErrSessionRequired = errors.New("session id is required for this memory type")
	ErrUnknownType     = errors.New("unknown memory type")
)

// Record is one stored memory event. Records are append-only: they are never
// updated in place.
type Record struct {
	ID        string                 `json:"id"`
	Namespace string                 `json:"namespace"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// Text renders the payload for inclusion in a prompt. Well-known content
// keys are preferred; anything else falls back to compact JSON.
func (r Record) Text() string {
	for _, key := range []string{"content", "text", "summary"} {
		if v, ok := r.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// ConversationEvent is one turn element persisted by the conversation manager.
type ConversationEvent struct {
	Role      string    `json:"role"` // user, assistant, tool_call, tool_response
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
