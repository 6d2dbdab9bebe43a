package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")
)

// Metadata keys the orchestrator stores on a session.
const (
	MetaInvestigationPlan  = "investigation_plan"
	MetaPlanStep           = "plan_step"
	MetaRoutingReasoning   = "routing_reasoning"
	MetaPlanPendingApproval = "plan_pending_approval"
	MetaPlanApproved       = "plan_approved"
)

// Session carries one user's investigation context across turns. UserID and
// the initial SessionID are fixed at creation; SessionID only changes via
// rotation on an explicit save-report action.
type Session struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	ActorID   string                 `json:"actor_id"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Metadata  map[string]interface{} `json:"metadata"`
	History   []Message              `json:"history"`

	// RotatedFrom records the previous session ID after a save-report rotation.
	RotatedFrom string `json:"rotated_from,omitempty"`
}

// Message is one entry in the session conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// GetMetadata retrieves a metadata value.
func (s *Session) GetMetadata(key string) (interface{}, bool) {
	if s.Metadata == nil {
		return nil, false
	}
	val, ok := s.Metadata[key]
	return val, ok
}

// SetMetadata sets a metadata value.
func (s *Session) SetMetadata(key string, value interface{}) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}
