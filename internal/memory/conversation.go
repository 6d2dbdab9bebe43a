package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TruncationMarker is appended to any conversation message cut at the
// configured maximum length.
const TruncationMarker = " [TRUNCATED]"

// ConversationManager persists conversation turns (user prompt, agent
// response, tool traffic) to the memory store. All writes are best-effort:
// failures are logged and swallowed so they can never block a response.
type ConversationManager struct {
	store         *Store
	logger        *zap.Logger
	maxMessageLen int
}

// NewConversationManager creates a conversation manager. maxMessageLen bounds
// individual message payloads; longer messages are truncated with an explicit
// marker.
func NewConversationManager(store *Store, maxMessageLen int, logger *zap.Logger) *ConversationManager {
	if maxMessageLen <= 0 {
		maxMessageLen = 8192
	}
	return &ConversationManager{
		store:         store,
		logger:        logger,
		maxMessageLen: maxMessageLen,
	}
}

// SaveTurn persists one conversation turn as a single batched store write.
// Returns false when the write failed or identity was incomplete.
func (cm *ConversationManager) SaveTurn(ctx context.Context, actorID, sessionID string, events []ConversationEvent) bool {
	if cm == nil || cm.store == nil {
		return false
	}
	if actorID == "" || sessionID == "" {
		cm.logger.Warn("Skipping conversation persistence: incomplete identity",
			zap.String("actor_id", actorID),
			zap.String("session_id", sessionID),
		)
		return false
	}
	if len(events) == 0 {
		return true
	}

	batch := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		batch = append(batch, map[string]interface{}{
			"role":      ev.Role,
			"content":   cm.truncate(ev.Content),
			"timestamp": ts.Format(time.RFC3339),
		})
	}

	payload := map[string]interface{}{
		"kind":   "conversation_turn",
		"events": batch,
	}
	return cm.store.Save(ctx, TypeInvestigations, actorID, payload, sessionID)
}

func (cm *ConversationManager) truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) <= cm.maxMessageLen {
		return msg
	}
	return string(runes[:cm.maxMessageLen]) + TruncationMarker
}
