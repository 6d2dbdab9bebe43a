package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/planner"
)

// FetchMemoryContext assembles the planner's memory snapshot: preferences for
// the user, plus infrastructure knowledge and past investigations across all
// of the actor's sessions.
//
// A missing session ID is a caller contract violation and fails the activity;
// planning-time retrieval must be explicit about session scope. Store
// failures, by contrast, degrade every category to empty.
func (a *Activities) FetchMemoryContext(ctx context.Context, input FetchMemoryContextInput) (FetchMemoryContextResult, error) {
	if input.SessionID == "" {
		return FetchMemoryContextResult{}, fmt.Errorf("session_id is required for memory context retrieval")
	}
	if input.ActorID == "" {
		input.ActorID = input.UserID
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = a.maxMemoryResults
	}

	memCtx := planner.MemoryContext{
		Preferences: a.memoryStore.Retrieve(ctx, memory.TypePreferences,
			input.UserID, input.Query, maxResults, ""),
		Infrastructure: a.memoryStore.Retrieve(ctx, memory.TypeInfrastructure,
			input.ActorID, input.Query, maxResults, ""),
		PastInvestigations: a.memoryStore.Retrieve(ctx, memory.TypeInvestigations,
			input.ActorID, input.Query, maxResults, ""),
	}

	a.logger.Debug("Fetched memory context",
		zap.String("session_id", input.SessionID),
		zap.Int("preferences", len(memCtx.Preferences)),
		zap.Int("infrastructure", len(memCtx.Infrastructure)),
		zap.Int("past_investigations", len(memCtx.PastInvestigations)),
	)
	return FetchMemoryContextResult{Context: memCtx}, nil
}
