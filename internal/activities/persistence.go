package activities

import (
	"context"

	"github.com/kestrel-ops/kestrel/internal/db"
	"github.com/kestrel-ops/kestrel/internal/streaming"
)

// RecordInvestigation upserts the investigation row. The database is
// optional; without one the activity is a no-op.
func (a *Activities) RecordInvestigation(ctx context.Context, input RecordInvestigationInput) error {
	if a.db == nil {
		return nil
	}

	inv := &db.Investigation{
		WorkflowID: input.WorkflowID,
		UserID:     input.UserID,
		SessionID:  input.SessionID,
		Query:      input.Query,
		Complexity: input.Complexity,
		PlanSource: input.PlanSource,
		Status:     input.Status,
		StartedAt:  input.StartedAt,
		CompletedAt: input.CompletedAt,
	}
	if input.Result != "" {
		inv.Result = &input.Result
	}
	if input.Error != "" {
		inv.ErrorMessage = &input.Error
	}
	if input.TokensUsed > 0 || input.AgentsUsed > 0 {
		inv.Metrics = db.JSONB{
			"tokens_used": input.TokensUsed,
			"agents_used": input.AgentsUsed,
		}
	}
	return a.db.SaveInvestigation(ctx, inv)
}

// EmitInvestigationEvent publishes one event to the investigation's stream.
func (a *Activities) EmitInvestigationEvent(ctx context.Context, input EmitEventInput) error {
	if a.streams == nil {
		return nil
	}
	a.streams.Publish(input.InvestigationID, streaming.Event{
		Type:    input.Type,
		AgentID: input.AgentID,
		Message: input.Message,
	})
	return nil
}
