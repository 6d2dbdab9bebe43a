package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/session"
)

// UpdateSessionResult writes the final response and plan metadata back to the
// session so a follow-up turn (including approval re-invocation) sees them.
func (a *Activities) UpdateSessionResult(ctx context.Context, input UpdateSessionResultInput) error {
	sess, err := a.sessions.Get(ctx, input.SessionID)
	if err != nil {
		// Session expiry mid-investigation is not worth failing the
		// investigation over.
		a.logger.Warn("Session unavailable for result update",
			zap.String("session_id", input.SessionID),
			zap.Error(err),
		)
		return nil
	}

	sess.SetMetadata(session.MetaInvestigationPlan, input.Plan)
	sess.SetMetadata(session.MetaPlanPendingApproval, input.PendingApproval)
	sess.SetMetadata(session.MetaPlanStep, len(input.AgentsInvoked))

	if err := a.sessions.Update(ctx, sess); err != nil {
		a.logger.Warn("Session metadata update failed", zap.Error(err))
		return nil
	}

	if input.Response != "" {
		if err := a.sessions.AddMessage(ctx, input.SessionID, session.Message{
			Role:    "assistant",
			Content: input.Response,
		}); err != nil {
			a.logger.Warn("Session history append failed", zap.Error(err))
		}
	}
	return nil
}
