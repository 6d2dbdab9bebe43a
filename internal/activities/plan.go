package activities

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/metrics"
	"github.com/kestrel-ops/kestrel/internal/policy"
)

// PlanInvestigation produces the investigation plan and runs it through the
// approval policy. It never fails: planning errors resolve to the fallback
// plan, and a policy error falls back to the default complexity gate.
func (a *Activities) PlanInvestigation(ctx context.Context, input PlanInvestigationInput) (PlanInvestigationResult, error) {
	plan := a.planner.CreatePlan(ctx, input.Query, &input.Context)

	result := PlanInvestigationResult{Plan: *plan}
	decision, err := a.policy.Evaluate(ctx, &policy.PlanInput{
		UserID:         input.UserID,
		SessionID:      input.SessionID,
		Query:          input.Query,
		Complexity:     string(plan.Complexity),
		AutoExecute:    plan.AutoExecute,
		AutoApprove:    input.AutoApprove,
		AgentsSequence: plan.AgentsSequence,
	})
	if err != nil {
		a.logger.Warn("Plan policy evaluation failed, using complexity gate", zap.Error(err))
		metrics.ApprovalDecisions.WithLabelValues("error").Inc()
		result.RequiresApproval = plan.RequiresApproval(input.AutoApprove)
		result.ApprovalReason = "policy unavailable, default complexity gate"
	} else {
		result.RequiresApproval = decision.RequireApproval
		result.ApprovalReason = decision.Reason
		if decision.RequireApproval {
			metrics.ApprovalDecisions.WithLabelValues("require_approval").Inc()
		} else {
			metrics.ApprovalDecisions.WithLabelValues("auto_approve").Inc()
		}
	}
	if result.RequiresApproval {
		metrics.PlansAwaitingApproval.Inc()
	}

	// Persist the query and rendered plan as a conversation turn, best-effort.
	if a.conversation != nil && input.UserID != "" && input.SessionID != "" {
		now := time.Now()
		a.conversation.SaveTurn(ctx, input.ActorID, input.SessionID, []memory.ConversationEvent{
			{Role: "user", Content: input.Query, Timestamp: now},
			{Role: "assistant", Content: renderPlanText(&result), Timestamp: now},
		})
	}

	return result, nil
}

func renderPlanText(result *PlanInvestigationResult) string {
	var sb strings.Builder
	sb.WriteString("Investigation plan (")
	sb.WriteString(string(result.Plan.Complexity))
	sb.WriteString("):")
	for i, step := range result.Plan.Steps {
		sb.WriteString("\n")
		if len(result.Plan.AgentsSequence) > 0 {
			sb.WriteString(result.Plan.AgentsSequence[min(i, len(result.Plan.AgentsSequence)-1)])
			sb.WriteString(": ")
		}
		sb.WriteString(step)
	}
	return sb.String()
}
