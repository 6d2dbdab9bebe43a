package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/kestrel-ops/kestrel/internal/activities"
	"github.com/kestrel-ops/kestrel/internal/constants"
	"github.com/kestrel-ops/kestrel/internal/metrics"
	"github.com/kestrel-ops/kestrel/internal/planner"
	"github.com/kestrel-ops/kestrel/internal/streaming"
)

const (
	// specialistTimeout is the hard wall-clock bound on one specialist run.
	specialistTimeout = 120 * time.Second

	// investigationBudget bounds the execution phase. The clock starts when
	// specialists begin running, so an approval hold does not consume it.
	// Exceeding it stops the pending step and surfaces a user-visible
	// timeout message.
	investigationBudget = 600 * time.Second

	// approvalWait bounds how long an investigation holds for a human
	// approval signal before finishing with the approval prompt.
	approvalWait = 30 * time.Minute
)

// InvestigationWorkflow drives one investigation end to end:
// Planning -> {AwaitingApproval | Executing(step)} -> Finished.
// Specialists run strictly one at a time in plan order.
func InvestigationWorkflow(ctx workflow.Context, input InvestigationInput) (InvestigationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting investigation",
		"query", input.Query,
		"user_id", input.UserID,
		"session_id", input.SessionID,
		"auto_approve", input.AutoApprove,
	)
	startedAt := workflow.Now(ctx)
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	if input.ActorID == "" {
		input.ActorID = input.UserID
	}

	status := InvestigationStatus{State: StatePlanning}
	if err := workflow.SetQueryHandler(ctx, constants.StatusQuery, func() (InvestigationStatus, error) {
		return status, nil
	}); err != nil {
		return InvestigationResult{}, fmt.Errorf("register status query: %w", err)
	}

	metrics.InvestigationsStarted.WithLabelValues("supervised").Inc()
	emitEvent(ctx, workflowID, streaming.EventInvestigationStarted, "", input.Query)

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	// Planning. A missing session ID is a caller contract violation and does
	// fail the investigation; everything else degrades inside the activities.
	var memCtx activities.FetchMemoryContextResult
	if err := workflow.ExecuteActivity(actx, constants.FetchMemoryContextActivity, activities.FetchMemoryContextInput{
		UserID:    input.UserID,
		ActorID:   input.ActorID,
		SessionID: input.SessionID,
		Query:     input.Query,
	}).Get(ctx, &memCtx); err != nil {
		logger.Error("Memory context fetch failed", "error", err)
		return InvestigationResult{}, err
	}

	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 90 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var planned activities.PlanInvestigationResult
	if err := workflow.ExecuteActivity(planCtx, constants.PlanInvestigationActivity, activities.PlanInvestigationInput{
		Query:       input.Query,
		UserID:      input.UserID,
		ActorID:     input.ActorID,
		SessionID:   input.SessionID,
		AutoApprove: input.AutoApprove,
		Context:     memCtx.Context,
	}).Get(ctx, &planned); err != nil {
		logger.Error("Planning failed", "error", err)
		return InvestigationResult{}, err
	}
	plan := planned.Plan
	status.Complexity = string(plan.Complexity)
	emitEvent(ctx, workflowID, streaming.EventPlanCreated, "",
		fmt.Sprintf("%d-step %s plan (%s)", len(plan.Steps), plan.Complexity, plan.Source))
	recordInvestigation(ctx, input, plan, StatusRunning, "", "", startedAt, nil, 0, 0)

	// Approval gate. The pending-approval turn is terminal unless an approval
	// signal arrives before the wait elapses.
	if planned.RequiresApproval {
		approved, response, err := awaitApproval(ctx, input, plan, planned.ApprovalReason, &status)
		if err != nil {
			return InvestigationResult{}, err
		}
		if !approved {
			now := workflow.Now(ctx)
			recordInvestigation(ctx, input, plan, StatusAwaitingApproval, response, "", startedAt, &now, 0, 0)
			metrics.InvestigationsCompleted.WithLabelValues("supervised", "awaiting_approval").Inc()
			return InvestigationResult{
				Response:        response,
				PendingApproval: true,
				Complexity:      string(plan.Complexity),
				PlanSource:      plan.Source,
			}, nil
		}
		emitEvent(ctx, workflowID, streaming.EventPlanApproved, "", "plan approved")
	}

	// Execution: strictly sequential specialists in plan order. The budget
	// clock starts here, not at workflow start, so time spent holding for a
	// human approval never eats into specialist time.
	deadline := workflow.Now(ctx).Add(investigationBudget)
	var (
		results       []activities.ExecuteSpecialistResult
		agentsInvoked []string
		invoked       = map[string]bool{}
		totalTokens   int
		budgetHit     bool
	)
	for i, agentID := range plan.AgentsSequence {
		if invoked[agentID] && !plan.RequiresCollaboration {
			// Safety valve: a repeating agent without declared collaboration
			// ends the investigation early rather than risk a loop.
			logger.Warn("Loop avoidance triggered, finishing early",
				"agent_id", agentID, "step", i)
			metrics.RouterLoopAversions.Inc()
			break
		}
		remaining := deadline.Sub(workflow.Now(ctx))
		if remaining <= 0 {
			budgetHit = true
			results = append(results, activities.ExecuteSpecialistResult{
				AgentID:  agentID,
				TimedOut: true,
				Response: "The investigation exceeded its overall time budget before this specialist could run.",
			})
			break
		}

		status.State = StateExecuting
		status.Step = i
		task := ""
		if i < len(plan.Steps) {
			task = plan.Steps[i]
		}
		status.RoutingReasoning = routingReasoning(plan, i)
		emitEvent(ctx, workflowID, streaming.EventAgentStarted, agentID, task)

		stepTimeout := specialistTimeout
		if remaining < stepTimeout {
			stepTimeout = remaining
		}
		stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: stepTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})

		var result activities.ExecuteSpecialistResult
		err := workflow.ExecuteActivity(stepCtx, constants.ExecuteSpecialistActivity, activities.ExecuteSpecialistInput{
			AgentID:   agentID,
			Query:     input.Query,
			Task:      task,
			StepIndex: i,
			UserID:    input.UserID,
			ActorID:   input.ActorID,
			SessionID: input.SessionID,
		}).Get(ctx, &result)
		if err != nil {
			// The activity synthesizes its own degraded results; reaching
			// here means Temporal cut it off or the worker died mid-step.
			result = degradedResult(agentID, err)
		}

		results = append(results, result)
		invoked[agentID] = true
		agentsInvoked = append(agentsInvoked, result.AgentID)
		status.AgentsInvoked = agentsInvoked
		totalTokens += result.TokensUsed

		eventType := streaming.EventAgentCompleted
		if result.TimedOut {
			eventType = streaming.EventAgentTimeout
		}
		emitEvent(ctx, workflowID, eventType, result.AgentID, "")
	}

	// Aggregation.
	status.State = StateAggregating
	emitEvent(ctx, workflowID, streaming.EventAggregationStarted, "", "")

	aggCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 90 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var aggregated activities.AggregateResult
	if err := workflow.ExecuteActivity(aggCtx, constants.AggregateResultsActivity, activities.AggregateInput{
		Query:     input.Query,
		Plan:      plan,
		Results:   results,
		UserID:    input.UserID,
		ActorID:   input.ActorID,
		SessionID: input.SessionID,
	}).Get(ctx, &aggregated); err != nil {
		logger.Error("Aggregation failed", "error", err)
		return InvestigationResult{}, err
	}

	finalizeInvestigation(ctx, input, plan, aggregated.Response, agentsInvoked, totalTokens, startedAt, budgetHit)

	status.State = StateFinished
	logger.Info("Investigation finished",
		"agents_invoked", len(agentsInvoked),
		"tokens_used", totalTokens,
		"aggregation_path", aggregated.Path,
	)
	return InvestigationResult{
		Response:      aggregated.Response,
		AgentsInvoked: agentsInvoked,
		TokensUsed:    totalTokens,
		Complexity:    string(plan.Complexity),
		PlanSource:    plan.Source,
	}, nil
}

// awaitApproval renders the approval prompt, then holds for the approval
// signal. It returns (false, prompt, nil) when the turn ends unapproved.
func awaitApproval(ctx workflow.Context, input InvestigationInput, plan planner.InvestigationPlan, reason string, status *InvestigationStatus) (bool, string, error) {
	logger := workflow.GetLogger(ctx)
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	aggCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var prompt activities.AggregateResult
	if err := workflow.ExecuteActivity(aggCtx, constants.AggregateResultsActivity, activities.AggregateInput{
		Query:           input.Query,
		Plan:            plan,
		PendingApproval: true,
		UserID:          input.UserID,
		ActorID:         input.ActorID,
		SessionID:       input.SessionID,
	}).Get(ctx, &prompt); err != nil {
		return false, "", err
	}

	updateSession(ctx, activities.UpdateSessionResultInput{
		SessionID:       input.SessionID,
		UserID:          input.UserID,
		Response:        prompt.Response,
		Plan:            plan,
		PendingApproval: true,
	})
	emitEvent(ctx, workflowID, streaming.EventAwaitingApproval, "", reason)
	logger.Info("Plan awaiting approval", "reason", reason)

	status.State = StateAwaitingApproval
	status.ApprovalPrompt = prompt.Response

	var decision ApprovalDecision
	var timedOut bool
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(workflow.GetSignalChannel(ctx, constants.ApprovalSignal), func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, &decision)
	})
	sel.AddFuture(workflow.NewTimer(ctx, approvalWait), func(workflow.Future) {
		timedOut = true
	})
	sel.Select(ctx)

	if timedOut || !decision.Approved {
		if timedOut {
			logger.Info("Approval wait elapsed, finishing with approval prompt")
		} else {
			logger.Info("Plan rejected", "feedback", decision.Feedback)
		}
		return false, prompt.Response, nil
	}
	status.ApprovalPrompt = ""
	return true, "", nil
}

// routingReasoning derives the human-readable reason the router shows for the
// upcoming step.
func routingReasoning(plan planner.InvestigationPlan, step int) string {
	next := step + 1
	if next < len(plan.Steps) && next < len(plan.AgentsSequence) {
		return fmt.Sprintf("next: %s (%s)", plan.AgentsSequence[next], plan.Steps[next])
	}
	return "final step"
}

// degradedResult converts an activity-level failure into the degraded entry
// the aggregator expects, keeping the state machine advancing.
func degradedResult(agentID string, err error) activities.ExecuteSpecialistResult {
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return activities.ExecuteSpecialistResult{
			AgentID:  agentID,
			TimedOut: true,
			Response: fmt.Sprintf("%s did not complete within the allotted time. Partial findings, if any, could not be recovered; treat this area as uninvestigated.", agentID),
		}
	}
	return activities.ExecuteSpecialistResult{
		AgentID:  agentID,
		Failed:   true,
		Response: fmt.Sprintf("Error: %s failed: %v", agentID, err),
	}
}

// finalizeInvestigation runs the best-effort tail: summary memory write,
// session update, persistence, completion event, metrics.
func finalizeInvestigation(ctx workflow.Context, input InvestigationInput, plan planner.InvestigationPlan, response string, agentsInvoked []string, tokens int, startedAt time.Time, budgetHit bool) {
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	tailCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(tailCtx, constants.StoreInvestigationSummaryActivity, activities.StoreSummaryInput{
		Query:         input.Query,
		FinalResponse: response,
		AgentIDs:      agentsInvoked,
		UserID:        input.UserID,
		ActorID:       input.ActorID,
		SessionID:     input.SessionID,
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Summary store failed", "error", err)
	}

	updateSession(ctx, activities.UpdateSessionResultInput{
		SessionID:     input.SessionID,
		UserID:        input.UserID,
		Response:      response,
		Plan:          plan,
		AgentsInvoked: agentsInvoked,
	})

	finalStatus := StatusCompleted
	if budgetHit {
		finalStatus = StatusTimedOut
	}
	now := workflow.Now(ctx)
	recordInvestigation(ctx, input, plan, finalStatus, response, "", startedAt, &now, tokens, len(agentsInvoked))
	emitEvent(ctx, workflowID, streaming.EventInvestigationCompleted, "", finalStatus)

	metrics.RecordInvestigationMetrics("supervised", finalStatus, now.Sub(startedAt).Seconds())
}

// updateSession writes the response and plan metadata back to the session,
// best-effort.
func updateSession(ctx workflow.Context, input activities.UpdateSessionResultInput) {
	uctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(uctx, constants.UpdateSessionResultActivity, input).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Session update failed",
			"session_id", input.SessionID, "error", err)
	}
}

// recordInvestigation persists the investigation row fire-and-forget on a
// disconnected context so persistence never blocks the user-facing path.
func recordInvestigation(ctx workflow.Context, input InvestigationInput, plan planner.InvestigationPlan, status, result, errMsg string, startedAt time.Time, completedAt *time.Time, tokens, agents int) {
	detached, _ := workflow.NewDisconnectedContext(ctx)
	dctx := workflow.WithActivityOptions(detached, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	workflow.ExecuteActivity(dctx, constants.RecordInvestigationActivity, activities.RecordInvestigationInput{
		WorkflowID:  workflow.GetInfo(ctx).WorkflowExecution.ID,
		UserID:      input.UserID,
		SessionID:   input.SessionID,
		Query:       input.Query,
		Complexity:  string(plan.Complexity),
		PlanSource:  plan.Source,
		Status:      status,
		Result:      result,
		Error:       errMsg,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		TokensUsed:  tokens,
		AgentsUsed:  agents,
	})
}

// emitEvent publishes one streaming event fire-and-forget.
func emitEvent(ctx workflow.Context, investigationID, eventType, agentID, message string) {
	detached, _ := workflow.NewDisconnectedContext(ctx)
	dctx := workflow.WithActivityOptions(detached, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	workflow.ExecuteActivity(dctx, constants.EmitInvestigationEventActivity, activities.EmitEventInput{
		InvestigationID: investigationID,
		Type:            eventType,
		AgentID:         agentID,
		Message:         message,
	})
}
