package workflows

// InvestigationInput starts one investigation.
type InvestigationInput struct {
	Query       string `json:"query"`
	UserID      string `json:"user_id"`
	ActorID     string `json:"actor_id"`
	SessionID   string `json:"session_id"`
	AutoApprove bool   `json:"auto_approve"`
}

// InvestigationResult is the workflow's final answer.
type InvestigationResult struct {
	Response        string   `json:"response"`
	PendingApproval bool     `json:"pending_approval"`
	AgentsInvoked   []string `json:"agents_invoked"`
	TokensUsed      int      `json:"tokens_used"`
	Complexity      string   `json:"complexity"`
	PlanSource      string   `json:"plan_source"`
}

// ApprovalDecision is the payload of the plan-approval signal.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Router states surfaced by the status query.
const (
	StatePlanning         = "planning"
	StateAwaitingApproval = "awaiting_approval"
	StateExecuting        = "executing"
	StateAggregating      = "aggregating"
	StateFinished         = "finished"
)

// Persisted investigation statuses, matching the database model.
const (
	StatusRunning          = "running"
	StatusAwaitingApproval = "awaiting_approval"
	StatusCompleted        = "completed"
	StatusTimedOut         = "timed_out"
)

// InvestigationStatus answers the status query while the workflow runs.
// ApprovalPrompt carries the rendered approval text while the workflow holds
// for a decision, so callers can surface it without waiting the hold out.
type InvestigationStatus struct {
	State            string   `json:"state"`
	Step             int      `json:"step"`
	Complexity       string   `json:"complexity"`
	AgentsInvoked    []string `json:"agents_invoked"`
	RoutingReasoning string   `json:"routing_reasoning,omitempty"`
	ApprovalPrompt   string   `json:"approval_prompt,omitempty"`
}
