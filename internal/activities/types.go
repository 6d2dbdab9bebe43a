package activities

import (
	"time"

	"github.com/kestrel-ops/kestrel/internal/planner"
)

// TraceEvent is one raw tool-call or tool-response event from a specialist's
// loop, kept for debugging and formatting, not for routing decisions.
type TraceEvent struct {
	Kind      string    `json:"kind"` // assistant, tool_call, tool_response
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FetchMemoryContextInput requests the planner's memory snapshot.
type FetchMemoryContextInput struct {
	UserID     string `json:"user_id"`
	ActorID    string `json:"actor_id"`
	SessionID  string `json:"session_id"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// FetchMemoryContextResult carries the retrieved context. Empty categories
// mean "no information", never an error.
type FetchMemoryContextResult struct {
	Context planner.MemoryContext `json:"context"`
}

// PlanInvestigationInput asks for one investigation plan.
type PlanInvestigationInput struct {
	Query       string                `json:"query"`
	UserID      string                `json:"user_id"`
	ActorID     string                `json:"actor_id"`
	SessionID   string                `json:"session_id"`
	AutoApprove bool                  `json:"auto_approve"`
	Context     planner.MemoryContext `json:"context"`
}

// PlanInvestigationResult is the plan plus the approval-gate decision.
type PlanInvestigationResult struct {
	Plan             planner.InvestigationPlan `json:"plan"`
	RequiresApproval bool                      `json:"requires_approval"`
	ApprovalReason   string                    `json:"approval_reason,omitempty"`
}

// ExecuteSpecialistInput runs one specialist for one plan step.
type ExecuteSpecialistInput struct {
	AgentID   string `json:"agent_id"`
	Query     string `json:"query"`
	Task      string `json:"task"`
	StepIndex int    `json:"step_index"`
	UserID    string `json:"user_id"`
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`
}

// ExecuteSpecialistResult is one specialist's contribution. Timeouts and
// failures produce degraded results, never activity errors, so the router
// always advances.
type ExecuteSpecialistResult struct {
	AgentID     string       `json:"agent_id"`
	DisplayName string       `json:"display_name"`
	Response    string       `json:"response"`
	TimedOut    bool         `json:"timed_out"`
	Failed      bool         `json:"failed"`
	TokensUsed  int          `json:"tokens_used"`
	DurationMs  int64        `json:"duration_ms"`
	Trace       []TraceEvent `json:"trace,omitempty"`
}

// AggregateInput builds the final user-visible answer.
type AggregateInput struct {
	Query           string                    `json:"query"`
	Plan            planner.InvestigationPlan `json:"plan"`
	PendingApproval bool                      `json:"pending_approval"`
	Results         []ExecuteSpecialistResult `json:"results"`
	UserID          string                    `json:"user_id"`
	ActorID         string                    `json:"actor_id"`
	SessionID       string                    `json:"session_id"`
}

// AggregateResult is the final response text.
type AggregateResult struct {
	Response string `json:"response"`
	// Path records which formatting path produced the response:
	// approval, template, llm, static.
	Path string `json:"path"`
}

// StoreSummaryInput persists the investigation summary to memory.
type StoreSummaryInput struct {
	Query         string   `json:"query"`
	FinalResponse string   `json:"final_response"`
	AgentIDs      []string `json:"agent_ids"`
	UserID        string   `json:"user_id"`
	ActorID       string   `json:"actor_id"`
	SessionID     string   `json:"session_id"`
}

// StoreSummaryResult reports whether the best-effort save landed. When the
// query was an explicit save-report request the session is rotated and the
// fresh session ID is returned.
type StoreSummaryResult struct {
	Saved            bool   `json:"saved"`
	RotatedSessionID string `json:"rotated_session_id,omitempty"`
}

// UpdateSessionResultInput writes the final response and plan metadata back
// to the session.
type UpdateSessionResultInput struct {
	SessionID       string                    `json:"session_id"`
	UserID          string                    `json:"user_id"`
	Response        string                    `json:"response"`
	Plan            planner.InvestigationPlan `json:"plan"`
	PendingApproval bool                      `json:"pending_approval"`
	AgentsInvoked   []string                  `json:"agents_invoked"`
}

// RecordInvestigationInput persists the investigation to Postgres.
type RecordInvestigationInput struct {
	WorkflowID  string     `json:"workflow_id"`
	UserID      string     `json:"user_id"`
	SessionID   string     `json:"session_id"`
	Query       string     `json:"query"`
	Complexity  string     `json:"complexity"`
	PlanSource  string     `json:"plan_source"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TokensUsed  int        `json:"tokens_used"`
	AgentsUsed  int        `json:"agents_used"`
}

// EmitEventInput publishes one streaming event for an investigation.
type EmitEventInput struct {
	InvestigationID string `json:"investigation_id"`
	Type            string `json:"type"`
	AgentID         string `json:"agent_id,omitempty"`
	Message         string `json:"message,omitempty"`
}
