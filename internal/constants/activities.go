package constants

// Activity names used for workflow registration and execution.
// Using constants eliminates magic strings and ensures consistency.
const (
	// Planning activities
	FetchMemoryContextActivity = "FetchMemoryContext"
	PlanInvestigationActivity  = "PlanInvestigation"

	// Specialist execution activities
	ExecuteSpecialistActivity = "ExecuteSpecialist"

	// Aggregation activities
	AggregateResultsActivity          = "AggregateResults"
	StoreInvestigationSummaryActivity = "StoreInvestigationSummary"

	// Session activities
	UpdateSessionResultActivity = "UpdateSessionResult"

	// Persistence and streaming activities
	RecordInvestigationActivity    = "RecordInvestigation"
	EmitInvestigationEventActivity = "EmitInvestigationEvent"
)

// Signal and query names on the investigation workflow.
const (
	ApprovalSignal = "plan-approval"

	StatusQuery = "investigation-status"
)

// Task queue the worker and all clients share.
const TaskQueue = "kestrel-investigations"
