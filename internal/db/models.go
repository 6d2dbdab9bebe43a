package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB handles PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(bytes, j)
}

// Investigation statuses.
const (
	StatusRunning          = "running"
	StatusAwaitingApproval = "awaiting_approval"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
	StatusTimedOut         = "timed_out"
)

// Investigation is one end-to-end investigation record, idempotent by
// workflow ID.
type Investigation struct {
	ID          uuid.UUID  `db:"id"`
	WorkflowID  string     `db:"workflow_id"`
	UserID      string     `db:"user_id"`
	SessionID   string     `db:"session_id"`
	Query       string     `db:"query"`
	Complexity  string     `db:"complexity"`
	PlanSource  string     `db:"plan_source"`
	Status      string     `db:"status"`
	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`

	Result       *string `db:"result"`
	ErrorMessage *string `db:"error_message"`

	// Metrics and the rendered plan, stored as JSONB.
	Plan    JSONB `db:"plan"`
	Metrics JSONB `db:"metrics"`

	CreatedAt time.Time `db:"created_at"`
}

// SpecialistExecution is one specialist invocation within an investigation.
type SpecialistExecution struct {
	ID             uuid.UUID  `db:"id"`
	InvestigationID uuid.UUID `db:"investigation_id"`
	WorkflowID     string     `db:"workflow_id"`
	AgentID        string     `db:"agent_id"`
	StepIndex      int        `db:"step_index"`
	Task           string     `db:"task"`
	Result         *string    `db:"result"`
	Status         string     `db:"status"`
	TokensUsed     int        `db:"tokens_used"`
	DurationMs     int64      `db:"duration_ms"`
	CreatedAt      time.Time  `db:"created_at"`
}
