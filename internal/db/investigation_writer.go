package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveInvestigation saves or updates an investigation record, idempotent by
// workflow_id.
func (c *Client) SaveInvestigation(ctx context.Context, inv *Investigation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO investigations (
			id, workflow_id, user_id, session_id, query, complexity,
			plan_source, status, started_at, completed_at, result,
			error_message, plan, metrics, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			metrics = CASE
				WHEN EXCLUDED.metrics IS NULL OR EXCLUDED.metrics = '{}'::jsonb THEN investigations.metrics
				ELSE EXCLUDED.metrics
			END
		RETURNING id`

	row, err := c.db.QueryRowContext(ctx, query,
		inv.ID, inv.WorkflowID, nullable(inv.UserID), nullable(inv.SessionID),
		inv.Query, inv.Complexity, inv.PlanSource, inv.Status,
		inv.StartedAt, inv.CompletedAt, inv.Result, inv.ErrorMessage,
		inv.Plan, inv.Metrics, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save investigation: %w", err)
	}
	if err := row.Scan(&inv.ID); err != nil {
		return fmt.Errorf("failed to save investigation: %w", err)
	}
	return nil
}

// SaveSpecialistExecution records one specialist invocation.
func (c *Client) SaveSpecialistExecution(ctx context.Context, exec *SpecialistExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO specialist_executions (
			id, investigation_id, workflow_id, agent_id, step_index,
			task, result, status, tokens_used, duration_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := c.db.ExecContext(ctx, query,
		exec.ID, exec.InvestigationID, exec.WorkflowID, exec.AgentID,
		exec.StepIndex, exec.Task, exec.Result, exec.Status,
		exec.TokensUsed, exec.DurationMs, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save specialist execution: %w", err)
	}
	return nil
}

// GetInvestigation loads an investigation by workflow ID.
func (c *Client) GetInvestigation(ctx context.Context, workflowID string) (*Investigation, error) {
	var inv Investigation
	err := c.sqlxDB.GetContext(ctx, &inv,
		`SELECT * FROM investigations WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get investigation: %w", err)
	}
	return &inv, nil
}

// ListRecentInvestigations returns a user's most recent investigations.
func (c *Client) ListRecentInvestigations(ctx context.Context, userID string, limit int) ([]Investigation, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Investigation
	err := c.sqlxDB.SelectContext(ctx, &out,
		`SELECT * FROM investigations WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list investigations: %w", err)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
