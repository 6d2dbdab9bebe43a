package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	client := NewClientWithDB(sqlx.NewDb(rawDB, "postgres"), zap.NewNop())
	t.Cleanup(func() { client.Close() })
	return client, mock
}

func TestSaveInvestigationInsert(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO investigations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

	inv := &Investigation{
		ID:         id,
		WorkflowID: "inv-workflow-1",
		UserID:     "user-1",
		SessionID:  "sess-1",
		Query:      "check pod health",
		Complexity: "simple",
		PlanSource: "llm",
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	}
	require.NoError(t, client.SaveInvestigation(context.Background(), inv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInvestigationAssignsID(t *testing.T) {
	client, mock := newMockClient(t)
	generated := uuid.New()

	mock.ExpectQuery(`INSERT INTO investigations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(generated.String()))

	inv := &Investigation{WorkflowID: "inv-workflow-2", Query: "q", Status: StatusRunning, StartedAt: time.Now()}
	require.NoError(t, client.SaveInvestigation(context.Background(), inv))
	assert.NotEqual(t, uuid.Nil, inv.ID)
	assert.False(t, inv.CreatedAt.IsZero())
}

func TestSaveInvestigationQueryErrorSurfaces(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`INSERT INTO investigations`).
		WillReturnError(errors.New("connection refused"))

	inv := &Investigation{WorkflowID: "inv-workflow-3", Query: "q", Status: StatusRunning, StartedAt: time.Now()}
	err := client.SaveInvestigation(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save investigation")
}

func TestSaveSpecialistExecution(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO specialist_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := "3 pods restarting"
	exec := &SpecialistExecution{
		InvestigationID: uuid.New(),
		WorkflowID:      "inv-workflow-1",
		AgentID:         "kubernetes_agent",
		StepIndex:       0,
		Task:            "check pod status",
		Result:          &result,
		Status:          StatusCompleted,
		TokensUsed:      512,
		DurationMs:      4200,
	}
	require.NoError(t, client.SaveSpecialistExecution(context.Background(), exec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInvestigation(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "workflow_id", "user_id", "session_id", "query", "complexity",
		"plan_source", "status", "started_at", "completed_at", "result",
		"error_message", "plan", "metrics", "created_at",
	}).AddRow(
		id.String(), "inv-workflow-1", "user-1", "sess-1", "check pod health",
		"simple", "llm", StatusCompleted, now, now, "all healthy",
		nil, []byte(`{}`), []byte(`{"tokens": 900}`), now,
	)
	mock.ExpectQuery(`SELECT \* FROM investigations WHERE workflow_id`).
		WithArgs("inv-workflow-1").
		WillReturnRows(rows)

	inv, err := client.GetInvestigation(context.Background(), "inv-workflow-1")
	require.NoError(t, err)
	assert.Equal(t, "check pod health", inv.Query)
	assert.Equal(t, StatusCompleted, inv.Status)
	assert.EqualValues(t, 900, inv.Metrics["tokens"])
}

func TestQueueWriteProcessesAsync(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO specialist_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done := make(chan error, 1)
	ok := client.QueueWrite(WriteRequest{
		Type: WriteTypeSpecialistExecution,
		Data: &SpecialistExecution{
			InvestigationID: uuid.New(),
			WorkflowID:      "inv-workflow-1",
			AgentID:         "logs_agent",
			Status:          StatusCompleted,
		},
		Callback: func(err error) { done <- err },
	})
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("async write never completed")
	}
}
