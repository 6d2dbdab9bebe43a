package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/constants"
	"github.com/kestrel-ops/kestrel/internal/workflows"
)

type fakeRun struct {
	runID  string
	result workflows.InvestigationResult
	err    error
	// block, when set, parks Get until the channel closes or the context
	// ends, imitating a workflow holding for approval.
	block chan struct{}
}

func (r *fakeRun) GetID() string    { return "investigation-fake" }
func (r *fakeRun) GetRunID() string { return r.runID }

func (r *fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.err != nil {
		return r.err
	}
	*(valuePtr.(*workflows.InvestigationResult)) = r.result
	return nil
}

func (r *fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, _ client.WorkflowRunGetOptions) error {
	return r.Get(ctx, valuePtr)
}

type signalCall struct {
	workflowID string
	name       string
	arg        interface{}
}

type fakeEncodedValue struct {
	status workflows.InvestigationStatus
}

func (v fakeEncodedValue) HasValue() bool { return true }

func (v fakeEncodedValue) Get(valuePtr interface{}) error {
	*(valuePtr.(*workflows.InvestigationStatus)) = v.status
	return nil
}

type fakeWorkflowClient struct {
	run        *fakeRun
	startErr   error
	startOpts  client.StartWorkflowOptions
	startInput workflows.InvestigationInput

	signals []signalCall

	describeResp *workflowservice.DescribeWorkflowExecutionResponse
	describeErr  error
	queryStatus  *workflows.InvestigationStatus
}

func (c *fakeWorkflowClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.startOpts = options
	if len(args) > 0 {
		c.startInput = args[0].(workflows.InvestigationInput)
	}
	return c.run, nil
}

func (c *fakeWorkflowClient) SignalWorkflow(_ context.Context, workflowID, _ string, signalName string, arg interface{}) error {
	c.signals = append(c.signals, signalCall{workflowID: workflowID, name: signalName, arg: arg})
	return nil
}

func (c *fakeWorkflowClient) QueryWorkflow(_ context.Context, _, _, _ string, _ ...interface{}) (converter.EncodedValue, error) {
	if c.queryStatus == nil {
		return nil, assert.AnError
	}
	return fakeEncodedValue{status: *c.queryStatus}, nil
}

func (c *fakeWorkflowClient) DescribeWorkflowExecution(_ context.Context, _, _ string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	return c.describeResp, c.describeErr
}

func newTestMux(fake *fakeWorkflowClient) *http.ServeMux {
	mux := http.NewServeMux()
	NewInvestigationHandler(fake, nil, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestStartInvestigation_Sync(t *testing.T) {
	fake := &fakeWorkflowClient{
		run: &fakeRun{
			runID: "run-1",
			result: workflows.InvestigationResult{
				Response:      "Checkout pods were OOMKilled after the 14:00 deploy.",
				AgentsInvoked: []string{"kubernetes_agent"},
				Complexity:    "simple",
				TokensUsed:    420,
			},
		},
	}
	mux := newTestMux(fake)

	body := `{"query":"why is checkout failing","user_id":"alice"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/investigations", strings.NewReader(body)))

	require.Equal(t, 200, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Checkout pods were OOMKilled after the 14:00 deploy.", resp["response"])
	assert.Equal(t, float64(420), resp["tokens_used"])
	assert.NotEmpty(t, resp["session_id"], "session id is generated when absent")

	assert.Equal(t, constants.TaskQueue, fake.startOpts.TaskQueue)
	assert.True(t, strings.HasPrefix(fake.startOpts.ID, "investigation-"))
	assert.Equal(t, "why is checkout failing", fake.startInput.Query)
	assert.Equal(t, "alice", fake.startInput.UserID)
}

func TestStartInvestigation_SyncReturnsPendingApprovalEarly(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	fake := &fakeWorkflowClient{
		run: &fakeRun{runID: "run-held", block: hold},
		queryStatus: &workflows.InvestigationStatus{
			State:          workflows.StateAwaitingApproval,
			Complexity:     "complex",
			ApprovalPrompt: "This 2-step plan needs approval before execution.",
		},
	}
	mux := newTestMux(fake)

	body := `{"query":"drain the node pool","user_id":"alice"}`
	rec := httptest.NewRecorder()
	start := time.Now()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/investigations", strings.NewReader(body)))

	// Responds as soon as the hold is visible, not after the approval window.
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 200, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["pending_approval"])
	assert.Equal(t, "This 2-step plan needs approval before execution.", resp["response"])
	assert.Equal(t, "complex", resp["complexity"])
}

func TestStartInvestigation_Async(t *testing.T) {
	fake := &fakeWorkflowClient{run: &fakeRun{runID: "run-2"}}
	mux := newTestMux(fake)

	body := `{"query":"latency spike","user_id":"alice","async":true}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/investigations", strings.NewReader(body)))

	require.Equal(t, 202, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-2", resp["run_id"])
	assert.Contains(t, resp["investigation_id"], "investigation-")
}

func TestStartInvestigation_Validation(t *testing.T) {
	mux := newTestMux(&fakeWorkflowClient{run: &fakeRun{}})

	for name, body := range map[string]string{
		"missing query":   `{"user_id":"alice"}`,
		"missing user_id": `{"query":"pods crashing"}`,
		"bad json":        `{`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/investigations", strings.NewReader(body)))
			assert.Equal(t, 400, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/investigations", nil))
	assert.Equal(t, 405, rec.Code)
}

func TestStartInvestigation_RejectsUserMismatch(t *testing.T) {
	fake := &fakeWorkflowClient{run: &fakeRun{}}
	handler := NewAuthMiddleware("test-secret", zap.NewNop()).Wrap(newTestMux(fake))

	req := httptest.NewRequest("POST", "/api/v1/investigations",
		strings.NewReader(`{"query":"disk pressure","user_id":"alice"}`))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", "bob"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 403, rec.Code)
	assert.Empty(t, fake.startInput.Query, "workflow must not be started")
}

func TestApprove_SignalsWorkflow(t *testing.T) {
	fake := &fakeWorkflowClient{}
	mux := newTestMux(fake)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/investigations/investigation-42/approve",
		strings.NewReader(`{"approved":true,"feedback":"looks safe"}`)))

	require.Equal(t, 200, rec.Code)
	require.Len(t, fake.signals, 1)
	assert.Equal(t, "investigation-42", fake.signals[0].workflowID)
	assert.Equal(t, constants.ApprovalSignal, fake.signals[0].name)
	decision := fake.signals[0].arg.(workflows.ApprovalDecision)
	assert.True(t, decision.Approved)
	assert.Equal(t, "looks safe", decision.Feedback)
}

func TestStatus_RunningIncludesRouterState(t *testing.T) {
	fake := &fakeWorkflowClient{
		describeResp: &workflowservice.DescribeWorkflowExecutionResponse{
			WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
				Status: enums.WORKFLOW_EXECUTION_STATUS_RUNNING,
			},
		},
		queryStatus: &workflows.InvestigationStatus{
			State:      workflows.StateExecuting,
			Step:       2,
			Complexity: "complex",
		},
	}
	mux := newTestMux(fake)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/investigations/investigation-42", nil))

	require.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp["status"])
	router := resp["router"].(map[string]interface{})
	assert.Equal(t, "executing", router["state"])
	assert.Equal(t, float64(2), router["step"])
}

func TestStatus_CompletedWithoutQuery(t *testing.T) {
	fake := &fakeWorkflowClient{
		describeResp: &workflowservice.DescribeWorkflowExecutionResponse{
			WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
				Status: enums.WORKFLOW_EXECUTION_STATUS_COMPLETED,
			},
		},
	}
	mux := newTestMux(fake)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/investigations/investigation-9", nil))

	require.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp["status"])
	assert.NotContains(t, resp, "router")
}

func TestStatus_UnknownInvestigation(t *testing.T) {
	fake := &fakeWorkflowClient{describeErr: assert.AnError}
	mux := newTestMux(fake)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/investigations/investigation-missing", nil))
	assert.Equal(t, 404, rec.Code)
}
