package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/constants"
	"github.com/kestrel-ops/kestrel/internal/db"
	"github.com/kestrel-ops/kestrel/internal/workflows"
)

// approvalPollInterval is how often the synchronous start path checks whether
// the workflow is holding for approval.
const approvalPollInterval = 500 * time.Millisecond

// WorkflowClient is the slice of the Temporal client the API needs.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

// InvestigationHandler exposes the investigation API:
//
//	POST /api/v1/investigations
//	GET  /api/v1/investigations/{id}
//	POST /api/v1/investigations/{id}/approve
type InvestigationHandler struct {
	temporal WorkflowClient
	db       *db.Client
	logger   *zap.Logger
}

// NewInvestigationHandler constructs the handler. The db client may be nil.
func NewInvestigationHandler(temporal WorkflowClient, dbClient *db.Client, logger *zap.Logger) *InvestigationHandler {
	return &InvestigationHandler{temporal: temporal, db: dbClient, logger: logger}
}

// RegisterRoutes mounts the investigation routes.
func (h *InvestigationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/investigations", h.handleCollection)
	mux.HandleFunc("/api/v1/investigations/", h.handleItem)
}

type startInvestigationRequest struct {
	Query       string `json:"query"`
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id,omitempty"`
	AutoApprove bool   `json:"auto_approve,omitempty"`
	// Async returns the workflow ID immediately instead of waiting for the
	// final response.
	Async bool `json:"async,omitempty"`
}

func (h *InvestigationHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req startInvestigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Query == "" || req.UserID == "" {
		http.Error(w, `{"error":"query and user_id are required"}`, http.StatusBadRequest)
		return
	}
	if userID := UserIDFromContext(r.Context()); userID != "" && userID != req.UserID {
		http.Error(w, `{"error":"user_id does not match token subject"}`, http.StatusForbidden)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	workflowID := "investigation-" + uuid.New().String()
	run, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                constants.TaskQueue,
		WorkflowExecutionTimeout: 45 * time.Minute,
	}, workflows.InvestigationWorkflow, workflows.InvestigationInput{
		Query:       req.Query,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		AutoApprove: req.AutoApprove,
	})
	if err != nil {
		h.logger.Error("Failed to start investigation",
			zap.String("workflow_id", workflowID), zap.Error(err))
		http.Error(w, `{"error":"failed to start investigation"}`, http.StatusBadGateway)
		return
	}

	if req.Async {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"investigation_id": workflowID,
			"run_id":           run.GetRunID(),
			"session_id":       req.SessionID,
		})
		return
	}

	var result workflows.InvestigationResult
	done := make(chan error, 1)
	go func() { done <- run.Get(r.Context(), &result) }()

	// A plan held for human approval ends the turn immediately instead of
	// blocking the caller for the whole approval window. The workflow keeps
	// running; the approve endpoint picks it up.
	ticker := time.NewTicker(approvalPollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				h.logger.Error("Investigation failed",
					zap.String("workflow_id", workflowID), zap.Error(err))
				http.Error(w, `{"error":"`+sanitizeErr(err.Error())+`"}`, http.StatusBadGateway)
				return
			}
			h.writeInvestigationResult(w, workflowID, req.SessionID, result)
			return
		case <-ticker.C:
			val, err := h.temporal.QueryWorkflow(r.Context(), workflowID, run.GetRunID(), constants.StatusQuery)
			if err != nil {
				continue
			}
			var st workflows.InvestigationStatus
			if err := val.Get(&st); err != nil {
				continue
			}
			if st.State == workflows.StateAwaitingApproval {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"investigation_id": workflowID,
					"session_id":       req.SessionID,
					"response":         st.ApprovalPrompt,
					"pending_approval": true,
					"complexity":       st.Complexity,
				})
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *InvestigationHandler) writeInvestigationResult(w http.ResponseWriter, workflowID, sessionID string, result workflows.InvestigationResult) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"investigation_id": workflowID,
		"session_id":       sessionID,
		"response":         result.Response,
		"pending_approval": result.PendingApproval,
		"agents_invoked":   result.AgentsInvoked,
		"complexity":       result.Complexity,
		"tokens_used":      result.TokensUsed,
	})
}

func (h *InvestigationHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/investigations/")
	if rest == "" {
		http.Error(w, `{"error":"investigation id required"}`, http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/approve"); ok {
		h.handleApprove(w, r, strings.TrimSuffix(id, "/"))
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	h.handleStatus(w, r, rest)
}

type approveRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

func (h *InvestigationHandler) handleApprove(w http.ResponseWriter, r *http.Request, workflowID string) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.temporal.SignalWorkflow(ctx, workflowID, "", constants.ApprovalSignal, workflows.ApprovalDecision{
		Approved: req.Approved,
		Feedback: req.Feedback,
	}); err != nil {
		h.logger.Error("Failed to signal approval",
			zap.String("workflow_id", workflowID), zap.Error(err))
		http.Error(w, `{"error":"failed to deliver approval"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"investigation_id": workflowID,
		"approved":         req.Approved,
		"status":           "signal sent",
	})
}

func (h *InvestigationHandler) handleStatus(w http.ResponseWriter, r *http.Request, workflowID string) {
	desc, err := h.temporal.DescribeWorkflowExecution(r.Context(), workflowID, "")
	if err != nil {
		// The workflow may have been retention-expired; fall back to the
		// history database when available.
		if h.db != nil {
			if inv, dbErr := h.db.GetInvestigation(r.Context(), workflowID); dbErr == nil {
				writeJSON(w, http.StatusOK, inv)
				return
			}
		}
		http.Error(w, `{"error":"investigation not found"}`, http.StatusNotFound)
		return
	}

	out := map[string]interface{}{
		"investigation_id": workflowID,
		"status":           workflowStatusString(desc.GetWorkflowExecutionInfo().GetStatus()),
	}

	// The router's live state is only queryable while the workflow runs.
	if desc.GetWorkflowExecutionInfo().GetStatus() == enums.WORKFLOW_EXECUTION_STATUS_RUNNING {
		if val, err := h.temporal.QueryWorkflow(r.Context(), workflowID, "", constants.StatusQuery); err == nil {
			var status workflows.InvestigationStatus
			if err := val.Get(&status); err == nil {
				out["router"] = status
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func workflowStatusString(s enums.WorkflowExecutionStatus) string {
	switch s {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return "running"
	case enums.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "completed"
	case enums.WORKFLOW_EXECUTION_STATUS_FAILED:
		return "failed"
	case enums.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return "canceled"
	case enums.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return "terminated"
	case enums.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return "timed_out"
	default:
		return "unknown"
	}
}

// writeJSON writes a JSON response with status and content type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sanitizeErr trims error messages for safe client output.
func sanitizeErr(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return fmt.Sprintf("%s...", string(runes[:200]))
	}
	return s
}
