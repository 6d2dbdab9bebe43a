package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/agents"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/metrics"
)

const (
	// maxToolIterations bounds the LLM+tool loop within one specialist run.
	maxToolIterations = 8

	// maxTraceContent caps how much of a tool response is kept in the trace.
	maxTraceContent = 4096
)

// ExecuteSpecialist runs one specialist persona to completion: a focused
// sub-prompt, an LLM+tool-call loop restricted to the persona's allow-list,
// and a structured result. Timeouts and failures are synthesized into
// degraded results rather than activity errors, so the router always
// advances.
func (a *Activities) ExecuteSpecialist(ctx context.Context, input ExecuteSpecialistInput) (ExecuteSpecialistResult, error) {
	start := time.Now()

	spec, err := a.registry.Resolve(input.AgentID)
	if err != nil {
		a.logger.Error("Unknown specialist requested",
			zap.String("agent_id", input.AgentID),
			zap.Error(err),
		)
		metrics.RecordSpecialistMetrics(input.AgentID, "error", float64(time.Since(start).Milliseconds()))
		return ExecuteSpecialistResult{
			AgentID:  input.AgentID,
			Response: fmt.Sprintf("Error: %v", err),
			Failed:   true,
		}, nil
	}

	result := ExecuteSpecialistResult{
		AgentID:     spec.Type().ID(),
		DisplayName: spec.DisplayName(),
	}

	response, trace, tokens, err := a.runSpecialistLoop(ctx, spec.SystemPrompt(), a.specialistTools(ctx, spec), input)
	result.Trace = trace
	result.TokensUsed = tokens
	result.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		result.Response = response
		metrics.RecordSpecialistMetrics(result.AgentID, "ok", float64(result.DurationMs))
	case errors.Is(err, context.DeadlineExceeded):
		result.TimedOut = true
		result.Response = fmt.Sprintf(
			"%s did not complete within the allotted time. Partial findings, if any, could not be recovered; treat this area as uninvestigated.",
			spec.DisplayName(),
		)
		metrics.SpecialistTimeouts.WithLabelValues(result.AgentID).Inc()
		metrics.RecordSpecialistMetrics(result.AgentID, "timeout", float64(result.DurationMs))
		a.logger.Warn("Specialist timed out",
			zap.String("agent_id", result.AgentID),
			zap.Int64("duration_ms", result.DurationMs),
		)
	default:
		result.Failed = true
		result.Response = fmt.Sprintf("Error: %s failed: %v", spec.DisplayName(), err)
		metrics.RecordSpecialistMetrics(result.AgentID, "error", float64(result.DurationMs))
		a.logger.Warn("Specialist failed",
			zap.String("agent_id", result.AgentID),
			zap.Error(err),
		)
	}

	a.persistSpecialistTurn(ctx, input, &result)
	a.extractPatterns(ctx, input, result.Response)

	return result, nil
}

// specialistTools returns the persona's visible tool definitions: catalog
// entries whose bare name is in the allow-list, plus globally-shared tools.
func (a *Activities) specialistTools(ctx context.Context, spec agents.Specialist) []llm.ToolDef {
	catalog := a.toolCatalogCached(ctx)
	if len(catalog) == 0 {
		return nil
	}

	names := make([]string, len(catalog))
	byName := make(map[string]int, len(catalog))
	for i, t := range catalog {
		names[i] = t.Name
		byName[t.Name] = i
	}

	var defs []llm.ToolDef
	for _, name := range a.registry.FilterTools(spec, names) {
		t := catalog[byName[name]]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return defs
}

// runSpecialistLoop drives the LLM+tool-call loop to completion or context
// deadline.
func (a *Activities) runSpecialistLoop(ctx context.Context, systemPrompt string, toolDefs []llm.ToolDef, input ExecuteSpecialistInput) (string, []TraceEvent, int, error) {
	prompt := fmt.Sprintf("Investigation: %s", input.Query)
	if input.Task != "" {
		prompt = fmt.Sprintf("%s\n\nYour assigned step: %s", prompt, input.Task)
	}

	messages := []llm.Message{{Role: "user", Content: prompt}}
	var trace []TraceEvent
	totalTokens := 0

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", trace, totalTokens, err
		}

		resp, err := a.llm.Complete(ctx, llm.Request{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   2048,
			Temperature: 0.2,
			Purpose:     "specialist",
		})
		if err != nil {
			return "", trace, totalTokens, err
		}
		totalTokens += resp.TokensUsed

		if len(resp.ToolCalls) == 0 {
			trace = append(trace, TraceEvent{
				Kind: "assistant", Content: truncateTrace(resp.Content), Timestamp: time.Now(),
			})
			return resp.Content, trace, totalTokens, nil
		}

		if resp.Content != "" {
			messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
		}
		for _, call := range resp.ToolCalls {
			trace = append(trace, TraceEvent{
				Kind: "tool_call", Name: call.Name,
				Content:   truncateTrace(string(call.Arguments)),
				Timestamp: time.Now(),
			})

			toolResult, err := a.tools.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return "", trace, totalTokens, err
				}
				toolResult = fmt.Sprintf("Error: tool %s failed: %v", call.Name, err)
			}
			trace = append(trace, TraceEvent{
				Kind: "tool_response", Name: call.Name,
				Content:   truncateTrace(toolResult),
				Timestamp: time.Now(),
			})
			messages = append(messages, llm.Message{
				Role:    "user",
				Content: fmt.Sprintf("Result of %s: %s", call.Name, toolResult),
			})
		}
	}

	return "", trace, totalTokens, fmt.Errorf("tool loop exceeded %d iterations without a final answer", maxToolIterations)
}

// persistSpecialistTurn writes the sub-prompt, trace, and final text as one
// batched conversation-memory call. Best-effort.
func (a *Activities) persistSpecialistTurn(ctx context.Context, input ExecuteSpecialistInput, result *ExecuteSpecialistResult) {
	if a.conversation == nil || input.UserID == "" || input.SessionID == "" {
		return
	}

	now := time.Now()
	events := []memory.ConversationEvent{
		{Role: "user", Content: fmt.Sprintf("[%s] %s", result.AgentID, input.Query), Timestamp: now},
	}
	for _, te := range result.Trace {
		role := "tool_response"
		if te.Kind == "tool_call" {
			role = "tool_call"
		}
		if te.Kind == "assistant" {
			continue
		}
		events = append(events, memory.ConversationEvent{
			Role:      role,
			Content:   fmt.Sprintf("%s: %s", te.Name, te.Content),
			Timestamp: te.Timestamp,
		})
	}
	events = append(events, memory.ConversationEvent{
		Role: "assistant", Content: result.Response, Timestamp: now,
	})

	a.conversation.SaveTurn(ctx, input.ActorID, input.SessionID, events)
}

func truncateTrace(s string) string {
	if len(s) <= maxTraceContent {
		return s
	}
	return s[:maxTraceContent] + "..."
}
