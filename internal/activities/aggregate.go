package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/formatting"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/metrics"
)

const synthesisSystemPrompt = `You are an SRE report writer. You receive the raw findings of
specialist agents as JSON. Synthesize them into a professional investigation
report: what was found, what it means, and what to do next. Be factual; do
not invent findings that are not in the input.`

// AggregateResults produces the single final user-visible answer. It never
// fails: the deterministic template path degrades to an LLM synthesis, which
// degrades to a static summary.
func (a *Activities) AggregateResults(ctx context.Context, input AggregateInput) (AggregateResult, error) {
	// Approval rendering takes exclusive precedence: a pending plan never
	// leaks specialist results, even if some are present in state.
	if input.PendingApproval {
		prompt, err := formatting.FormatApprovalPrompt(formatting.ApprovalData{
			Query:      input.Query,
			Complexity: string(input.Plan.Complexity),
			Steps:      input.Plan.Steps,
			Reasoning:  input.Plan.Reasoning,
		})
		if err != nil {
			// The template is static; treat failure as a programming error
			// but still answer the user.
			a.logger.Error("Approval prompt render failed", zap.Error(err))
			prompt = fmt.Sprintf("The proposed plan for %q requires your approval before execution.", input.Query)
		}
		return AggregateResult{Response: prompt, Path: "approval"}, nil
	}

	response, path := a.renderResults(ctx, input)
	a.persistFinalResponse(ctx, input, response)
	return AggregateResult{Response: response, Path: path}, nil
}

func (a *Activities) renderResults(ctx context.Context, input AggregateInput) (string, string) {
	summary := a.executiveSummary(ctx, input)

	sections := make([]formatting.AgentSection, 0, len(input.Results))
	for _, r := range input.Results {
		name := r.DisplayName
		if name == "" {
			name = r.AgentID
		}
		sections = append(sections, formatting.AgentSection{Name: name, Content: r.Response})
	}

	report, err := formatting.FormatReport(formatting.ReportData{
		Query:            input.Query,
		ExecutiveSummary: summary,
		Sections:         sections,
	})
	if err == nil {
		return report, "template"
	}

	a.logger.Warn("Deterministic formatting failed, falling back to LLM synthesis", zap.Error(err))
	metrics.AggregationFallbacks.WithLabelValues("template_to_llm").Inc()

	synthesized, err := a.synthesizeWithLLM(ctx, input)
	if err == nil {
		return synthesized, "llm"
	}

	a.logger.Warn("LLM synthesis failed, using static fallback summary", zap.Error(err))
	metrics.AggregationFallbacks.WithLabelValues("llm_to_static").Inc()

	names := make([]string, 0, len(input.Results))
	for _, r := range input.Results {
		if r.DisplayName != "" {
			names = append(names, r.DisplayName)
		} else {
			names = append(names, r.AgentID)
		}
	}
	return formatting.FallbackSummary(input.Query, names), "static"
}

// executiveSummary asks the model for a short prose synthesis over all
// specialist outputs plus the user's stored preferences. The call is
// isolated: failure degrades to the fixed generic summary.
func (a *Activities) executiveSummary(ctx context.Context, input AggregateInput) string {
	if len(input.Results) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigation: %s\n\nSpecialist findings:\n", input.Query)
	for _, r := range input.Results {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", r.DisplayName, r.Response)
	}

	if prefs := a.memoryStore.Retrieve(ctx, memory.TypePreferences, input.UserID, input.Query, 5, ""); len(prefs) > 0 {
		sb.WriteString("\nUser preferences to honor:\n")
		for _, p := range prefs {
			fmt.Fprintf(&sb, "- %s\n", p.Text())
		}
	}
	sb.WriteString("\nWrite a 2-4 sentence executive summary of this investigation.")

	resp, err := a.llm.Complete(ctx, llm.Request{
		System:      "You summarize SRE investigations in a few crisp sentences for an on-call engineer.",
		Messages:    []llm.Message{{Role: "user", Content: sb.String()}},
		MaxTokens:   256,
		Temperature: 0.3,
		Purpose:     "summary",
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if err != nil {
			a.logger.Warn("Executive summary call failed, using generic summary", zap.Error(err))
		}
		metrics.AggregationFallbacks.WithLabelValues("summary_to_generic").Inc()
		return formatting.GenericExecutiveSummary
	}
	return strings.TrimSpace(resp.Content)
}

func (a *Activities) synthesizeWithLLM(ctx context.Context, input AggregateInput) (string, error) {
	raw, err := json.Marshal(map[string]interface{}{
		"query":   input.Query,
		"results": input.Results,
	})
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	resp, err := a.llm.Complete(ctx, llm.Request{
		System:      synthesisSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: string(raw)}},
		MaxTokens:   2048,
		Temperature: 0.3,
		Purpose:     "synthesis",
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("synthesis returned empty content")
	}
	return resp.Content, nil
}

func (a *Activities) persistFinalResponse(ctx context.Context, input AggregateInput, response string) {
	if a.conversation == nil || input.UserID == "" || input.SessionID == "" {
		return
	}
	a.conversation.SaveTurn(ctx, input.ActorID, input.SessionID, []memory.ConversationEvent{
		{Role: "assistant", Content: response, Timestamp: time.Now()},
	})
}
