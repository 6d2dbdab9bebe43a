package planner

import (
	"fmt"
	"strings"

	"github.com/kestrel-ops/kestrel/internal/memory"
)

// MemoryContext is the snapshot of retrieved memories the planner consults.
// Categories may be empty; empty categories are omitted from the prompt.
type MemoryContext struct {
	Preferences        []memory.Record `json:"preferences,omitempty"`
	Infrastructure     []memory.Record `json:"infrastructure,omitempty"`
	PastInvestigations []memory.Record `json:"past_investigations,omitempty"`
}

// Empty reports whether no memory of any category was retrieved.
func (m *MemoryContext) Empty() bool {
	return len(m.Preferences) == 0 && len(m.Infrastructure) == 0 && len(m.PastInvestigations) == 0
}

const planningSystemPrompt = `You are the investigation planner for an SRE assistant.
Given an incident report or operational question, produce a structured investigation plan.

Available specialist agents:
- kubernetes_agent: cluster, workload, and scheduling state
- logs_agent: application and infrastructure log analysis
- metrics_agent: time-series metrics, alerts, and service health
- runbooks_agent: operational runbooks and remediation procedures

Respond with a single JSON object, no other text:
{
  "steps": ["<ordered investigation step>", ...],
  "agentsSequence": ["<agent id for each step>", ...],
  "complexity": "simple" or "complex",
  "autoExecute": true or false,
  "requiresCollaboration": true or false,
  "reasoning": "<one paragraph justifying the plan>"
}

Keep plans to 3-5 steps. Mark a plan "complex" when it spans multiple systems
or its steps could change production state; complex plans are reviewed by a
human before execution. Set requiresCollaboration only when a later step must
revisit an agent that already ran.`

// BuildPlanningPrompt renders the user-side planning prompt from the query
// and any retrieved memory context.
func BuildPlanningPrompt(query string, memCtx *MemoryContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigation request: %s\n", query)

	if memCtx != nil && !memCtx.Empty() {
		sb.WriteString("\nContext from memory:\n")
		writeCategory(&sb, "User preferences", memCtx.Preferences)
		writeCategory(&sb, "Known infrastructure", memCtx.Infrastructure)
		writeCategory(&sb, "Past investigations", memCtx.PastInvestigations)
	}

	sb.WriteString("\nProduce the investigation plan JSON.")
	return sb.String()
}

func writeCategory(sb *strings.Builder, title string, records []memory.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, r := range records {
		fmt.Fprintf(sb, "- %s\n", r.Text())
	}
}
