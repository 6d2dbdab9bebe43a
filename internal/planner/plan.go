package planner

import (
	"fmt"
	"strings"
)

// Complexity classifies how much oversight a plan needs.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// ParseComplexity normalizes the spellings planning models produce.
func ParseComplexity(s string) (Complexity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "low", "standard":
		return ComplexitySimple, nil
	case "complex", "high":
		return ComplexityComplex, nil
	default:
		return "", fmt.Errorf("unknown complexity %q", s)
	}
}

// Plan source labels, used in metrics and logs.
const (
	SourceLLM      = "llm"
	SourceRetry    = "llm_retry"
	SourceFallback = "fallback"
)

// InvestigationPlan is the planner's output. It is created once per
// investigation and read, never mutated, by the router.
type InvestigationPlan struct {
	Steps                 []string   `json:"steps"`
	AgentsSequence        []string   `json:"agents_sequence"`
	Complexity            Complexity `json:"complexity"`
	AutoExecute           bool       `json:"auto_execute"`
	Reasoning             string     `json:"reasoning,omitempty"`
	RequiresCollaboration bool       `json:"requires_collaboration,omitempty"`
	// Source records how the plan was produced (llm, llm_retry, fallback).
	Source string `json:"source,omitempty"`
}

// RequiresApproval reports whether the plan must pass the approval gate
// before any specialist runs.
func (p *InvestigationPlan) RequiresApproval(autoApprove bool) bool {
	if autoApprove {
		return false
	}
	return p.Complexity == ComplexityComplex && !p.AutoExecute
}

// FallbackPlan is the degenerate plan used whenever planning output cannot
// be parsed or the planning model is unreachable. The pipeline never halts
// on a planning failure.
func FallbackPlan(query string) *InvestigationPlan {
	return &InvestigationPlan{
		Steps: []string{
			fmt.Sprintf("Investigate the reported issue: %s", query),
			"Analyze the collected evidence and recommend next actions",
		},
		AgentsSequence: []string{"metrics_agent", "logs_agent"},
		Complexity:     ComplexitySimple,
		AutoExecute:    true,
		Reasoning:      "Fallback plan: planner output was unavailable or unparseable",
		Source:         SourceFallback,
	}
}
