package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrel-ops/kestrel/internal/agents"
)

// rawPlan matches the JSON shape the planning prompt asks for.
type rawPlan struct {
	Steps                 []string `json:"steps"`
	AgentsSequence        []string `json:"agentsSequence"`
	Complexity            string   `json:"complexity"`
	AutoExecute           *bool    `json:"autoExecute"`
	Reasoning             string   `json:"reasoning"`
	RequiresCollaboration bool     `json:"requiresCollaboration"`
}

// ExtractPlan parses a planning model's free-text response into a validated
// InvestigationPlan. It is the single boundary where unstructured model
// output becomes typed data; callers that receive an error use FallbackPlan.
func ExtractPlan(response string) (*InvestigationPlan, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in planner response")
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse planner JSON: %w", err)
	}
	return validatePlan(&raw)
}

func validatePlan(raw *rawPlan) (*InvestigationPlan, error) {
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	if len(raw.AgentsSequence) == 0 {
		return nil, fmt.Errorf("plan has no agent sequence")
	}
	for i, s := range raw.Steps {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("plan step %d is empty", i)
		}
	}

	sequence := make([]string, 0, len(raw.AgentsSequence))
	for _, id := range raw.AgentsSequence {
		t, err := agents.ParseType(id)
		if err != nil {
			return nil, fmt.Errorf("plan references %w", err)
		}
		sequence = append(sequence, t.ID())
	}

	complexity, err := ParseComplexity(raw.Complexity)
	if err != nil {
		return nil, err
	}

	autoExecute := complexity == ComplexitySimple
	if raw.AutoExecute != nil {
		autoExecute = *raw.AutoExecute
	}

	return &InvestigationPlan{
		Steps:                 raw.Steps,
		AgentsSequence:        sequence,
		Complexity:            complexity,
		AutoExecute:           autoExecute,
		Reasoning:             raw.Reasoning,
		RequiresCollaboration: raw.RequiresCollaboration,
		Source:                SourceLLM,
	}, nil
}
