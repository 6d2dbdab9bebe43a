package agents

import (
	"fmt"
	"strings"
)

// Type is the closed set of specialist agent identities. Routing decisions
// resolve to one of these variants at construction time; there is no
// name-pattern inference at dispatch time.
type Type int

const (
	TypeKubernetes Type = iota
	TypeLogs
	TypeMetrics
	TypeRunbooks
)

// ID returns the stable wire identifier used in plans and state.
func (t Type) ID() string {
	switch t {
	case TypeKubernetes:
		return "kubernetes_agent"
	case TypeLogs:
		return "logs_agent"
	case TypeMetrics:
		return "metrics_agent"
	case TypeRunbooks:
		return "runbooks_agent"
	default:
		return "unknown_agent"
	}
}

func (t Type) String() string { return t.ID() }

// AllTypes lists every specialist variant in routing-preference order.
func AllTypes() []Type {
	return []Type{TypeKubernetes, TypeLogs, TypeMetrics, TypeRunbooks}
}

// ParseType resolves a plan identifier to a specialist variant. It tolerates
// the display-name and bare-domain spellings that planning models produce.
func ParseType(id string) (Type, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	normalized = strings.TrimSuffix(normalized, "_agent")
	normalized = strings.TrimSuffix(normalized, " agent")
	switch normalized {
	case "kubernetes", "k8s":
		return TypeKubernetes, nil
	case "logs", "log":
		return TypeLogs, nil
	case "metrics", "metric":
		return TypeMetrics, nil
	case "runbooks", "runbook", "operational runbooks":
		return TypeRunbooks, nil
	default:
		return 0, fmt.Errorf("unknown specialist agent %q", id)
	}
}

// Specialist is the capability surface of one specialist persona. Every
// variant implements it; the orchestrator only ever talks to specialists
// through this interface.
type Specialist interface {
	// Type returns the closed-variant identity.
	Type() Type
	// DisplayName is the human-facing persona name used in reports.
	DisplayName() string
	// SystemPrompt is the persona's system prompt for the LLM loop.
	SystemPrompt() string
	// AllowedTools is the persona's tool allow-list (bare tool names,
	// without transport prefixes).
	AllowedTools() []string
}
