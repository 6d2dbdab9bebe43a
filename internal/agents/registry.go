package agents

import "fmt"

// specialist is the concrete capability set for one variant. All fields are
// fixed at construction; nothing is derived from names at runtime.
type specialist struct {
	typ          Type
	displayName  string
	systemPrompt string
	allowedTools []string
}

func (s *specialist) Type() Type             { return s.typ }
func (s *specialist) DisplayName() string    { return s.displayName }
func (s *specialist) SystemPrompt() string   { return s.systemPrompt }
func (s *specialist) AllowedTools() []string { return append([]string(nil), s.allowedTools...) }

// Registry resolves specialist variants to their capability sets. It is
// populated once at construction and read-only afterwards, so it is safe for
// concurrent use.
type Registry struct {
	specialists map[Type]*specialist
	sharedTools []string
}

// NewRegistry builds the registry with the built-in specialist personas.
// sharedTools are available to every specialist in addition to its own
// allow-list.
func NewRegistry(sharedTools []string) *Registry {
	r := &Registry{
		specialists: make(map[Type]*specialist),
		sharedTools: append([]string(nil), sharedTools...),
	}
	for _, s := range builtinSpecialists() {
		r.specialists[s.typ] = s
	}
	return r
}

// Get returns the specialist for a variant.
func (r *Registry) Get(t Type) (Specialist, error) {
	s, ok := r.specialists[t]
	if !ok {
		return nil, fmt.Errorf("no specialist registered for %s", t)
	}
	return s, nil
}

// Resolve parses a plan identifier and returns the matching specialist.
func (r *Registry) Resolve(id string) (Specialist, error) {
	t, err := ParseType(id)
	if err != nil {
		return nil, err
	}
	return r.Get(t)
}

// SharedTools returns the globally-shared tool names.
func (r *Registry) SharedTools() []string {
	return append([]string(nil), r.sharedTools...)
}

func builtinSpecialists() []*specialist {
	return []*specialist{
		{
			typ:         TypeKubernetes,
			displayName: "Kubernetes Agent",
			systemPrompt: "You are a Kubernetes infrastructure specialist. " +
				"Investigate cluster, workload, and scheduling issues using the tools provided. " +
				"Check pod status, recent events, resource requests and limits, and node conditions. " +
				"Report concrete findings with namespaces and object names; do not speculate beyond the data you retrieved.",
			allowedTools: []string{
				"get_pod_status",
				"get_deployment_status",
				"get_node_conditions",
				"get_recent_events",
				"describe_resource",
			},
		},
		{
			typ:         TypeLogs,
			displayName: "Logs Agent",
			systemPrompt: "You are a log analysis specialist. " +
				"Search and correlate application and infrastructure logs to find errors, stack traces, and anomalies relevant to the investigation. " +
				"Quote the exact log lines that support each finding and note their timestamps.",
			allowedTools: []string{
				"search_logs",
				"get_error_summary",
				"tail_service_logs",
			},
		},
		{
			typ:         TypeMetrics,
			displayName: "Metrics Agent",
			systemPrompt: "You are a metrics and monitoring specialist. " +
				"Query time-series metrics to characterize latency, error rates, saturation, and traffic for the affected services. " +
				"State the time window you examined and call out deviations from baseline with numbers.",
			allowedTools: []string{
				"query_metrics",
				"get_alert_status",
				"get_service_health",
			},
		},
		{
			typ:         TypeRunbooks,
			displayName: "Runbooks Agent",
			systemPrompt: "You are an operational runbooks specialist. " +
				"Retrieve the runbooks relevant to the investigation and extract the concrete remediation steps they prescribe. " +
				"Preserve step ordering and reference the runbook each step came from.",
			allowedTools: []string{
				"search_runbooks",
				"get_runbook",
			},
		},
	}
}
