package agents

import "strings"

// transportSeparators are the prefix delimiters tool gateways insert before
// the bare tool name, e.g. "gateway___get_pod_status" or "mcp__k8s__get_pod_status".
var transportSeparators = []string{"___", "__"}

// BareToolName strips any transport prefix from a tool identifier, returning
// the name the allow-lists are written against.
func BareToolName(tool string) string {
	name := tool
	for _, sep := range transportSeparators {
		if idx := strings.LastIndex(name, sep); idx >= 0 {
			name = name[idx+len(sep):]
		}
	}
	return name
}

// FilterTools returns the subset of tools the specialist may use: tools whose
// bare name appears in the persona's allow-list, plus any globally-shared
// tools. Original identifiers are preserved so the transport can dispatch
// them unchanged.
func (r *Registry) FilterTools(s Specialist, tools []string) []string {
	allowed := make(map[string]struct{}, len(s.AllowedTools())+len(r.sharedTools))
	for _, t := range s.AllowedTools() {
		allowed[t] = struct{}{}
	}
	for _, t := range r.sharedTools {
		allowed[t] = struct{}{}
	}

	var filtered []string
	for _, tool := range tools {
		if _, ok := allowed[BareToolName(tool)]; ok {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}
