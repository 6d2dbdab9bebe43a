package formatting

import (
	"bytes"
	"fmt"
	"strings"
)

// AgentSection is one specialist's contribution to the final report, in
// invocation order.
type AgentSection struct {
	Name    string
	Content string
	// Steps holds extracted runbook steps, populated for runbook-style output.
	Steps []string
}

// ApprovalData feeds the approval prompt template.
type ApprovalData struct {
	Query      string
	Complexity string
	Steps      []string
	Reasoning  string
}

// FormatApprovalPrompt renders a pending plan as an approval request. The
// output never contains specialist results; approval rendering takes
// exclusive precedence over any results already in state.
func FormatApprovalPrompt(data ApprovalData) (string, error) {
	var buf bytes.Buffer
	if err := approvalTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render approval prompt: %w", err)
	}
	return buf.String(), nil
}

// ReportData feeds the grouped results template.
type ReportData struct {
	Query            string
	ExecutiveSummary string
	Sections         []AgentSection
}

// FormatReport renders the deterministic grouped results report. Runbook
// sections get their procedure steps extracted and listed explicitly.
func FormatReport(data ReportData) (string, error) {
	if len(data.Sections) == 0 {
		return "", fmt.Errorf("no specialist results to format")
	}
	for i := range data.Sections {
		if isRunbookSection(data.Sections[i].Name) && len(data.Sections[i].Steps) == 0 {
			data.Sections[i].Steps = ExtractRunbookSteps(data.Sections[i].Content)
		}
	}
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// FallbackSummary is the hard-coded last-resort response body.
func FallbackSummary(query string, agentNames []string) string {
	var buf bytes.Buffer
	err := fallbackSummaryTemplate.Execute(&buf, struct {
		Query  string
		Agents []string
	}{Query: query, Agents: agentNames})
	if err != nil {
		// The static template cannot realistically fail; keep a plain string
		// as the absolute floor.
		return "The investigation completed, but the report could not be generated. Query: " + query
	}
	return buf.String()
}

func isRunbookSection(name string) bool {
	return strings.Contains(strings.ToLower(name), "runbook")
}
