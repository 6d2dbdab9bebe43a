package activities

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/memory"
)

var (
	timelineRe = regexp.MustCompile(`(?m)\b(\d{1,2}:\d{2}(?::\d{2})?(?:\s?(?:AM|PM|UTC))?)\b.*$`)
	actionRe   = regexp.MustCompile(`(?mi)^\s*(?:\d+[.)]|[-*])?\s*((?:restart|scale|roll\s?back|rollback?|increase|decrease|apply|update|delete|drain|cordon|expand|rotate|recommend)\w*\b.*)$`)
	findingRe  = regexp.MustCompile(`(?mi)^.*\b(found|detected|identified|observed|caused by|root cause|due to)\b.*$`)
)

// resolutionStatus classifies the investigation outcome from the final text.
func resolutionStatus(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "resolved") || strings.Contains(lower, "fixed") || strings.Contains(lower, "recovered"):
		return "resolved"
	case strings.Contains(lower, "mitigated") || strings.Contains(lower, "workaround"):
		return "mitigated"
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "did not complete"):
		return "incomplete"
	default:
		return "investigated"
	}
}

// StoreInvestigationSummary derives a structured summary (timeline, actions,
// key findings, resolution status) from the final response by heuristic
// extraction and writes it to investigation memory. Best-effort: a failed
// save is reported, never raised.
func (a *Activities) StoreInvestigationSummary(ctx context.Context, input StoreSummaryInput) (StoreSummaryResult, error) {
	timeline := dedupeLines(timelineRe.FindAllString(input.FinalResponse, 10))
	actions := dedupeLines(matchGroups(actionRe, input.FinalResponse, 10))
	findings := dedupeLines(findingRe.FindAllString(input.FinalResponse, 10))

	payload := map[string]interface{}{
		"kind":              "investigation_summary",
		"query":             input.Query,
		"agents":            input.AgentIDs,
		"resolution_status": resolutionStatus(input.FinalResponse),
		"created_at":        time.Now().UTC().Format(time.RFC3339),
	}
	if len(timeline) > 0 {
		payload["timeline"] = timeline
	}
	if len(actions) > 0 {
		payload["actions_taken"] = actions
	}
	if len(findings) > 0 {
		payload["key_findings"] = findings
	}
	// Keep a bounded excerpt so cross-session retrieval has text to rank on.
	payload["summary"] = excerpt(input.FinalResponse, 1024)

	saved := a.memoryStore.Save(ctx, memory.TypeInvestigations, input.ActorID, payload, input.SessionID)
	if !saved {
		a.logger.Warn("Investigation summary save failed",
			zap.String("session_id", input.SessionID),
		)
	}

	result := StoreSummaryResult{Saved: saved}
	if saved && isSaveReportRequest(input.Query) && a.sessions != nil && input.SessionID != "" {
		fresh, err := a.sessions.Rotate(ctx, input.SessionID)
		if err != nil {
			a.logger.Warn("Session rotation after report save failed",
				zap.String("session_id", input.SessionID),
				zap.Error(err),
			)
		} else {
			result.RotatedSessionID = fresh.ID
		}
	}
	return result, nil
}

// isSaveReportRequest reports whether the user explicitly asked for the
// report to be saved, which closes out the session.
func isSaveReportRequest(query string) bool {
	lower := strings.ToLower(query)
	if !strings.Contains(lower, "save") {
		return false
	}
	return strings.Contains(lower, "report") || strings.Contains(lower, "summary") ||
		strings.Contains(lower, "investigation")
}

func matchGroups(re *regexp.Regexp, text string, max int) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, max) {
		if len(m) > 1 {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
