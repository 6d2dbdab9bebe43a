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
	preferenceRe = regexp.MustCompile(`(?mi)^.*\b(?:user prefers?|prefers?|preference:|always use|never use)\b.*$`)

	// Infrastructure facts: statements naming concrete resources.
	infraRe = regexp.MustCompile(`(?mi)^.*\b(?:cluster|namespace|deployment|node|service|replica|region|database)\b\s+\S+.*\b(?:runs?|running|hosts?|located|configured|uses?|has)\b.*$`)
)

// extractPatterns scans a specialist response for reusable facts and
// auto-captures them into memory. Strictly best-effort: extraction and save
// failures are logged, never propagated.
func (a *Activities) extractPatterns(ctx context.Context, input ExecuteSpecialistInput, response string) {
	if a.memoryStore == nil || response == "" || input.ActorID == "" {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)

	for _, line := range capped(preferenceRe.FindAllString(response, 3), 3) {
		a.memoryStore.Save(ctx, memory.TypePreferences, input.UserID, map[string]interface{}{
			"kind":       "extracted_preference",
			"content":    strings.TrimSpace(line),
			"source":     input.AgentID,
			"created_at": now,
		}, "")
	}

	if input.SessionID == "" {
		return
	}
	for _, line := range capped(infraRe.FindAllString(response, 5), 5) {
		saved := a.memoryStore.Save(ctx, memory.TypeInfrastructure, input.ActorID, map[string]interface{}{
			"kind":       "extracted_fact",
			"content":    strings.TrimSpace(line),
			"source":     input.AgentID,
			"created_at": now,
		}, input.SessionID)
		if !saved {
			a.logger.Debug("Infrastructure fact save failed",
				zap.String("agent_id", input.AgentID),
			)
		}
	}
}

func capped(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
