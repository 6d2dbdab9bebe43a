package formatting

import (
	"regexp"
	"strings"
)

var (
	numberedStepRe = regexp.MustCompile(`^\s*(?:\d+[.)]|Step\s+\d+[:.]?)\s+(.+)$`)
	bulletStepRe   = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)
)

// ExtractRunbookSteps pulls ordered procedure steps out of runbook-style
// specialist output. Numbered lines take precedence; if none are found,
// bulleted lines are used instead. Returns nil when the text has no
// recognizable step structure.
func ExtractRunbookSteps(text string) []string {
	var numbered, bulleted []string
	for _, line := range strings.Split(text, "\n") {
		if m := numberedStepRe.FindStringSubmatch(line); m != nil {
			numbered = append(numbered, strings.TrimSpace(m[1]))
			continue
		}
		if m := bulletStepRe.FindStringSubmatch(line); m != nil {
			bulleted = append(bulleted, strings.TrimSpace(m[1]))
		}
	}
	if len(numbered) > 0 {
		return numbered
	}
	return bulleted
}
