package formatting

import "text/template"

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// approvalTemplate renders a plan awaiting human approval. This path is fully
// deterministic; no model call is involved.
var approvalTemplate = template.Must(template.New("approval").Funcs(templateFuncs).Parse(
	`## Investigation Plan (Approval Required)

**Query:** {{.Query}}

**Complexity:** {{.Complexity}}

**Proposed steps:**
{{- range $i, $step := .Steps}}
{{add $i 1}}. {{$step}}
{{- end}}
{{- if .Reasoning}}

**Reasoning:** {{.Reasoning}}
{{- end}}

This plan requires approval before execution. Reply with "approve" to proceed, describe changes to modify the plan, or ask a question about it.
`))

// reportTemplate renders the final grouped investigation report.
var reportTemplate = template.Must(template.New("report").Funcs(templateFuncs).Parse(
	`# Investigation Results

**Query:** {{.Query}}
{{- if .ExecutiveSummary}}

## Executive Summary

{{.ExecutiveSummary}}
{{- end}}
{{- range .Sections}}

## {{.Name}}

{{.Content}}
{{- if .Steps}}

**Recommended steps:**
{{- range $i, $step := .Steps}}
{{add $i 1}}. {{$step}}
{{- end}}
{{- end}}
{{- end}}
`))

// fallbackSummaryTemplate is the last-resort response when both deterministic
// formatting and model synthesis fail. The aggregator never errors out to
// the user.
var fallbackSummaryTemplate = template.Must(template.New("fallback").Parse(
	`# Investigation Results

**Query:** {{.Query}}

The investigation completed, but the detailed report could not be generated.
{{- if .Agents}}

Specialists consulted: {{range $i, $a := .Agents}}{{if $i}}, {{end}}{{$a}}{{end}}.
{{- end}}

Please review the individual specialist findings or retry the investigation.
`))

// GenericExecutiveSummary is the fixed text used when the executive summary
// model call fails; it degrades the summary, not the report.
const GenericExecutiveSummary = "The specialists below completed their investigation. Detailed findings follow."
