package handoff

import (
	"fmt"
	"strings"
)

// AssembleOptions carries everything the prompt assembler needs beyond the
// summary body itself.
type AssembleOptions struct {
	SummaryText    string
	FileOps        *Collapsed // nil when there were no file operations
	ParentPath     string     // "" when there is no parent session
	Ancestors      []string   // full ancestry chain starting with ParentPath
	SkillDirective string     // e.g. "/skill:pi-session-query"
}

// AssemblePrompt composes the editor-ready prompt: body first (summary plus
// collapsed file-op markers), then — only when there is a parent — a header
// block naming the skill directive and the parent/ancestor sessions.
func AssemblePrompt(opts AssembleOptions) string {
	var body strings.Builder
	body.WriteString(opts.SummaryText)
	if opts.FileOps != nil && strings.TrimSpace(opts.FileOps.MarkersText) != "" {
		body.WriteString("\n\n")
		body.WriteString(opts.FileOps.MarkersText)
	}

	if strings.TrimSpace(opts.ParentPath) == "" {
		return body.String()
	}

	var header strings.Builder
	if strings.TrimSpace(opts.SkillDirective) != "" {
		header.WriteString(opts.SkillDirective)
		header.WriteString("\n\n")
	}
	header.WriteString(fmt.Sprintf("**Parent session:** `%s`", opts.ParentPath))
	header.WriteString("\n")

	if len(opts.Ancestors) > 1 {
		header.WriteString("\n**Ancestor sessions:**\n")
		for _, a := range opts.Ancestors[1:] {
			header.WriteString(fmt.Sprintf("- `%s`\n", a))
		}
	}
	header.WriteString("\n")

	return header.String() + body.String()
}
