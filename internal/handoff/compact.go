package handoff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pi-cli/pi/internal/chat"
)

const (
	compactChoiceHandoff  = "Handoff to new session"
	compactChoiceCompact  = "Compact context"
	compactChoiceContinue = "Continue without either"
)

// CompactAction tells the compaction call site what CompactWithHandoff
// decided, since "skip the fallback in-place strategy" and "a handoff
// actually happened" are different outcomes a caller must not conflate —
// the latter has already switched sessions and returns only the summary
// text, the former (the dialog's "Continue without either") does nothing at
// all. In neither case is the live message list, or its timestamps, touched.
type CompactAction int

const (
	// CompactFallback means the caller's own in-place compaction strategy
	// should run, exactly as if handoff were not wired in at all.
	CompactFallback CompactAction = iota
	// CompactApplied means a handoff happened through a raw session switch;
	// the returned summary is informational and the caller's message list
	// stays as it is.
	CompactApplied
	// CompactSuppressed means do nothing this cycle: no handoff, no
	// fallback compaction, no mutation of the caller's message list.
	CompactSuppressed
)

// CompactWithHandoff is the session_before_compact adapter: it gives the
// host's compaction trigger a handoff-shaped alternative to its normal
// in-place summarization, via the same three-way choice spec.md's compact
// hook describes (handoff / compact / continue without either).
//
// On CompactApplied it does not hand the caller a replacement message list:
// the raw session switch it performs already leaves the host's live branch
// stale, and that staleness is exactly what handoffAt plus FilterSinceHandoff
// exists to correct on the next model call — truncating messages here too
// would just leave a second, redundant copy of the summary sitting in the
// branch forever, since the caller's own timestamp reset on replacement
// can't tell a synthetic summary message apart from a real one.
func (e *Engine) CompactWithHandoff(ctx context.Context, prep CompactPreparation) (summary string, action CompactAction) {
	if (len(prep.MessagesToSummarize) == 0 && strings.TrimSpace(prep.PreviousSummary) == "") || e.UI == nil || e.Model == nil {
		return "", CompactFallback
	}

	choice, err := e.UI.Select(ctx, e.compactDialogTitle(), []string{compactChoiceHandoff, compactChoiceCompact, compactChoiceContinue})
	if err != nil || choice < 0 || choice == 1 {
		// Dismissed, errored, or "Compact context": let compaction proceed.
		return "", CompactFallback
	}
	if choice == 2 {
		e.notify("Continuing without compacting or handing off.", SeverityInfo)
		return "", CompactSuppressed
	}

	conversationText := SerializeConversation(prep.MessagesToSummarize)
	if prev := strings.TrimSpace(prep.PreviousSummary); prev != "" {
		conversationText = prev + "\n\n## Recent Conversation\n\n" + conversationText
	}
	outcome := GenerateSummary(ctx, e.Model, e.Loader, conversationText, "")
	if outcome.Kind != OutcomePrompt {
		if outcome.Kind == OutcomeError {
			e.notify(fmt.Sprintf("Handoff failed: %s. Compacting instead.", outcome.Message), SeverityWarning)
		}
		return "", CompactFallback
	}

	var fileOpsBlock *Collapsed
	ops := ExtractFileOps(prep.MessagesToSummarize)
	if collapsed, ok := Collapse(ops); ok {
		fileOpsBlock = &collapsed
		e.registerMarkers(&collapsed)
	}

	var parentPath string
	var ancestors []string
	if e.SessionFile != nil {
		parentPath = e.SessionFile.CurrentPath()
		if parentPath != "" {
			ancestors = ancestryFn(parentPath)
		}
	}
	prompt := AssemblePrompt(AssembleOptions{
		SummaryText:    outcome.Text,
		FileOps:        fileOpsBlock,
		ParentPath:     parentPath,
		Ancestors:      ancestors,
		SkillDirective: e.SkillDirective,
	})

	if e.SessionFile != nil {
		if _, err := e.SessionFile.NewSessionRaw(parentPath, ""); err != nil {
			e.notify(fmt.Sprintf("Handoff session switch failed: %v. Compacting instead.", err), SeverityWarning)
			return "", CompactFallback
		}
	}

	e.mu.Lock()
	e.handoffAt = time.Now().UTC().Format(time.RFC3339)
	e.mu.Unlock()

	e.setEditorText(prompt)
	e.notify("Handoff ready — edit if needed, press Enter to send.", SeverityInfo)

	return outcome.Text, CompactApplied
}

// compactDialogTitle renders the three-way prompt's context-usage line,
// falling back to the literal "high" per the contract when the host cannot
// report a percentage (ContextPercent is nil, or its second return is
// false).
func (e *Engine) compactDialogTitle() string {
	if e.ContextPercent != nil {
		if pct, ok := e.ContextPercent(); ok {
			return fmt.Sprintf("Context is %d%% full. Choose how to proceed:", pct)
		}
	}
	return "Context is high. Choose how to proceed:"
}

// FilterSinceHandoff implements the context event's timestamp-based
// filtering: after a raw session switch, everything the live in-memory
// message list still carries from before the cutover is dropped, unless
// that would leave nothing at all, in which case the original list passes
// through untouched. timestamps[i] corresponds to messages[i].
func (e *Engine) FilterSinceHandoff(messages []chat.Message, timestamps []string) []chat.Message {
	e.mu.Lock()
	cutover := e.handoffAt
	e.mu.Unlock()
	if cutover == "" {
		return messages
	}

	filtered := make([]chat.Message, 0, len(messages))
	for i, msg := range messages {
		ts := ""
		if i < len(timestamps) {
			ts = timestamps[i]
		}
		if ts == "" || ts >= cutover {
			filtered = append(filtered, msg)
		}
	}
	if len(filtered) == 0 {
		return messages
	}
	return filtered
}
