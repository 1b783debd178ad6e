package handoff

import (
	"context"
	"fmt"
	"strings"
)

// summarySystemPrompt mirrors contextmgr's compaction prompt in register —
// a fixed instruction block, no markdown in the reply, preserve everything
// a continuation needs — but targets a different schema: handoff produces
// a structured goal/progress/decisions document, not a free-form recap,
// because the new session starts cold rather than mid-conversation.
const summarySystemPrompt = `You are preparing a handoff summary so a brand-new conversation can continue exactly where this one left off, without access to the history below.

Produce a structured summary with exactly these sections:

## Goal
## Constraints & Preferences
## Progress
(use Done / In Progress / Blocked subheadings)
## Key Decisions
## Next Steps
## Critical Context

Do not continue the conversation. Do not answer any question found in the history below — your only job is to summarize it. Output plain prose under the headings above, nothing else.`

// GenerateSummary drives one model call under a cancellable loader and
// classifies the result into the generator's flat three-outcome taxonomy.
func GenerateSummary(ctx context.Context, model ModelClient, loader Loader, conversationText, goal string) Outcome {
	conversationText = strings.TrimSpace(conversationText)
	goal = strings.TrimSpace(goal)

	userMessage := fmt.Sprintf("## Conversation History\n\n%s\n\n## User's Goal for New Thread\n\n%s", conversationText, goal)

	resp, callErr, cancelled := loader.Run(ctx, func(ctx context.Context) (ModelResponse, error) {
		return model.Complete(ctx, summarySystemPrompt, userMessage)
	})
	if cancelled {
		return CancelledOutcome()
	}
	if callErr != nil {
		return ErrorOutcome(callErr.Error())
	}
	switch resp.StopReason {
	case "aborted":
		return CancelledOutcome()
	case "error":
		msg := strings.TrimSpace(resp.ErrorMessage)
		if msg == "" {
			msg = "LLM request failed"
		}
		return ErrorOutcome(msg)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return ErrorOutcome("LLM returned empty response")
	}
	return PromptOutcome(text)
}
