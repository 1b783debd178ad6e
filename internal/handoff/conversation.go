package handoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/contextmgr"
)

// SerializeConversation renders a branch of messages into the role-prefixed
// transcript text the summary generator expects, sharing its textual format
// with compaction's own buildSummaryInput so the model sees one consistent
// shape whether it is compacting in place or receiving a handoff.
func SerializeConversation(messages []chat.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "user":
			b.WriteString("User: ")
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString("\n\n")
		case "assistant":
			if content := strings.TrimSpace(m.Content); content != "" {
				b.WriteString("Assistant: ")
				b.WriteString(content)
				b.WriteString("\n\n")
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "Tool call: %s(%s)\n", tc.Function.Name, tc.Function.Arguments)
			}
		case "tool":
			if m.Name != "" {
				fmt.Fprintf(&b, "Tool result [%s]: %s\n\n", m.Name, strings.TrimSpace(m.Content))
			}
		}
	}
	return b.String()
}

// largeBranchTokenWarning is the rough size past which a single non-streaming
// summarization call risks the model truncating or skimming earlier turns.
// It is deliberately generous: the command/tool paths never split the branch
// the way the compaction hook does, so this is a warning, not a hard limit.
const largeBranchTokenWarning = 60_000

// EstimatedTokens sizes a branch against a context limit before it is handed
// to the summary generator, so the host can warn (or trim further) when a
// branch is too large for even a single summarization call.
func EstimatedTokens(messages []chat.Message) int {
	return contextmgr.EstimateTokens(messages)
}

// branchGatherer adapts a raw branch-reading function into ConversationGatherer,
// filtering to message entries and serializing with SerializeConversation.
type branchGatherer struct {
	branch func() ([]chat.Message, error)
}

// NewConversationGatherer wraps a function that returns the current
// session's compaction-aware branch (already filtered to message entries by
// the session store) into a ConversationGatherer.
func NewConversationGatherer(branch func() ([]chat.Message, error)) ConversationGatherer {
	return &branchGatherer{branch: branch}
}

func (g *branchGatherer) Gather(_ context.Context) (string, []chat.Message, error) {
	messages, err := g.branch()
	if err != nil {
		return "", nil, err
	}
	if len(messages) == 0 {
		return "", nil, nil
	}
	return SerializeConversation(messages), messages, nil
}
