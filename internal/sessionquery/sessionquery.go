// Package sessionquery implements the /skill:pi-session-query directive a
// handoff prompt's header references: a tool that lets the new session's
// agent read an arbitrary sibling or ancestor session file and ask the
// model a question about it, without pulling that session's full history
// into the current one.
package sessionquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/handoff"
	"github.com/pi-cli/pi/internal/sessionfile"
)

const systemPrompt = `You are answering a question about a previous, otherwise-inaccessible conversation. The full transcript of that conversation is provided below. Answer only the question asked, using only the transcript as context — do not assume you are continuing that conversation.`

// Tool implements tools.Tool, grounded on tools.TaskTool's Execute-defers-
// to-an-injected-collaborator shape, but asking a model about another
// session's file contents instead of running a subagent.
type Tool struct {
	model handoff.ModelClient
}

func NewTool(model handoff.ModelClient) *Tool {
	return &Tool{model: model}
}

func (t *Tool) Name() string { return "session_query" }

func (t *Tool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Ask a question about another session (e.g. the parent session a handoff was created from) by reading its file directly. Use this instead of asking the user to repeat context from a previous conversation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_path": map[string]any{
						"type":        "string",
						"description": "Path to the session file to read, e.g. the parent session path from a handoff header",
					},
					"question": map[string]any{
						"type": "string",
					},
				},
				"required": []string{"session_path", "question"},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.model == nil {
		return "", fmt.Errorf("session_query model unavailable")
	}
	var in struct {
		SessionPath string `json:"session_path"`
		Question    string `json:"question"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("session_query args: %w", err)
	}
	path := strings.TrimSpace(in.SessionPath)
	if path == "" {
		return "", fmt.Errorf("session_query session_path is empty")
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return "", fmt.Errorf("session_query question is empty")
	}

	messages, err := sessionfile.ReadBranch(path)
	if err != nil {
		return "", fmt.Errorf("read session %s: %w", path, err)
	}
	if len(messages) == 0 {
		return "That session has no messages.", nil
	}

	transcript := handoff.SerializeConversation(messages)
	userMessage := fmt.Sprintf("## Session Transcript\n\n%s\n\n## Question\n\n%s", transcript, question)
	resp, err := t.model.Complete(ctx, systemPrompt, userMessage)
	if err != nil {
		return "", fmt.Errorf("session_query: %w", err)
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", fmt.Errorf("session_query: model returned an empty answer")
	}
	return answer, nil
}
