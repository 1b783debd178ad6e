package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pi-cli/pi/internal/chat"
)

// Tool adapts Engine.HandleTool to the host's tools.Tool interface,
// letting the model itself request a handoff mid-conversation the same way
// it requests task delegation via the task tool.
type Tool struct {
	engine *Engine
}

// NewTool is grounded on tools.TaskTool: a single-argument tool whose
// Execute defers to a runner the host wires in, rather than doing the work
// itself.
func NewTool(engine *Engine) *Tool {
	return &Tool{engine: engine}
}

// SetEngine rewires the tool's engine after construction, mirroring
// tools.TaskTool.SetRunner: bootstrap builds the tool before the engine's
// own collaborators (which need the orchestrator) exist yet.
func (t *Tool) SetEngine(engine *Engine) {
	t.engine = engine
}

func (t *Tool) Name() string { return "handoff" }

func (t *Tool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Summarize the current conversation and open a new session pre-filled with that summary, carrying context forward without the original transcript. Use this when the current conversation has grown long or has drifted from the user's actual goal and a fresh, focused session would serve better.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"goal": map[string]any{
						"type":        "string",
						"description": "What the new session should focus on",
					},
				},
				"required": []string{"goal"},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.engine == nil {
		return "", fmt.Errorf("handoff engine unavailable")
	}
	var in struct {
		Goal string `json:"goal"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("handoff args: %w", err)
	}
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		return "", fmt.Errorf("handoff goal is empty")
	}
	return t.engine.HandleTool(ctx, goal)
}
