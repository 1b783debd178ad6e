package handoff

import (
	"context"
	"strings"
)

// RunCommand is the slash-command entry point: "/handoff <goal>".
func (e *Engine) RunCommand(ctx context.Context, args string) (string, error) {
	goal := strings.TrimSpace(args)
	return e.HandleCommand(ctx, goal)
}
