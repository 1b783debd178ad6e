package handoff

import (
	"context"
	"errors"
)

// ContextLoader is the default Loader: it just runs fn under ctx and
// reports cancellation when ctx was cancelled, rather than popping any
// dedicated UI of its own. This matches how the REPL already wires Esc to
// cancel the turn's context (runtimeController.handleRuntimeKey) — a
// summarization call made during that turn is cancelled the same way any
// other in-flight model call is, with no separate modal required.
type ContextLoader struct{}

func (ContextLoader) Run(ctx context.Context, fn func(context.Context) (ModelResponse, error)) (ModelResponse, error, bool) {
	resp, err := fn(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)) {
		return ModelResponse{}, nil, true
	}
	return resp, err, false
}
