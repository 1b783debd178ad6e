package handoff

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeModel struct {
	resp ModelResponse
	err  error
}

func (f fakeModel) Complete(_ context.Context, _ string, _ string) (ModelResponse, error) {
	return f.resp, f.err
}

// passthroughLoader runs fn synchronously and never reports cancellation.
type passthroughLoader struct{}

func (passthroughLoader) Run(ctx context.Context, fn func(context.Context) (ModelResponse, error)) (ModelResponse, error, bool) {
	resp, err := fn(ctx)
	return resp, err, false
}

// cancellingLoader reports the user dismissed the loader before fn's result mattered.
type cancellingLoader struct{}

func (cancellingLoader) Run(context.Context, func(context.Context) (ModelResponse, error)) (ModelResponse, error, bool) {
	return ModelResponse{}, nil, true
}

func TestGenerateSummaryHappyPath(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "stop", Text: "## Goal\ndo the thing"}}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "User: hi", "continue the refactor")
	if out.Kind != OutcomePrompt {
		t.Fatalf("expected OutcomePrompt, got %v (%q)", out.Kind, out.Message)
	}
	if out.Text != "## Goal\ndo the thing" {
		t.Fatalf("unexpected text: %q", out.Text)
	}
}

func TestGenerateSummaryCancelledByLoader(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "stop", Text: "irrelevant"}}
	out := GenerateSummary(context.Background(), model, cancellingLoader{}, "history", "goal")
	if out.Kind != OutcomeCancelled {
		t.Fatalf("expected OutcomeCancelled, got %v", out.Kind)
	}
}

func TestGenerateSummaryAbortedStopReason(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "aborted"}}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "history", "goal")
	if out.Kind != OutcomeCancelled {
		t.Fatalf("expected OutcomeCancelled for aborted stop reason, got %v", out.Kind)
	}
}

func TestGenerateSummaryErrorStopReasonWithMessage(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "error", ErrorMessage: "rate limited"}}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "history", "goal")
	if out.Kind != OutcomeError || out.Message != "rate limited" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestGenerateSummaryErrorStopReasonWithoutMessageDefaults(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "error"}}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "history", "goal")
	if out.Kind != OutcomeError || out.Message != "LLM request failed" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestGenerateSummaryEmptyTextIsError(t *testing.T) {
	model := fakeModel{resp: ModelResponse{StopReason: "stop", Text: "   "}}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "history", "goal")
	if out.Kind != OutcomeError {
		t.Fatalf("expected OutcomeError for empty text, got %v", out.Kind)
	}
}

func TestGenerateSummaryModelCallErrorIsError(t *testing.T) {
	model := fakeModel{err: errors.New("network down")}
	out := GenerateSummary(context.Background(), model, passthroughLoader{}, "history", "goal")
	if out.Kind != OutcomeError || !strings.Contains(out.Message, "network down") {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}
