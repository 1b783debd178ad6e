package repl

import (
	"context"
	"fmt"
	"testing"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/handoff"
)

func TestExpandHandoffMarkersNilEngine(t *testing.T) {
	got := expandHandoffMarkers("see [+2 read filenames]", nil)
	if got != "see [+2 read filenames]" {
		t.Fatalf("expected passthrough with nil engine, got %q", got)
	}
}

func TestExpandHandoffMarkersNoMatch(t *testing.T) {
	got := expandHandoffMarkers("nothing to expand here", nil)
	if got != "nothing to expand here" {
		t.Fatalf("unexpected mutation: %q", got)
	}
}

type markerFakeModel struct{}

func (markerFakeModel) Complete(context.Context, string, string) (handoff.ModelResponse, error) {
	return handoff.ModelResponse{StopReason: "stop", Text: "summary"}, nil
}

type markerFakeGatherer struct{}

func (markerFakeGatherer) Gather(context.Context) (string, []chat.Message, error) {
	return "conv", []chat.Message{
		{Role: "assistant", ToolCalls: []chat.ToolCall{
			toolCallWithPath("read", "a.go"),
			toolCallWithPath("write", "b.go"),
		}},
	}, nil
}

func toolCallWithPath(name, path string) chat.ToolCall {
	return chat.ToolCall{
		Type:     "function",
		Function: chat.ToolCallFunction{Name: name, Arguments: fmt.Sprintf(`{"path":%q}`, path)},
	}
}

type markerFakeSessionFile struct{}

func (markerFakeSessionFile) CurrentPath() string                          { return "" }
func (markerFakeSessionFile) NewSessionRaw(string, string) (string, error) { return "", nil }

type markerFakeCommandContext struct{}

func (markerFakeCommandContext) NewSessionWithFanout(string, string) error { return nil }

type markerFakeUI struct{}

func (markerFakeUI) SetEditorText(string)            {}
func (markerFakeUI) Notify(string, handoff.Severity) {}
func (markerFakeUI) Select(context.Context, string, []string) (int, error) {
	return -1, nil
}

func newMarkerTestEngine(t *testing.T) *handoff.Engine {
	t.Helper()
	return handoff.NewEngine(markerFakeModel{}, handoff.ContextLoader{}, markerFakeUI{}, markerFakeGatherer{}, markerFakeSessionFile{}, markerFakeCommandContext{}, "")
}

func TestExpandHandoffMarkersClearsUnmatchedMarkers(t *testing.T) {
	engine := newMarkerTestEngine(t)
	if _, err := engine.HandleCommand(context.Background(), "goal"); err != nil {
		t.Fatalf("unexpected error arming markers: %v", err)
	}

	// The user edits the prompt before submitting, keeping only the read
	// marker; the modified marker never appears in the submitted text.
	got := expandHandoffMarkers("see [+1 read filename]", engine)
	if got == "see [+1 read filename]" {
		t.Fatalf("expected the read marker to expand, got %q", got)
	}

	// Even though "[+1 modified filename]" was never in the submitted text,
	// the whole store must be cleared after the pass: a later unrelated
	// occurrence of that literal string must not spuriously expand.
	later := expandHandoffMarkers("oops [+1 modified filename] again", engine)
	if later != "oops [+1 modified filename] again" {
		t.Fatalf("expected stale marker to no longer expand, got %q", later)
	}
}

func TestExpandHandoffMarkersClearsMatchedMarkerStore(t *testing.T) {
	engine := newMarkerTestEngine(t)
	if _, err := engine.HandleCommand(context.Background(), "goal"); err != nil {
		t.Fatalf("unexpected error arming markers: %v", err)
	}

	first := expandHandoffMarkers("see [+1 read filename]", engine)
	second := expandHandoffMarkers("see [+1 read filename]", engine)
	if first == second {
		t.Fatalf("expected the second pass to see an unexpanded marker, got %q both times", first)
	}
}
