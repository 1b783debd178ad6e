package sessionquery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/handoff"
	"github.com/pi-cli/pi/internal/sessionfile"
)

type fakeModel struct {
	text string
	err  error
}

func (f fakeModel) Complete(context.Context, string, string) (handoff.ModelResponse, error) {
	if f.err != nil {
		return handoff.ModelResponse{}, f.err
	}
	return handoff.ModelResponse{StopReason: "stop", Text: f.text}, nil
}

func TestExecuteAnswersFromSessionFile(t *testing.T) {
	dir := t.TempDir()
	m, err := sessionfile.NewManager(dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	path, err := m.NewSession("", "")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := m.AppendMessage(path, chat.Message{Role: "user", Content: "what should we name the package"}, time.Now()); err != nil {
		t.Fatalf("append: %v", err)
	}

	tool := NewTool(fakeModel{text: "call it sessionquery"})
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"session_path":"`+path+`","question":"what name did we pick"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "call it sessionquery" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestExecuteRejectsMissingArgs(t *testing.T) {
	tool := NewTool(fakeModel{text: "x"})
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"session_path":"","question":"q"}`)); err == nil {
		t.Fatal("expected error for empty session_path")
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"session_path":"/a","question":""}`)); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestExecuteHandlesMissingSessionFile(t *testing.T) {
	tool := NewTool(fakeModel{text: "x"})
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"session_path":"/does/not/exist.jsonl","question":"q"}`))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
