package handoff

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pi-cli/pi/internal/chat"
)

func TestSerializeConversationRoles(t *testing.T) {
	messages := []chat.Message{
		{Role: "user", Content: "fix the bug"},
		{Role: "assistant", Content: "looking into it", ToolCalls: []chat.ToolCall{
			{Function: chat.ToolCallFunction{Name: "read", Arguments: `{"path":"a.go"}`}},
		}},
		{Role: "tool", Name: "read", Content: "file contents"},
	}
	got := SerializeConversation(messages)
	if !strings.Contains(got, "User: fix the bug") {
		t.Fatalf("missing user line: %q", got)
	}
	if !strings.Contains(got, "Assistant: looking into it") {
		t.Fatalf("missing assistant line: %q", got)
	}
	if !strings.Contains(got, "Tool call: read(") {
		t.Fatalf("missing tool call line: %q", got)
	}
	if !strings.Contains(got, "Tool result [read]: file contents") {
		t.Fatalf("missing tool result line: %q", got)
	}
}

func TestSerializeConversationEmpty(t *testing.T) {
	if got := SerializeConversation(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestNewConversationGathererNoMessages(t *testing.T) {
	g := NewConversationGatherer(func() ([]chat.Message, error) { return nil, nil })
	serialized, messages, err := g.Gather(context.Background())
	if err != nil || serialized != "" || messages != nil {
		t.Fatalf("expected empty gather result, got (%q, %v, %v)", serialized, messages, err)
	}
}

func TestNewConversationGathererPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	g := NewConversationGatherer(func() ([]chat.Message, error) { return nil, wantErr })
	_, _, err := g.Gather(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewConversationGathererSerializes(t *testing.T) {
	g := NewConversationGatherer(func() ([]chat.Message, error) {
		return []chat.Message{{Role: "user", Content: "hello"}}, nil
	})
	serialized, messages, err := g.Gather(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if !strings.Contains(serialized, "User: hello") {
		t.Fatalf("unexpected serialized text: %q", serialized)
	}
}
