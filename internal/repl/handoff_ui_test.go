package repl

import (
	"context"
	"strings"
	"testing"
)

func TestReplUISelectParsesChoice(t *testing.T) {
	u := &replUI{loop: &Loop{}, selectInput: strings.NewReader("2\n")}
	got, err := u.Select(context.Background(), "pick one", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected index 1, got %d", got)
	}
}

func TestReplUISelectInvalidInputIsDismissal(t *testing.T) {
	u := &replUI{loop: &Loop{}, selectInput: strings.NewReader("nope\n")}
	got, err := u.Select(context.Background(), "pick one", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -1 {
		t.Fatalf("expected dismissal (-1), got %d", got)
	}
}

func TestReplUISelectNoChoicesErrors(t *testing.T) {
	u := &replUI{loop: &Loop{}, selectInput: strings.NewReader("")}
	if _, err := u.Select(context.Background(), "pick one", nil); err == nil {
		t.Fatal("expected error for empty choice list")
	}
}
