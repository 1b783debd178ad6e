// Package handoff implements the handoff subsystem: transferring an ongoing
// conversation into a new, focused session carrying a compact,
// goal-directed summary instead of the original transcript. Three entry
// points feed the same pipeline — a user command, an agent-invoked tool
// call, and a host compaction hook — and all three end at the same place: a
// new session exists, parented to the old one, with its editor pre-filled
// and awaiting one keystroke to submit.
package handoff

import (
	"context"

	"github.com/pi-cli/pi/internal/chat"
)

// OutcomeKind is the flat, three-way taxonomy every summary-generating call
// collapses into. Keeping cancelled distinct from error matters for
// messaging: info vs. warning/error, and for whether a caller falls back to
// compaction.
type OutcomeKind int

const (
	OutcomePrompt OutcomeKind = iota
	OutcomeError
	OutcomeCancelled
)

// Outcome is the summary generator's return value: exactly one of a
// non-empty prompt, an error message, or cancellation.
type Outcome struct {
	Kind    OutcomeKind
	Text    string // set when Kind == OutcomePrompt
	Message string // set when Kind == OutcomeError
}

func PromptOutcome(text string) Outcome { return Outcome{Kind: OutcomePrompt, Text: text} }
func ErrorOutcome(message string) Outcome {
	return Outcome{Kind: OutcomeError, Message: message}
}
func CancelledOutcome() Outcome { return Outcome{Kind: OutcomeCancelled} }

// FileOps is the normalized, disjoint-by-construction record of files an
// agent touched during a conversation, derived purely from its tool-call
// history (no filesystem access).
type FileOps struct {
	Read     []string
	Modified []string
}

// IsEmpty reports whether both groups are empty, in which case the extractor
// produces no markers at all.
func (f FileOps) IsEmpty() bool {
	return len(f.Read) == 0 && len(f.Modified) == 0
}

// Collapsed is the extractor's output: a short collapsed-marker string for
// the editor, and the mapping from each marker to its full expansion.
type Collapsed struct {
	MarkersText string
	Expansions  map[string]string
}

// PendingHandoff is the tool path's one-slot deferred-switch register: at
// most one exists at a time, armed on tool execute, drained on agent_end.
type PendingHandoff struct {
	Prompt        string
	ParentSession string
	// Goal is the raw (unslugged) goal the handoff was requested for, carried
	// through to the drain so OnAgentEnd can name the new session file after it.
	Goal string
}

// ModelClient is the one-shot, non-streaming completion primitive the
// summary generator drives. It is the only way the core talks to a model.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt string, userMessage string) (ModelResponse, error)
}

// ModelResponse mirrors the host's completion result shape closely enough
// for the generator's failure-mapping rules in §4.1 to apply directly.
type ModelResponse struct {
	StopReason   string // "stop", "aborted", or "error"
	Text         string
	ErrorMessage string
}

// Loader is the cancellable modal the summary generator runs the model call
// inside. Run invokes fn with a context that is cancelled if the user
// dismisses the loader; Run itself returns fn's error, or a cancellation
// sentinel if the user aborted before fn completed.
type Loader interface {
	Run(ctx context.Context, fn func(ctx context.Context) (ModelResponse, error)) (ModelResponse, error, bool)
}

// UI is the editor/notification/modal surface the core mutates. Every
// adapter funnels its user-visible effects through this interface so the
// core never depends on a concrete frontend; the REPL supplies the one
// implementation this host wires up.
type UI interface {
	SetEditorText(text string)
	Notify(text string, severity Severity)
	// Select presents a titled set of choices and returns the chosen index,
	// or -1 if the user dismissed the prompt.
	Select(ctx context.Context, title string, choices []string) (int, error)
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// CompactPreparation is the restricted input the compaction-hook adapter
// summarizes from: the same head/tail split the host's own in-place
// strategy already computed for this cycle, not the full live branch.
// Re-gathering the full branch would re-introduce the overflow that
// triggered the hook in the first place.
type CompactPreparation struct {
	// MessagesToSummarize is the head the host has already decided is safe
	// to drop from the live branch (everything except its kept recent tail).
	MessagesToSummarize []chat.Message
	// PreviousSummary is the prior compaction's summary text, if the head
	// already starts with one, so the new summary can build on it instead
	// of re-deriving it from messages that are no longer in MessagesToSummarize.
	PreviousSummary string
}

// ConversationGatherer fetches the branch of messages belonging to the
// currently active session (using the host's compaction-aware projection)
// and serializes it for the summary generator.
type ConversationGatherer interface {
	// Gather returns a serialized transcript and the raw messages it is
	// based on (fileops extraction needs the raw messages; the summary
	// generator needs the serialized text). Returns ("", nil, nil) when the
	// branch has no messages.
	Gather(ctx context.Context) (serialized string, messages []chat.Message, err error)
}

// SessionFile is the thin contract the core needs from the host's session
// store: just enough to locate the active session file and create raw
// sessions. The privileged path is CommandContext.
type SessionFile interface {
	// CurrentPath returns the active session's file path, or "" if there is
	// no active session file yet.
	CurrentPath() string
	// NewSessionRaw creates a new session file parented to parentSession
	// (which may be "") without firing any host event fan-out, returning
	// the new file's path. nameHint is an already-slugged fragment (typically
	// the handoff goal) for the file name; "" when none is available.
	NewSessionRaw(parentSession, nameHint string) (string, error)
}

// CommandContext is the privileged new-session operation only the
// user-command adapter has access to: it creates a session and triggers the
// host's full session_switch(reason=new) event fan-out. nameHint is an
// already-slugged fragment for the new session file's name; "" when none.
type CommandContext interface {
	NewSessionWithFanout(parentSession, nameHint string) error
}
