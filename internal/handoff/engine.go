package handoff

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pi-cli/pi/internal/chat"
)

// Engine bundles every collaborator the three entry points share and owns
// the state that has to survive between events: the tool path's one-slot
// deferred switch, the compaction path's handoff timestamp, and the
// single-use marker store for editor-text expansion.
type Engine struct {
	Model       ModelClient
	Loader      Loader
	UI          UI
	Gatherer    ConversationGatherer
	SessionFile SessionFile
	Commands    CommandContext

	SkillDirective string

	// ContextPercent reports how full the active context window is, for the
	// compaction-hook dialog's "{pct}% full" line. Nil or a false second
	// return falls back to the literal "high".
	ContextPercent func() (int, bool)

	// ResetUndo is called after the tool path's agent_end drain completes a
	// raw session switch, the same way the host's own /new resets undo
	// history. Nil is a valid no-op for hosts with no undo stack to clear.
	ResetUndo func()

	mu          sync.Mutex
	pending     *PendingHandoff
	handoffAt   string
	markerStore map[string]string
}

// NewEngine wires the collaborators together. Any of them may be nil in a
// host that has not yet built the corresponding surface; callers that need
// a given collaborator check for nil themselves (HandleCommand needs
// Commands, HandleTool needs nothing but Model/Loader/Gatherer).
func NewEngine(model ModelClient, loader Loader, ui UI, gatherer ConversationGatherer, sf SessionFile, cmds CommandContext, skillDirective string) *Engine {
	return &Engine{
		Model:          model,
		Loader:         loader,
		UI:             ui,
		Gatherer:       gatherer,
		SessionFile:    sf,
		Commands:       cmds,
		SkillDirective: skillDirective,
		markerStore:    make(map[string]string),
	}
}

// buildPrompt runs the pipeline the command and tool entry points share:
// gather the active branch, summarize it, extract and collapse file
// operations, and assemble the final editor-ready prompt. It returns the
// assembled prompt plus the outcome the caller should report on failure.
func (e *Engine) buildPrompt(ctx context.Context, goal string) (string, Outcome) {
	if e.Model == nil {
		return "", ErrorOutcome("no model available")
	}

	var conversationText string
	var messages []chat.Message
	var gathered bool
	if e.Gatherer != nil {
		text, msgs, err := e.Gatherer.Gather(ctx)
		if err != nil {
			return "", ErrorOutcome(fmt.Sprintf("gather conversation: %v", err))
		}
		conversationText = text
		messages = msgs
		gathered = true
	}
	if gathered && len(messages) == 0 {
		return "", ErrorOutcome("nothing to hand off: conversation is empty")
	}
	if gathered && EstimatedTokens(messages) > largeBranchTokenWarning {
		e.notify("Handoff conversation is large; the summary may omit earlier detail.", SeverityWarning)
	}

	outcome := GenerateSummary(ctx, e.Model, e.Loader, conversationText, goal)
	if outcome.Kind != OutcomePrompt {
		return "", outcome
	}

	var fileOpsBlock *Collapsed
	if gathered {
		ops := ExtractFileOps(messages)
		if collapsed, ok := Collapse(ops); ok {
			fileOpsBlock = &collapsed
			e.registerMarkers(&collapsed)
		}
	}

	var parentPath string
	var ancestors []string
	if e.SessionFile != nil {
		parentPath = e.SessionFile.CurrentPath()
		if parentPath != "" {
			ancestors = ancestryFn(parentPath)
		}
	}

	prompt := AssemblePrompt(AssembleOptions{
		SummaryText:    outcome.Text,
		FileOps:        fileOpsBlock,
		ParentPath:     parentPath,
		Ancestors:      ancestors,
		SkillDirective: e.SkillDirective,
	})
	return prompt, outcome
}

// ancestryFn is a package-level indirection so callers outside sessionfile
// (which Engine must not import, to keep handoff decoupled from the host's
// on-disk journal format) can supply ancestry resolution. Hosts wire it to
// sessionfile.Ancestry at startup.
var ancestryFn = func(string) []string { return nil }

// SetAncestryResolver lets the host supply the ancestry walker without
// handoff importing the sessionfile package directly.
func SetAncestryResolver(fn func(parentPath string) []string) {
	if fn == nil {
		fn = func(string) []string { return nil }
	}
	ancestryFn = fn
}

// HandleCommand implements the user /handoff <goal> entry point: build the
// prompt, create a new session with the host's full event fan-out, and
// leave the new session's editor pre-filled.
func (e *Engine) HandleCommand(ctx context.Context, goal string) (string, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		e.notify("Handoff failed: goal is empty.", SeverityError)
		return "", fmt.Errorf("handoff: goal is empty")
	}

	prompt, outcome := e.buildPrompt(ctx, goal)
	switch outcome.Kind {
	case OutcomeCancelled:
		e.notify("Handoff cancelled.", SeverityInfo)
		return "Handoff cancelled.", nil
	case OutcomeError:
		e.notify("Handoff failed: "+outcome.Message, SeverityError)
		return "", fmt.Errorf("handoff: %s", outcome.Message)
	}

	var parentPath string
	if e.SessionFile != nil {
		parentPath = e.SessionFile.CurrentPath()
	}
	if e.Commands != nil {
		if err := e.Commands.NewSessionWithFanout(parentPath, Slug(goal)); err != nil {
			return "", fmt.Errorf("create handoff session: %w", err)
		}
	}
	// A privileged switch always supersedes any raw switch that may still be
	// in flight: clear handoffAt so FilterSinceHandoff does not go on
	// dropping messages against a cutover this switch just made irrelevant.
	e.mu.Lock()
	e.handoffAt = ""
	e.mu.Unlock()
	e.setEditorText(prompt)
	e.notify("Handoff ready in new session.", SeverityInfo)
	return "Started a new session with a handoff summary.", nil
}

// HandleTool implements the agent-invoked handoff tool: it runs the same
// pipeline but cannot switch sessions immediately, since the turn loop that
// is calling it is still mid-step. It arms the one-slot pending register
// instead; OnAgentEnd drains it once the turn has fully returned.
func (e *Engine) HandleTool(ctx context.Context, goal string) (string, error) {
	prompt, outcome := e.buildPrompt(ctx, goal)
	switch outcome.Kind {
	case OutcomeCancelled:
		return "Handoff cancelled.", nil
	case OutcomeError:
		return "", fmt.Errorf("handoff: %s", outcome.Message)
	}

	var parentPath string
	if e.SessionFile != nil {
		parentPath = e.SessionFile.CurrentPath()
	}

	e.mu.Lock()
	e.pending = &PendingHandoff{Prompt: prompt, ParentSession: parentPath, Goal: goal}
	e.mu.Unlock()

	return "Handoff prepared. It will open in a new session once this turn finishes.", nil
}

// OnAgentEnd drains the tool path's pending handoff, if any, performing the
// deferred session switch now that the turn loop has returned. Unlike the
// command path, this is a raw switch — the turn loop that just finished is
// still holding the pre-switch in-memory message list, so no privileged
// fan-out runs here. Recording handoffAt lets FilterSinceHandoff correct
// that staleness on the next model call the same way the compact-hook path
// does.
func (e *Engine) OnAgentEnd(context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	if pending == nil {
		return nil
	}
	if e.SessionFile != nil {
		if _, err := e.SessionFile.NewSessionRaw(pending.ParentSession, Slug(pending.Goal)); err != nil {
			e.notify("Handoff failed: "+err.Error(), SeverityError)
			return err
		}
	}
	e.mu.Lock()
	e.handoffAt = time.Now().UTC().Format(time.RFC3339)
	e.mu.Unlock()
	if e.ResetUndo != nil {
		e.ResetUndo()
	}
	e.setEditorText(pending.Prompt)
	e.notify("Handoff ready in new session.", SeverityInfo)
	return nil
}

// Pending reports the tool path's armed-but-undrained handoff, for hosts
// that want to surface "a handoff is waiting" state before agent_end fires.
func (e *Engine) Pending() *PendingHandoff {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// systemPromptHint is appended to the outgoing system prompt on every turn
// so the model knows a handoff is available and when to suggest one.
const systemPromptHint = "[HANDOFF]\n" +
	"The /handoff command starts a fresh session pre-loaded with a summary " +
	"of this conversation and a list of files touched so far. It is " +
	"especially useful right after a planning phase, before the work " +
	"itself begins. Suggest it to the user when context usage is high " +
	"rather than letting older turns silently fall out of context."

// SystemPromptHint returns the fixed text block hosts append to the system
// prompt on before_agent_start. Callers should call this unconditionally;
// it is pure text with no side effects.
func (e *Engine) SystemPromptHint() string {
	return systemPromptHint
}

// ExpandMarker looks up and consumes a collapsed file-op marker's
// expansion, implementing the single-use marker store: the same marker
// typed twice expands only the first time.
func (e *Engine) ExpandMarker(marker string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	text, ok := e.markerStore[marker]
	if ok {
		delete(e.markerStore, marker)
	}
	return text, ok
}

// ClearMarkers drops every remaining marker expansion, whether or not it was
// looked up. Callers invoke this once per expansion pass over submitted
// input, after any markers in that text have been expanded, so a marker the
// user edited out of their submission does not linger to spuriously expand a
// later unrelated occurrence of the same literal string.
func (e *Engine) ClearMarkers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markerStore = make(map[string]string)
}

// registerMarkers records a Collapsed's expansions so a later ExpandMarker
// call (typically fired from the host's input event) can resolve them.
func (e *Engine) registerMarkers(c *Collapsed) {
	if c == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for marker, expansion := range c.Expansions {
		e.markerStore[marker] = expansion
	}
}

func (e *Engine) setEditorText(text string) {
	if e.UI != nil {
		e.UI.SetEditorText(text)
	}
}

func (e *Engine) notify(text string, sev Severity) {
	if e.UI != nil {
		e.UI.Notify(text, sev)
	}
}
