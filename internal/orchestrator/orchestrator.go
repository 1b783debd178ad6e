package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pi-cli/pi/internal/agent"
	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/config"
	"github.com/pi-cli/pi/internal/contextmgr"
	"github.com/pi-cli/pi/internal/handoff"
	"github.com/pi-cli/pi/internal/permission"
	"github.com/pi-cli/pi/internal/provider"
	"github.com/pi-cli/pi/internal/sessionfile"
	"github.com/pi-cli/pi/internal/storage"
	"github.com/pi-cli/pi/internal/tools"
)

type Orchestrator struct {
	provider          provider.Provider
	registry          *tools.Registry
	maxSteps          int
	onApproval        ApprovalFunc
	onTextChunk       TextChunkFunc
	onToolEvent       ToolEventFunc
	onTodoUpdate      OnTodoUpdate
	onContextUpdate   OnContextUpdate
	messages          []chat.Message
	messageTimestamps []string
	policy            *permission.Policy
	assembler         *contextmgr.Assembler
	compaction        config.CompactionConfig
	contextTokenLimit int
	activeAgent       agent.Profile
	agents            config.AgentConfig
	lastCompaction    string
	workflow          config.WorkflowConfig
	workspaceRoot     string
	compStrategy      contextmgr.CompactionStrategy
	mode              string        // build | plan (REPL /mode)
	skillNames        []string      // for /skills
	store             storage.Store // for /new, /resume, /model
	sessionIDRef      *string       // mutable current session ID
	configBasePath    string        // for /model persist
	lastSyncedMsgN    int
	undoStack         []turnUndoEntry
	journal           *sessionfile.Manager
	journalPath       string
	handoff           *handoff.Engine
	handoffEnabled    bool
}

func New(providerClient provider.Provider, registry *tools.Registry, opts Options) *Orchestrator {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 128
	}
	contextLimit := opts.ContextTokenLimit
	if contextLimit <= 0 {
		contextLimit = 24000
	}
	if opts.Compaction.Threshold <= 0 || opts.Compaction.Threshold >= 1 {
		opts.Compaction.Threshold = 0.8
	}
	if opts.Compaction.RecentMessages <= 0 {
		opts.Compaction.RecentMessages = 12
	}
	if opts.Workflow.MaxVerifyAttempts <= 0 {
		opts.Workflow.MaxVerifyAttempts = 2
	}

	activeAgent := opts.ActiveAgent
	if activeAgent.Name == "" {
		activeAgent = agent.Resolve("build", opts.Agents)
	}
	o := &Orchestrator{
		provider:          providerClient,
		registry:          registry,
		maxSteps:          maxSteps,
		onApproval:        opts.OnApproval,
		policy:            opts.Policy,
		assembler:         opts.Assembler,
		compaction:        opts.Compaction,
		contextTokenLimit: contextLimit,
		activeAgent:       activeAgent,
		agents:            opts.Agents,
		workflow:          opts.Workflow,
		workspaceRoot:     strings.TrimSpace(opts.WorkspaceRoot),
		skillNames:        append([]string(nil), opts.SkillNames...),
		store:             opts.Store,
		sessionIDRef:      opts.SessionIDRef,
		configBasePath:    strings.TrimSpace(opts.ConfigBasePath),
	}
	if dir := strings.TrimSpace(opts.JournalDir); dir != "" {
		if journal, err := sessionfile.NewManager(dir); err == nil {
			o.journal = journal
			if path, err := journal.NewSession("", ""); err == nil {
				o.journalPath = path
			}
		}
	}
	initialMode := strings.TrimSpace(strings.ToLower(activeAgent.Name))
	if initialMode == "" {
		initialMode = "build"
	}
	o.SetMode(initialMode)
	o.Reset()
	return o
}

// GetCurrentSessionID 返回当前会话 ID（供 todo 工具等使用）
func (o *Orchestrator) GetCurrentSessionID() string {
	if o.sessionIDRef != nil {
		return *o.sessionIDRef
	}
	return ""
}

// SetCurrentSessionID 设置当前会话 ID（/new、/resume 后调用）
func (o *Orchestrator) SetCurrentSessionID(id string) {
	if o.sessionIDRef != nil {
		*o.sessionIDRef = id
	}
}

// SetHandoffEngine wires the handoff subsystem into this orchestrator.
// Called once after bootstrap constructs both, since the engine needs this
// orchestrator as its SessionFile/CommandContext/ConversationGatherer and
// the orchestrator needs the engine for its compaction hook and agent_end
// drain. enabled mirrors config.HandoffConfig.Enabled: when false the
// compaction hook falls back to ordinary in-place compaction.
func (o *Orchestrator) SetHandoffEngine(engine *handoff.Engine, enabled bool) {
	o.handoff = engine
	o.handoffEnabled = enabled
}

func (o *Orchestrator) HandoffEngine() *handoff.Engine {
	return o.handoff
}

func (o *Orchestrator) Reset() {
	o.messages = o.messages[:0]
	o.messageTimestamps = o.messageTimestamps[:0]
	o.lastCompaction = ""
	o.lastSyncedMsgN = 0
	o.undoStack = o.undoStack[:0]
}

// ResetUndoStack clears /undo history without touching the live message
// branch or its timestamps. The tool path's agent_end drain needs exactly
// this: a raw session switch leaves the old branch filtered out by
// FilterSinceHandoff rather than discarded outright, but /undo's entries
// still point at turns that belonged to the session just left behind.
func (o *Orchestrator) ResetUndoStack() {
	o.undoStack = o.undoStack[:0]
}

func (o *Orchestrator) Messages() []chat.Message {
	return append([]chat.Message(nil), o.messages...)
}

func (o *Orchestrator) LoadMessages(messages []chat.Message) {
	o.messages = append([]chat.Message(nil), messages...)
	o.messageTimestamps = make([]string, len(o.messages))
	o.lastSyncedMsgN = len(o.messages)
	o.undoStack = o.undoStack[:0]
}

// appendMessage 追加一条新的对话消息，并记录时间戳（UTC RFC3339）。
// appendMessage appends a new chat message and records its timestamp (UTC RFC3339).
func (o *Orchestrator) appendMessage(msg chat.Message) {
	o.messages = append(o.messages, msg)
	at := time.Now().UTC()
	o.messageTimestamps = append(o.messageTimestamps, at.Format(time.RFC3339))
	if o.journal != nil && o.journalPath != "" {
		_ = o.journal.AppendMessage(o.journalPath, msg, at)
	}
}

func (o *Orchestrator) SetActiveAgent(profile agent.Profile) {
	if profile.Name == "" {
		return
	}
	o.activeAgent = profile
}

func (o *Orchestrator) ActiveAgent() agent.Profile {
	return o.activeAgent
}

// SetMode 设置当前用户模式（build/plan），并联动 agent 与 permissions preset。
// SetMode sets current user mode (build/plan) and syncs agent + permissions preset.
func (o *Orchestrator) SetMode(mode string) {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" {
		return
	}
	switch mode {
	case "build", "plan":
		o.mode = mode
		o.activeAgent = agent.Resolve(mode, o.agents)
		if o.policy != nil {
			_ = o.policy.ApplyPreset(mode)
		}
	}
}

// CurrentMode 返回当前模式
// CurrentMode returns the current user mode
func (o *Orchestrator) CurrentMode() string {
	if o.mode == "" {
		return "build"
	}
	return o.mode
}

func (o *Orchestrator) LastCompactionSummary() string {
	return o.lastCompaction
}

func (o *Orchestrator) CurrentContextStats() ContextStats {
	messages := o.buildProviderMessages()
	estimated := contextmgr.EstimateTokens(messages)
	limit := o.contextTokenLimit
	percent := 0.0
	if limit > 0 {
		percent = (float64(estimated) / float64(limit)) * 100
	}
	return ContextStats{
		EstimatedTokens: estimated,
		ContextLimit:    limit,
		UsagePercent:    percent,
		MessageCount:    len(messages),
	}
}

func (o *Orchestrator) CurrentModel() string {
	if o.provider == nil {
		return ""
	}
	return o.provider.CurrentModel()
}

// currentToolDefs 返回当前会话可用工具的 OpenAI 兼容定义列表。
// currentToolDefs returns OpenAI-compatible tool definitions available in this session.
func (o *Orchestrator) currentToolDefs() []chat.ToolDef {
	if o == nil || o.registry == nil {
		return nil
	}
	return o.registry.Definitions()
}

func (o *Orchestrator) SetTextStreamCallback(fn TextChunkFunc) {
	o.onTextChunk = fn
}

func (o *Orchestrator) SetToolEventCallback(fn ToolEventFunc) {
	o.onToolEvent = fn
}

func (o *Orchestrator) SetTodoUpdateCallback(fn OnTodoUpdate) {
	o.onTodoUpdate = fn
}

func (o *Orchestrator) SetContextUpdateCallback(fn OnContextUpdate) {
	o.onContextUpdate = fn
}

func (o *Orchestrator) SetModel(model string) error {
	if o.provider == nil {
		return fmt.Errorf("provider unavailable")
	}
	return o.provider.SetModel(model)
}

func (o *Orchestrator) CompactNow() bool {
	messages, summary, replace, handoffApplied := o.runCompaction(context.Background())
	if handoffApplied {
		o.lastCompaction = summary
		return true
	}
	if !replace {
		return false
	}
	o.messages = messages
	o.messageTimestamps = make([]string, len(o.messages))
	o.lastCompaction = summary
	return true
}

// runCompaction picks between the handoff-backed compaction hook and the
// teacher's own in-place strategy. replace means "set o.messages to the
// first return value and reset o.messageTimestamps"; handoffApplied means a
// handoff already happened and the caller must NOT touch o.messages or
// o.messageTimestamps at all — the raw switch CompactWithHandoff performed
// left handoffAt set, and FilterSinceHandoff (consulted on every call to
// buildProviderMessages) is what drops the stale branch from here on, not a
// local truncation. Resetting messageTimestamps here would itself break
// that filter, since a zeroed timestamp reads as "always keep".
func (o *Orchestrator) runCompaction(ctx context.Context) (messages []chat.Message, summary string, replace bool, handoffApplied bool) {
	if o.handoffEnabled && o.handoff != nil {
		prep := o.prepareCompactionInput()
		handoffSummary, action := o.handoff.CompactWithHandoff(ctx, prep)
		switch action {
		case handoff.CompactApplied:
			return nil, handoffSummary, false, true
		case handoff.CompactSuppressed:
			return o.messages, "", false, false
		}
	}
	messages, summary, replace = contextmgr.CompactWithStrategy(ctx, o.messages, o.compaction.RecentMessages, o.compaction.Prune, o.compStrategy)
	return messages, summary, replace, false
}

// prepareCompactionInput splits the live branch into the head the handoff
// adapter may summarize and any already-summarized prefix to carry forward,
// mirroring contextmgr.CompactWithStrategy's own keepRecent split so both
// strategies agree on what this cycle is allowed to drop.
func (o *Orchestrator) prepareCompactionInput() handoff.CompactPreparation {
	keepRecent := o.compaction.RecentMessages
	if keepRecent < 4 {
		keepRecent = 4
	}
	if len(o.messages) <= keepRecent+2 {
		return handoff.CompactPreparation{}
	}
	split := len(o.messages) - keepRecent
	if split < 1 {
		split = 1
	}
	head := append([]chat.Message(nil), o.messages[:split]...)

	var previousSummary string
	if len(head) > 0 && head[0].Role == "assistant" && strings.HasPrefix(head[0].Content, "[COMPACTION_SUMMARY]\n") {
		previousSummary = strings.TrimPrefix(head[0].Content, "[COMPACTION_SUMMARY]\n")
		head = head[1:]
	}
	return handoff.CompactPreparation{MessagesToSummarize: head, PreviousSummary: previousSummary}
}

func (o *Orchestrator) RunInput(ctx context.Context, input string, out io.Writer) (string, error) {
	trimmed := strings.TrimSpace(input)
	if cmd, args, ok := parseSlashCommand(trimmed); ok {
		result, err := o.runSlashCommand(ctx, input, cmd, args, out)
		if err != nil {
			return "", err
		}
		if out != nil && result != "" {
			fmt.Fprintln(out, result)
		}
		return result, nil
	}
	if command, ok := parseBangCommand(input); ok {
		return o.runBangCommand(ctx, input, command, out)
	}
	return o.RunTurn(ctx, input, out)
}
