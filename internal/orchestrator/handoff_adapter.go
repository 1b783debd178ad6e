package orchestrator

import (
	"context"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/handoff"
	"github.com/pi-cli/pi/internal/storage"
)

// The methods below let *Orchestrator satisfy handoff.SessionFile,
// handoff.CommandContext, and handoff.ConversationGatherer directly, so
// bootstrap can hand the same orchestrator to handoff.NewEngine without an
// intermediate wrapper type.

// CurrentPath returns the active session's journal file path, or "" if no
// journal has been configured for this orchestrator.
func (o *Orchestrator) CurrentPath() string {
	return o.journalPath
}

// NewSessionRaw creates a new journal file parented to parentSession and
// switches the orchestrator to it, without touching in-memory messages or
// the sqlite metadata store. It is the privileged primitive the compaction
// hook uses: it fires mid-turn, so it cannot safely trigger a full /new.
// nameHint is an already-slugged fragment (typically the handoff goal) the
// journal file name carries for human skimmability; pass "" when none.
func (o *Orchestrator) NewSessionRaw(parentSession, nameHint string) (string, error) {
	if o.journal == nil {
		return "", nil
	}
	path, err := o.journal.NewSession(parentSession, nameHint)
	if err != nil {
		return "", err
	}
	o.journalPath = path
	return path, nil
}

// NewSessionWithFanout performs the same session creation /new does —
// new sqlite session row, cleared in-memory messages, context stats pushed
// to the frontend — plus rotating the handoff journal, parented to
// parentSession. This is the full event fan-out the command and tool
// handoff paths need once they are ready to actually switch.
func (o *Orchestrator) NewSessionWithFanout(parentSession, nameHint string) error {
	if o.journal != nil {
		if path, err := o.journal.NewSession(parentSession, nameHint); err == nil {
			o.journalPath = path
		}
	}
	if o.store != nil {
		model := o.provider.CurrentModel()
		if model == "" {
			model = "default"
		}
		newMeta := storage.SessionMeta{
			ID:            storage.NewSessionID(),
			Agent:         o.activeAgent.Name,
			Model:         model,
			CWD:           o.workspaceRoot,
			ParentSession: o.GetCurrentSessionID(),
		}
		if err := o.store.CreateSession(newMeta); err != nil {
			return err
		}
		o.SetCurrentSessionID(newMeta.ID)
	}
	o.Reset()
	o.emitContextUpdate()
	return nil
}

// Gather implements handoff.ConversationGatherer over the orchestrator's
// own live message list — the in-memory branch is already
// compaction-aware, since maybeCompact replaces o.messages in place.
func (o *Orchestrator) Gather(ctx context.Context) (string, []chat.Message, error) {
	return handoff.NewConversationGatherer(func() ([]chat.Message, error) {
		return o.Messages(), nil
	}).Gather(ctx)
}

// drainPendingHandoff fires the agent_end hook: if the handoff tool armed a
// deferred session switch during this turn, it happens now that the turn
// loop has fully returned.
func (o *Orchestrator) drainPendingHandoff() {
	if o.handoff == nil {
		return
	}
	_ = o.handoff.OnAgentEnd(context.Background())
}
