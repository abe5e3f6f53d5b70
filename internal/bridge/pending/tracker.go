// Package pending tracks the single in-flight turn per (project, instance)
// and the reaction lifecycle on the user message that started it.
package pending

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kazz187/chatbridge/internal/messaging"
)

// Reaction emoji used on the origin message over the life of a turn.
const (
	ReactionWorking  = "hourglass_flowing_sand"
	ReactionThinking = "thinking_face"
	ReactionSuccess  = "white_check_mark"
	ReactionFailure  = "x"
)

type key struct {
	Project  string
	Instance string
}

// Entry is the tracked state for one in-flight turn.
type Entry struct {
	ChannelID       string
	OriginMessageID string
	StartMessageID  string
	AgentType       string
}

// Tracker owns the pending entries and the hook-active flags. Hook-active
// bookkeeping is kept beside the entries because a hook session spans many
// turns while an entry lives for exactly one.
type Tracker struct {
	mu         sync.Mutex
	entries    map[key]*Entry
	hookActive map[key]bool
	msgr       messaging.Messenger
}

func NewTracker(msgr messaging.Messenger) *Tracker {
	return &Tracker{
		entries:    make(map[key]*Entry),
		hookActive: make(map[key]bool),
		msgr:       msgr,
	}
}

// MarkPending overwrites the entry for the key and marks the origin message
// with the working reaction. Called when a new user message is routed to an
// agent window.
func (t *Tracker) MarkPending(ctx context.Context, project, agentType, channelID, originMessageID, instanceID string) {
	k := key{Project: project, Instance: instanceID}
	t.mu.Lock()
	t.entries[k] = &Entry{
		ChannelID:       channelID,
		OriginMessageID: originMessageID,
		AgentType:       agentType,
	}
	t.mu.Unlock()

	if originMessageID == "" {
		return
	}
	if err := t.msgr.AddReaction(ctx, channelID, originMessageID, ReactionWorking); err != nil {
		slog.Debug("failed to add working reaction", "project", project, "error", err)
	}
}

// EnsurePending creates an entry only when none exists, for agent-originated
// activity with no tracked user message.
func (t *Tracker) EnsurePending(ctx context.Context, project, agentType, channelID, instanceID string) {
	k := key{Project: project, Instance: instanceID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[k]; ok {
		return
	}
	t.entries[k] = &Entry{
		ChannelID: channelID,
		AgentType: agentType,
	}
}

// EnsureStartMessage posts the status message at most once per turn and
// returns its id thereafter. Returns "" when posting failed or the platform
// returned no id; the next activity retries.
func (t *Tracker) EnsureStartMessage(ctx context.Context, project, instanceID, text string) string {
	k := key{Project: project, Instance: instanceID}
	t.mu.Lock()
	entry, ok := t.entries[k]
	if !ok {
		t.mu.Unlock()
		return ""
	}
	if entry.StartMessageID != "" {
		id := entry.StartMessageID
		t.mu.Unlock()
		return id
	}
	channelID := entry.ChannelID
	t.mu.Unlock()

	id, err := t.msgr.SendToChannelWithID(ctx, channelID, text)
	if err != nil {
		slog.Debug("failed to post start message", "project", project, "error", err)
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check: the turn may have been resolved or raced while posting.
	entry, ok = t.entries[k]
	if !ok {
		return id
	}
	if entry.StartMessageID == "" {
		entry.StartMessageID = id
	}
	return entry.StartMessageID
}

func (t *Tracker) HasPending(project, instanceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key{Project: project, Instance: instanceID}]
	return ok
}

// GetPending returns a snapshot of the entry, or nil. Callers that need
// StartMessageID after resolution must capture it before MarkCompleted or
// MarkError clears the entry.
func (t *Tracker) GetPending(project, instanceID string) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key{Project: project, Instance: instanceID}]
	if !ok {
		return nil
	}
	snapshot := *entry
	return &snapshot
}

// MarkCompleted swaps the working reaction to success and clears the entry.
func (t *Tracker) MarkCompleted(ctx context.Context, project, instanceID string) {
	t.resolve(ctx, project, instanceID, ReactionSuccess)
}

// MarkError swaps the working reaction to failure and clears the entry.
func (t *Tracker) MarkError(ctx context.Context, project, instanceID string) {
	t.resolve(ctx, project, instanceID, ReactionFailure)
}

func (t *Tracker) resolve(ctx context.Context, project, instanceID, reaction string) {
	k := key{Project: project, Instance: instanceID}
	t.mu.Lock()
	entry, ok := t.entries[k]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.entries, k)
	t.mu.Unlock()

	if entry.OriginMessageID == "" {
		return
	}
	if err := t.msgr.ReplaceOwnReaction(ctx, entry.ChannelID, entry.OriginMessageID, ReactionWorking, reaction); err != nil {
		slog.Debug("failed to replace reaction", "project", project, "error", err)
	}
}

// SetHookActive gates the buffer fallback poller so it never races a genuine
// hook-driven turn.
func (t *Tracker) SetHookActive(project, instanceID string, active bool) {
	k := key{Project: project, Instance: instanceID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if active {
		t.hookActive[k] = true
	} else {
		delete(t.hookActive, k)
	}
}

func (t *Tracker) IsHookActive(project, instanceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hookActive[key{Project: project, Instance: instanceID}]
}

// Reset drops all tracked state. Test hook.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[key]*Entry)
	t.hookActive = make(map[key]bool)
}
