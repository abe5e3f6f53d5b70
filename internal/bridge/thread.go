package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// threadActivity accumulates activity lines into a single thread reply under
// the turn's start message. State is valid only while parentMessageID still
// matches the live start message id (stale-parent guard).
type threadActivity struct {
	parentMessageID string
	threadMessageID string
	lines           []string
}

// Keyed map access goes through o.mu; the values themselves are only mutated
// under the per-key lock.

func (o *Orchestrator) getThreadState(k key) *threadActivity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threadState[k]
}

func (o *Orchestrator) setThreadState(k key, st *threadActivity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st == nil {
		delete(o.threadState, k)
		return
	}
	o.threadState[k] = st
}

// accumulateThread posts or updates the activity thread reply. A create that
// returns no id records nothing so the next activity retries; an update
// failure keeps the appended line in memory for the next attempt.
func (o *Orchestrator) accumulateThread(ctx context.Context, k key, channelID, startMessageID, text string) {
	if o.threads == nil || startMessageID == "" {
		return
	}

	st := o.getThreadState(k)
	if st != nil && st.parentMessageID != startMessageID {
		// Any parent mismatch discards old state unconditionally.
		o.setThreadState(k, nil)
		st = nil
	}

	if st == nil {
		id, err := o.threads.ReplyInThreadWithID(ctx, channelID, startMessageID, text)
		if err != nil {
			slog.Debug("failed to create activity thread", "project", k.Project, "error", err)
			return
		}
		if id == "" {
			return
		}
		o.setThreadState(k, &threadActivity{
			parentMessageID: startMessageID,
			threadMessageID: id,
			lines:           []string{text},
		})
		return
	}

	st.lines = append(st.lines, text)
	if o.editor == nil {
		return
	}
	if err := o.editor.UpdateMessage(ctx, channelID, st.threadMessageID, strings.Join(st.lines, "\n")); err != nil {
		slog.Debug("failed to update activity thread", "project", k.Project, "error", err)
	}
}

// recentActivity returns up to n most recent accumulated lines for error
// context.
func (o *Orchestrator) recentActivity(k key, n int) []string {
	st := o.getThreadState(k)
	if st == nil || len(st.lines) == 0 {
		return nil
	}
	lines := st.lines
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Task checklist rendered as a dedicated thread message.

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

type checklistTask struct {
	id      int
	subject string
	status  string
}

type taskChecklist struct {
	parentMessageID string
	messageID       string
	nextID          int
	tasks           []*checklistTask
}

func taskGlyph(status string) string {
	switch status {
	case TaskStatusCompleted:
		return "✅"
	case TaskStatusInProgress:
		return "🔄"
	default:
		return "⬜"
	}
}

func (c *taskChecklist) render() string {
	done := 0
	for _, t := range c.tasks {
		if t.status == TaskStatusCompleted {
			done++
		}
	}
	lines := make([]string, 0, len(c.tasks)+1)
	lines = append(lines, fmt.Sprintf("Task list (%d/%d)", done, len(c.tasks)))
	for _, t := range c.tasks {
		lines = append(lines, taskGlyph(t.status)+" "+t.subject)
	}
	return strings.Join(lines, "\n")
}

func (c *taskChecklist) find(id int) *checklistTask {
	for _, t := range c.tasks {
		if t.id == id {
			return t
		}
	}
	return nil
}

// checklistFor returns the checklist valid under the current start message,
// discarding stale state from an earlier turn.
func (o *Orchestrator) checklistFor(k key, startMessageID string) *taskChecklist {
	o.mu.Lock()
	defer o.mu.Unlock()
	cl := o.checklists[k]
	if cl != nil && cl.parentMessageID != startMessageID {
		cl = nil
	}
	if cl == nil {
		cl = &taskChecklist{parentMessageID: startMessageID, nextID: 1}
		o.checklists[k] = cl
	}
	return cl
}

// clearTurnState drops accumulation state at a turn boundary.
func (o *Orchestrator) clearTurnState(k key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.threadState, k)
	delete(o.checklists, k)
}

// renderChecklist creates or updates the checklist thread message. The first
// render requires a start message to thread under; without one the state is
// kept and rendered on a later attempt.
func (o *Orchestrator) renderChecklist(ctx context.Context, k key, channelID string, cl *taskChecklist) {
	if o.threads == nil || cl.parentMessageID == "" {
		return
	}
	body := cl.render()
	if cl.messageID == "" {
		id, err := o.threads.ReplyInThreadWithID(ctx, channelID, cl.parentMessageID, body)
		if err != nil {
			slog.Debug("failed to create checklist message", "project", k.Project, "error", err)
			return
		}
		cl.messageID = id
		return
	}
	if o.editor == nil {
		return
	}
	if err := o.editor.UpdateMessage(ctx, channelID, cl.messageID, body); err != nil {
		slog.Debug("failed to update checklist message", "project", k.Project, "error", err)
	}
}
