// Package bridge is the event delivery orchestration core: it serializes
// asynchronous agent lifecycle events into an ordered sequence of chat
// messages, reactions, thread replies and streaming previews, tracking one
// pending turn per (project, instance).
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kazz187/chatbridge/internal/bridge/marker"
	"github.com/kazz187/chatbridge/internal/bridge/pending"
	"github.com/kazz187/chatbridge/internal/bridge/streaming"
	"github.com/kazz187/chatbridge/internal/eventbus"
	"github.com/kazz187/chatbridge/internal/messaging"
	"github.com/kazz187/chatbridge/internal/registry"
	"github.com/kazz187/chatbridge/pkg/panicerr"
)

type key struct {
	Project  string
	Instance string
}

type timerKind int

const (
	timerLifecycle timerKind = iota + 1
	timerThinking
)

type timerSlot struct {
	key  key
	kind timerKind
}

// Resolver maps an event to its delivery binding. Implemented by
// registry.Service.
type Resolver interface {
	Resolve(project, agentType, instanceID string) (*registry.Binding, error)
}

// FileExtractor is the file side-channel collaborator.
type FileExtractor interface {
	Extract(text string) (string, []string)
}

type Config struct {
	// LifecycleTimeout auto-resolves turns that never produced visible
	// output after session.start.
	LifecycleTimeout time.Duration
	// ThinkingTimeout demotes a thinking reaction whose stop event was lost.
	ThinkingTimeout time.Duration
	// ThinkingMaxLen truncates thinking text in idle thread replies.
	ThinkingMaxLen int
}

func (c *Config) applyDefaults() {
	if c.LifecycleTimeout == 0 {
		c.LifecycleTimeout = 5 * time.Second
	}
	if c.ThinkingTimeout == 0 {
		c.ThinkingTimeout = 2 * time.Minute
	}
	if c.ThinkingMaxLen == 0 {
		c.ThinkingMaxLen = 2800
	}
}

// Orchestrator is the long-lived event pipeline. All per-turn state hangs off
// explicit keyed maps; mutations for one key are serialized by a per-key
// mutex so concurrent hook requests cannot interleave accumulation updates.
type Orchestrator struct {
	msgr     messaging.Messenger
	threads  messaging.ThreadMessenger // nil when the platform has no threads
	editor   messaging.MessageEditor   // nil when the platform cannot edit
	tracker  *pending.Tracker
	streams  *streaming.Updater
	files    FileExtractor
	resolver Resolver
	bus      *eventbus.Bus // optional
	cfg      Config

	mu          sync.Mutex
	locks       map[key]*sync.Mutex
	threadState map[key]*threadActivity
	checklists  map[key]*taskChecklist
	timers      map[timerSlot]*time.Timer
}

func NewOrchestrator(msgr messaging.Messenger, tracker *pending.Tracker, streams *streaming.Updater, files FileExtractor, resolver Resolver, bus *eventbus.Bus, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	threads, _ := msgr.(messaging.ThreadMessenger)
	editor, _ := msgr.(messaging.MessageEditor)
	return &Orchestrator{
		msgr:        msgr,
		threads:     threads,
		editor:      editor,
		tracker:     tracker,
		streams:     streams,
		files:       files,
		resolver:    resolver,
		bus:         bus,
		cfg:         cfg,
		locks:       make(map[key]*sync.Mutex),
		threadState: make(map[key]*threadActivity),
		checklists:  make(map[key]*taskChecklist),
		timers:      make(map[timerSlot]*time.Timer),
	}
}

func (o *Orchestrator) Tracker() *pending.Tracker {
	return o.tracker
}

func (o *Orchestrator) keyLock(k key) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[k]
	if !ok {
		l = &sync.Mutex{}
		o.locks[k] = l
	}
	return l
}

// startTimer arms the single slot for (key, kind); any prior timer for the
// slot is cancelled first.
func (o *Orchestrator) startTimer(k key, kind timerKind, d time.Duration, name string, fn func()) {
	slot := timerSlot{key: k, kind: kind}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[slot]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, panicerr.Logged(name, func() {
		o.mu.Lock()
		if o.timers[slot] != timer {
			// Cancelled or replaced while firing.
			o.mu.Unlock()
			return
		}
		delete(o.timers, slot)
		o.mu.Unlock()

		l := o.keyLock(k)
		l.Lock()
		defer l.Unlock()
		fn()
	}))
	o.timers[slot] = timer
}

func (o *Orchestrator) cancelTimer(k key, kind timerKind) {
	slot := timerSlot{key: k, kind: kind}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[slot]; ok {
		t.Stop()
		delete(o.timers, slot)
	}
}

// HandleEvent consumes one lifecycle event. Downstream delivery failures are
// swallowed; only resolution problems are reported, and those as a
// warn-and-drop, never an error to the transport.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) {
	binding, err := o.resolver.Resolve(ev.ProjectName, ev.AgentType, ev.InstanceID)
	if err != nil {
		slog.Warn("dropping event with unresolvable target", "project", ev.ProjectName, "type", ev.Type, "error", err)
		return
	}
	k := key{Project: ev.ProjectName, Instance: ev.Instance()}

	l := o.keyLock(k)
	l.Lock()
	defer l.Unlock()

	switch ev.Type {
	case EventSessionStart:
		o.handleSessionStart(ctx, k, ev)
	case EventThinkingStart:
		o.handleThinkingStart(ctx, k, binding, ev)
	case EventThinkingStop:
		o.handleThinkingStop(ctx, k)
	case EventToolActivity:
		o.handleToolActivity(ctx, k, binding, ev)
	case EventSessionIdle:
		o.handleSessionIdle(ctx, k, binding, ev)
	case EventSessionError:
		o.handleSessionError(ctx, k, binding, ev)
	case EventSessionNotification:
		o.handleNotification(ctx, k, binding, ev)
	case EventSessionEnd:
		o.handleSessionEnd(ctx, k, binding, ev)
	default:
		slog.Debug("ignoring unrecognized event type", "project", k.Project, "type", ev.Type)
	}
}

func (o *Orchestrator) handleSessionStart(_ context.Context, k key, ev Event) {
	if ev.Source != "startup" {
		o.tracker.SetHookActive(k.Project, k.Instance, true)
	}
	// Absent further activity, resolve turns that never produce visible
	// output (resumed sessions, empty replays).
	o.startTimer(k, timerLifecycle, o.cfg.LifecycleTimeout, "session-lifecycle", func() {
		entry := o.tracker.GetPending(k.Project, k.Instance)
		if entry != nil && entry.StartMessageID == "" {
			o.tracker.MarkCompleted(context.Background(), k.Project, k.Instance)
		}
	})
}

func agentLabel(agentType string) string {
	if agentType == "" {
		return "agent"
	}
	return agentType
}

func (o *Orchestrator) startMessageText(ev Event) string {
	return "⏳ " + agentLabel(ev.AgentType) + " is working…"
}

func (o *Orchestrator) handleThinkingStart(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	o.cancelTimer(k, timerLifecycle)
	o.tracker.EnsurePending(ctx, k.Project, ev.AgentType, binding.ChannelID, k.Instance)
	o.tracker.EnsureStartMessage(ctx, k.Project, k.Instance, o.startMessageText(ev))

	entry := o.tracker.GetPending(k.Project, k.Instance)
	if entry != nil && entry.OriginMessageID != "" {
		if err := o.msgr.AddReaction(ctx, entry.ChannelID, entry.OriginMessageID, pending.ReactionThinking); err != nil {
			slog.Debug("failed to add thinking reaction", "project", k.Project, "error", err)
		}
		// A lost thinking.stop must not leave the reaction behind forever.
		channelID, originID := entry.ChannelID, entry.OriginMessageID
		o.startTimer(k, timerThinking, o.cfg.ThinkingTimeout, "thinking-timeout", func() {
			if err := o.msgr.ReplaceOwnReaction(context.Background(), channelID, originID, pending.ReactionThinking, pending.ReactionWorking); err != nil {
				slog.Debug("failed to demote thinking reaction", "project", k.Project, "error", err)
			}
		})
	}
}

func (o *Orchestrator) handleThinkingStop(ctx context.Context, k key) {
	o.cancelTimer(k, timerThinking)
	entry := o.tracker.GetPending(k.Project, k.Instance)
	if entry == nil || entry.OriginMessageID == "" {
		return
	}
	if err := o.msgr.ReplaceOwnReaction(ctx, entry.ChannelID, entry.OriginMessageID, pending.ReactionThinking, pending.ReactionSuccess); err != nil {
		slog.Debug("failed to resolve thinking reaction", "project", k.Project, "error", err)
	}
}

func (o *Orchestrator) handleToolActivity(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	o.cancelTimer(k, timerLifecycle)
	o.cancelTimer(k, timerThinking)

	o.tracker.EnsurePending(ctx, k.Project, ev.AgentType, binding.ChannelID, k.Instance)
	startID := o.tracker.EnsureStartMessage(ctx, k.Project, k.Instance, o.startMessageText(ev))

	if o.streams.CanStream() && startID != "" && !o.streams.Has(k.Project, k.Instance) {
		o.streams.Start(k.Project, k.Instance, binding.ChannelID, startID)
	}

	text := ev.body()
	if marker.IsMarkerLine(text) {
		m, ok := marker.Parse(text)
		if !ok {
			// Malformed payload degrades to a silent no-op.
			return
		}
		o.handleMarker(ctx, k, binding, startID, m)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	o.streams.Append(ctx, k.Project, k.Instance, text)
	o.accumulateThread(ctx, k, binding.ChannelID, startID, text)
}

func (o *Orchestrator) handleMarker(ctx context.Context, k key, binding *registry.Binding, startID string, m marker.Marker) {
	switch m.Kind {
	case marker.KindTaskCreate:
		cl := o.checklistFor(k, startID)
		t := &checklistTask{id: cl.nextID, subject: m.TaskCreate.Subject, status: TaskStatusPending}
		cl.nextID++
		cl.tasks = append(cl.tasks, t)
		o.renderChecklist(ctx, k, binding.ChannelID, cl)
		o.streams.Append(ctx, k.Project, k.Instance, taskGlyph(t.status)+" "+t.subject)

	case marker.KindTaskUpdate:
		cl := o.checklistFor(k, startID)
		t := cl.find(m.TaskUpdate.TaskID)
		if t == nil {
			return
		}
		if m.TaskUpdate.Status != nil {
			switch *m.TaskUpdate.Status {
			case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
				t.status = *m.TaskUpdate.Status
			}
		}
		if m.TaskUpdate.Subject != nil && *m.TaskUpdate.Subject != "" {
			t.subject = *m.TaskUpdate.Subject
		}
		o.renderChecklist(ctx, k, binding.ChannelID, cl)
		o.streams.Append(ctx, k.Project, k.Instance, taskGlyph(t.status)+" "+t.subject)

	case marker.KindGitCommit:
		o.postMarkerLine(ctx, k, binding.ChannelID, startID, m.GitCommit.Render())

	case marker.KindGitPush:
		o.postMarkerLine(ctx, k, binding.ChannelID, startID, m.GitPush.Render())

	case marker.KindSubagentDone:
		o.postMarkerLine(ctx, k, binding.ChannelID, startID, m.SubagentDone.Render())
	}
}

// postMarkerLine sends a dedicated one-line thread reply and mirrors it into
// the streaming preview.
func (o *Orchestrator) postMarkerLine(ctx context.Context, k key, channelID, startID, line string) {
	if line == "" {
		return
	}
	if o.threads != nil && startID != "" {
		if err := o.threads.ReplyInThread(ctx, channelID, startID, line); err != nil {
			slog.Debug("failed to post marker thread reply", "project", k.Project, "error", err)
		}
	}
	o.streams.Append(ctx, k.Project, k.Instance, line)
}

func (o *Orchestrator) handleSessionIdle(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	o.cancelTimer(k, timerLifecycle)
	o.cancelTimer(k, timerThinking)

	// Snapshot before clearing: MarkCompleted drops the entry, but finalize
	// still needs the start message id.
	entry := o.tracker.GetPending(k.Project, k.Instance)
	startID := ""
	if entry != nil {
		startID = entry.StartMessageID
	}
	o.clearTurnState(k)

	if ev.IntermediateText != "" {
		o.threadReply(ctx, k, binding.ChannelID, startID, ev.IntermediateText)
	}
	if ev.Thinking != "" {
		o.threadReply(ctx, k, binding.ChannelID, startID, "```\n"+truncate(ev.Thinking, o.cfg.ThinkingMaxLen)+"\n```")
	}

	clean, paths := o.files.Extract(ev.body())
	switch {
	case len(paths) > 0:
		if err := o.msgr.SendToChannelWithFiles(ctx, binding.ChannelID, clean, paths); err != nil {
			slog.Debug("failed to send files", "project", k.Project, "error", err)
		}
	case strings.TrimSpace(clean) != "":
		if err := o.sendToChannel(ctx, binding.ChannelID, clean); err != nil {
			slog.Debug("failed to send response", "project", k.Project, "error", err)
		}
	}

	if questions := wellFormedQuestions(ev.PromptQuestions); len(questions) > 0 {
		if _, err := o.msgr.SendInteractiveQuestions(ctx, binding.ChannelID, questions); err != nil {
			slog.Debug("failed to send interactive questions", "project", k.Project, "error", err)
		}
	} else if strings.TrimSpace(ev.PromptText) != "" {
		if err := o.sendToChannel(ctx, binding.ChannelID, ev.PromptText); err != nil {
			slog.Debug("failed to send prompt text", "project", k.Project, "error", err)
		}
	}

	// A usage header is only warranted when there was visible activity.
	if startID != "" {
		o.streams.Finalize(ctx, k.Project, k.Instance, usageHeader(ev.Usage), binding.ChannelID, startID)
	} else {
		o.streams.Discard(k.Project, k.Instance)
	}
	o.tracker.MarkCompleted(ctx, k.Project, k.Instance)
	o.publish(eventbus.EventTurnCompleted, k, ev.body())
}

func (o *Orchestrator) handleSessionError(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	o.cancelTimer(k, timerLifecycle)
	o.cancelTimer(k, timerThinking)

	recent := o.recentActivity(k, 5)
	o.clearTurnState(k)
	o.streams.Discard(k.Project, k.Instance)

	msg := "❌ " + agentLabel(ev.AgentType) + " error"
	if body := strings.TrimSpace(ev.body()); body != "" {
		msg += ": " + body
	}
	if len(recent) > 0 {
		msg += "\nRecent activity:\n```\n" + strings.Join(recent, "\n") + "\n```"
	}
	if err := o.sendToChannel(ctx, binding.ChannelID, msg); err != nil {
		slog.Debug("failed to send error message", "project", k.Project, "error", err)
	}
	o.tracker.MarkError(ctx, k.Project, k.Instance)
	o.publish(eventbus.EventTurnErrored, k, ev.body())
}

func notificationIcon(notificationType string) string {
	switch notificationType {
	case NotificationPermissionPrompt:
		return "🔒"
	case NotificationIdlePrompt:
		return "💤"
	case NotificationAuthSuccess:
		return "🔑"
	case NotificationElicitation:
		return "❓"
	default:
		return "🔔"
	}
}

func (o *Orchestrator) handleNotification(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	body := ev.Text
	if body == "" {
		body = ev.NotificationType
	}
	if body == "" {
		body = "unknown"
	}
	if err := o.msgr.SendToChannel(ctx, binding.ChannelID, notificationIcon(ev.NotificationType)+" "+body); err != nil {
		slog.Debug("failed to send notification", "project", k.Project, "error", err)
	}
	// An elicitation dialog is followed by the interactive question UI;
	// repeating the prompt text would duplicate it.
	if ev.NotificationType != NotificationElicitation && strings.TrimSpace(ev.PromptText) != "" {
		if err := o.sendToChannel(ctx, binding.ChannelID, ev.PromptText); err != nil {
			slog.Debug("failed to send notification prompt", "project", k.Project, "error", err)
		}
	}
	o.publish(eventbus.EventNotification, k, body)
}

func (o *Orchestrator) handleSessionEnd(ctx context.Context, k key, binding *registry.Binding, ev Event) {
	o.tracker.SetHookActive(k.Project, k.Instance, false)
	reason := ev.Reason
	if reason == "" {
		reason = "unknown"
	}
	if err := o.msgr.SendToChannel(ctx, binding.ChannelID, "Session ended: "+reason); err != nil {
		slog.Debug("failed to send session end", "project", k.Project, "error", err)
	}
	o.publish(eventbus.EventSessionEnded, k, reason)
}

// sendToChannel posts text to the channel, split into platform-sized chunks
// so long agent responses never exceed the adapter's message limit.
func (o *Orchestrator) sendToChannel(ctx context.Context, channelID, text string) error {
	for _, chunk := range messaging.SplitText(o.msgr.Platform().SplitLimit(), text) {
		if err := o.msgr.SendToChannel(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) threadReply(ctx context.Context, k key, channelID, startID, text string) {
	if o.threads == nil || startID == "" {
		return
	}
	if err := o.threads.ReplyInThread(ctx, channelID, startID, text); err != nil {
		slog.Debug("failed to post thread reply", "project", k.Project, "error", err)
	}
}

func (o *Orchestrator) publish(t eventbus.EventType, k key, payload string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishNew(t, k.Project, k.Instance, payload)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Back up to a rune boundary so the cut never produces invalid UTF-8.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n… (truncated)"
}

// Reset drops all keyed state and live timers. Test hook; also used on
// daemon shutdown.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	for slot, t := range o.timers {
		t.Stop()
		delete(o.timers, slot)
	}
	o.threadState = make(map[key]*threadActivity)
	o.checklists = make(map[key]*taskChecklist)
	o.locks = make(map[key]*sync.Mutex)
	o.mu.Unlock()
	o.tracker.Reset()
	o.streams.Reset()
}
