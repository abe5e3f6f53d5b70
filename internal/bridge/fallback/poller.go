// Package fallback infers "turn finished" for agents that have no hook
// installed, by polling raw terminal output until it stabilizes.
package fallback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kazz187/chatbridge/pkg/panicerr"
)

type key struct {
	Project  string
	Instance string
}

// TurnTracker is the slice of the pending tracker the poller needs.
type TurnTracker interface {
	HasPending(project, instanceID string) bool
	IsHookActive(project, instanceID string) bool
	MarkCompleted(ctx context.Context, project, instanceID string)
}

// Capture reads terminal output. Implemented by terminal.Tmux.
type Capture interface {
	GetWindowFrame(ctx context.Context, session, window string) ([]string, error)
	GetWindowBuffer(ctx context.Context, session, window string) (string, error)
}

// Sender is the single messaging call the poller makes.
type Sender interface {
	SendToChannel(ctx context.Context, channelID, text string) error
}

type Config struct {
	// InitialDelay is the wait before the first capture.
	InitialDelay time.Duration
	// StabilityDelay is the shorter re-check interval after a change.
	StabilityDelay time.Duration
	// MaxChecks bounds the stability re-checks before silently giving up.
	MaxChecks int
}

func (c *Config) applyDefaults() {
	if c.InitialDelay == 0 {
		c.InitialDelay = 15 * time.Second
	}
	if c.StabilityDelay == 0 {
		c.StabilityDelay = 5 * time.Second
	}
	if c.MaxChecks == 0 {
		c.MaxChecks = 3
	}
}

type slot struct {
	timer    *time.Timer
	snapshot string
	attempts int
}

// Poller owns one timer slot per (project, instance). Rescheduling cancels
// the prior timer; guard conditions (turn resolved, hook active) abort at
// every check.
type Poller struct {
	tracker TurnTracker
	capture Capture
	sender  Sender
	cfg     Config

	mu    sync.Mutex
	slots map[key]*slot
}

func NewPoller(tracker TurnTracker, capture Capture, sender Sender, cfg Config) *Poller {
	cfg.applyDefaults()
	return &Poller{
		tracker: tracker,
		capture: capture,
		sender:  sender,
		cfg:     cfg,
		slots:   make(map[key]*slot),
	}
}

type target struct {
	session   string
	window    string
	project   string
	agentType string
	instance  string
	channelID string
}

// ScheduleBufferFallback arms the fallback for a turn that may never see a
// hook event. Re-scheduling for the same key cancels the prior timer and
// starts over.
func (p *Poller) ScheduleBufferFallback(session, window, project, agentType, instanceID, channelID string) {
	k := key{Project: project, Instance: instanceID}
	if instanceID == "" {
		k.Instance = agentType
	}
	t := target{
		session:   session,
		window:    window,
		project:   project,
		agentType: agentType,
		instance:  k.Instance,
		channelID: channelID,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[k]; ok && s.timer != nil {
		s.timer.Stop()
	}
	s := &slot{}
	p.slots[k] = s
	s.timer = time.AfterFunc(p.cfg.InitialDelay, panicerr.Logged("buffer-fallback", func() {
		p.check(k, t)
	}))
}

// Cancel clears the slot for the key, if any.
func (p *Poller) Cancel(project, instanceID string) {
	k := key{Project: project, Instance: instanceID}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[k]; ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(p.slots, k)
	}
}

func (p *Poller) clear(k key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, k)
}

// check is one stability read. It runs in the timer goroutine.
func (p *Poller) check(k key, t target) {
	if !p.tracker.HasPending(t.project, t.instance) || p.tracker.IsHookActive(t.project, t.instance) {
		p.clear(k)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := p.captureText(ctx, t)
	if strings.TrimSpace(text) == "" {
		p.clear(k)
		return
	}

	block := ExtractLastBlock(text)
	if IsIdleBlock(block) {
		// The agent is sitting at its prompt or a short menu with nothing to
		// say yet; keep waiting without delivering anything.
		p.rearm(k, t, false)
		return
	}

	p.mu.Lock()
	s, ok := p.slots[k]
	if !ok {
		p.mu.Unlock()
		return
	}
	stable := s.snapshot == block
	if !stable {
		s.snapshot = block
		p.mu.Unlock()
		p.rearm(k, t, true)
		return
	}
	p.mu.Unlock()

	// Two identical consecutive reads with the turn still pending and no
	// active hook: deliver once and resolve.
	p.clear(k)
	if err := p.sender.SendToChannel(ctx, t.channelID, block); err != nil {
		slog.Warn("fallback delivery failed", "project", t.project, "error", err)
	}
	p.tracker.MarkCompleted(ctx, t.project, t.instance)
	slog.Info("turn resolved via buffer fallback", "project", t.project, "instance", t.instance)
}

// rearm schedules the shorter stability-check delay. Changed-snapshot reads
// consume an attempt and give up silently at the ceiling (the turn stays
// pending for the next real signal); idle-prompt reads re-arm for free,
// since an idle agent just hasn't produced output yet.
func (p *Poller) rearm(k key, t target, charge bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[k]
	if !ok {
		return
	}
	if charge {
		s.attempts++
		if s.attempts >= p.cfg.MaxChecks {
			delete(p.slots, k)
			return
		}
	}
	s.timer = time.AfterFunc(p.cfg.StabilityDelay, panicerr.Logged("buffer-fallback", func() {
		p.check(k, t)
	}))
}

// captureText prefers the structured frame capture and degrades to the raw
// buffer.
func (p *Poller) captureText(ctx context.Context, t target) string {
	if lines, err := p.capture.GetWindowFrame(ctx, t.session, t.window); err == nil && len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	if buf, err := p.capture.GetWindowBuffer(ctx, t.session, t.window); err == nil {
		return buf
	}
	return ""
}
