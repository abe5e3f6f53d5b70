// Package terminal captures output from and types into tmux windows hosting
// bridged agents.
package terminal

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Tmux talks to a local tmux server.
type Tmux struct {
	runner Runner
}

func NewTmux() *Tmux {
	return &Tmux{runner: execRunner{}}
}

func NewTmuxWithRunner(r Runner) *Tmux {
	return &Tmux{runner: r}
}

func target(session, window string) string {
	return session + ":" + window
}

// GetWindowFrame captures the visible frame of the window as lines, or nil
// when the capture fails.
func (t *Tmux) GetWindowFrame(ctx context.Context, session, window string) ([]string, error) {
	out, err := t.runner.Run(ctx, "tmux", "capture-pane", "-p", "-t", target(session, window))
	if err != nil {
		return nil, fmt.Errorf("tmux capture-pane: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n"), nil
}

// GetWindowBuffer captures scrollback plus the visible frame as raw text.
func (t *Tmux) GetWindowBuffer(ctx context.Context, session, window string) (string, error) {
	out, err := t.runner.Run(ctx, "tmux", "capture-pane", "-p", "-J", "-S", "-200", "-t", target(session, window))
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane: %w", err)
	}
	return out, nil
}

// SendText types text into the window literally, then presses Enter.
func (t *Tmux) SendText(ctx context.Context, session, window, text string) error {
	if _, err := t.runner.Run(ctx, "tmux", "send-keys", "-t", target(session, window), "-l", text); err != nil {
		return fmt.Errorf("tmux send-keys: %w", err)
	}
	if _, err := t.runner.Run(ctx, "tmux", "send-keys", "-t", target(session, window), "Enter"); err != nil {
		return fmt.Errorf("tmux send-keys enter: %w", err)
	}
	return nil
}

// WindowExists reports whether the window is alive.
func (t *Tmux) WindowExists(ctx context.Context, session, window string) bool {
	_, err := t.runner.Run(ctx, "tmux", "has-session", "-t", target(session, window))
	return err == nil
}
