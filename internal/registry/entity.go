// Package registry resolves (project, agent type, instance) to the chat
// channel and tmux window a bridged agent lives in.
package registry

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Project binds one bridged project to its chat channel and tmux session.
type Project struct {
	Name        string `yaml:"name"`
	ChannelID   string `yaml:"channel_id"`
	TmuxSession string `yaml:"tmux_session"`
	AgentType   string `yaml:"agent_type"`
	// Window is the default agent window.
	Window string `yaml:"window"`
	// Instances maps additional instance ids to their windows.
	Instances map[string]string `yaml:"instances,omitempty"`
	// LaunchCommand is the shell one-liner that starts the agent inside the
	// window. Kept here so operators can restart agents from chat later.
	LaunchCommand string `yaml:"launch_command,omitempty"`
}

// Validate checks required fields and parses LaunchCommand with the shell
// parser, so a broken one-liner is caught at load time instead of when a
// window has to be respawned.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if p.ChannelID == "" {
		return fmt.Errorf("project %s: channel_id is required", p.Name)
	}
	if p.TmuxSession == "" {
		return fmt.Errorf("project %s: tmux_session is required", p.Name)
	}
	if p.LaunchCommand != "" {
		parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
		if _, err := parser.Parse(strings.NewReader(p.LaunchCommand), p.Name); err != nil {
			return fmt.Errorf("project %s: invalid launch_command: %w", p.Name, err)
		}
	}
	return nil
}

// Binding is a resolved delivery target.
type Binding struct {
	ChannelID string
	Session   string
	Window    string
}

// ResolveBinding picks the window for the instance id, falling back to the
// default window for the empty instance.
func (p *Project) ResolveBinding(instanceID string) (*Binding, error) {
	window := p.Window
	if instanceID != "" {
		w, ok := p.Instances[instanceID]
		if !ok && instanceID != p.AgentType {
			return nil, fmt.Errorf("project %s: unknown instance %s", p.Name, instanceID)
		}
		if ok {
			window = w
		}
	}
	return &Binding{
		ChannelID: p.ChannelID,
		Session:   p.TmuxSession,
		Window:    window,
	}, nil
}
