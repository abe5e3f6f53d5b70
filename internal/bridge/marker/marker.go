// Package marker parses structured markers that agents embed in free-text
// activity, carrying richer events over a plain-text channel.
package marker

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindTaskCreate Kind = iota + 1
	KindTaskUpdate
	KindGitCommit
	KindGitPush
	KindSubagentDone
)

type TaskCreate struct {
	Subject string `json:"subject"`
}

type TaskUpdate struct {
	TaskID  int     `json:"taskId"`
	Status  *string `json:"status,omitempty"`
	Subject *string `json:"subject,omitempty"`
}

type GitCommit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Stat    string `json:"stat,omitempty"`
}

type GitPush struct {
	ToHash    string `json:"toHash"`
	RemoteRef string `json:"remoteRef,omitempty"`
}

type SubagentDone struct {
	SubagentType string `json:"subagentType,omitempty"`
	Summary      string `json:"summary"`
}

// Marker is one parsed structured marker. Exactly one payload field matching
// Kind is set.
type Marker struct {
	Kind         Kind
	TaskCreate   *TaskCreate
	TaskUpdate   *TaskUpdate
	GitCommit    *GitCommit
	GitPush      *GitPush
	SubagentDone *SubagentDone
}

var tags = []struct {
	prefix string
	kind   Kind
}{
	{"TASK_CREATE:", KindTaskCreate},
	{"TASK_UPDATE:", KindTaskUpdate},
	{"GIT_COMMIT:", KindGitCommit},
	{"GIT_PUSH:", KindGitPush},
	{"SUBAGENT_DONE:", KindSubagentDone},
}

// Parse recognizes `TAG:{json payload}` lines. A matching tag with a
// malformed payload returns (zero, false) so callers degrade to a silent
// no-op rather than surfacing garbage to chat.
func Parse(text string) (Marker, bool) {
	trimmed := strings.TrimSpace(text)
	for _, t := range tags {
		if !strings.HasPrefix(trimmed, t.prefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(trimmed, t.prefix))
		m := Marker{Kind: t.kind}
		var err error
		switch t.kind {
		case KindTaskCreate:
			m.TaskCreate = &TaskCreate{}
			err = json.Unmarshal([]byte(payload), m.TaskCreate)
			if err == nil && m.TaskCreate.Subject == "" {
				return Marker{}, false
			}
		case KindTaskUpdate:
			m.TaskUpdate = &TaskUpdate{}
			err = json.Unmarshal([]byte(payload), m.TaskUpdate)
			if err == nil && m.TaskUpdate.TaskID == 0 {
				return Marker{}, false
			}
		case KindGitCommit:
			m.GitCommit = &GitCommit{}
			err = json.Unmarshal([]byte(payload), m.GitCommit)
		case KindGitPush:
			m.GitPush = &GitPush{}
			err = json.Unmarshal([]byte(payload), m.GitPush)
		case KindSubagentDone:
			m.SubagentDone = &SubagentDone{}
			err = json.Unmarshal([]byte(payload), m.SubagentDone)
		}
		if err != nil {
			return Marker{}, false
		}
		return m, true
	}
	return Marker{}, false
}

// IsMarkerLine reports whether the text carries any known tag, well-formed or
// not. Malformed marker lines are dropped instead of being treated as plain
// activity text.
func IsMarkerLine(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, t := range tags {
		if strings.HasPrefix(trimmed, t.prefix) {
			return true
		}
	}
	return false
}

// RenderCommit renders `Committed: "<message>"` with the optional diff stat.
func (c *GitCommit) Render() string {
	line := fmt.Sprintf("Committed: %q", c.Message)
	if c.Stat != "" {
		line += " (" + c.Stat + ")"
	}
	return line
}

// Render renders `Pushed to <remoteRef|remote> (<7-char hash>)`.
func (p *GitPush) Render() string {
	ref := p.RemoteRef
	if ref == "" {
		ref = "remote"
	}
	hash := p.ToHash
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return fmt.Sprintf("Pushed to %s (%s)", ref, hash)
}

// Render renders `<subagentType|agent> done: <summary>`, or "" when the
// summary is blank.
func (s *SubagentDone) Render() string {
	if strings.TrimSpace(s.Summary) == "" {
		return ""
	}
	agent := s.SubagentType
	if agent == "" {
		agent = "agent"
	}
	return fmt.Sprintf("%s done: %s", agent, s.Summary)
}
