package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
		kind Kind
	}{
		{"task create", `TASK_CREATE:{"subject":"write code"}`, true, KindTaskCreate},
		{"task create empty subject", `TASK_CREATE:{"subject":""}`, false, 0},
		{"task create bad json", `TASK_CREATE:{oops`, false, 0},
		{"task update", `TASK_UPDATE:{"taskId":3,"status":"completed"}`, true, KindTaskUpdate},
		{"task update missing id", `TASK_UPDATE:{"status":"completed"}`, false, 0},
		{"git commit", `GIT_COMMIT:{"hash":"abc1234","message":"fix bug"}`, true, KindGitCommit},
		{"git push", `GIT_PUSH:{"toHash":"abc1234def","remoteRef":"origin/main"}`, true, KindGitPush},
		{"subagent done", `SUBAGENT_DONE:{"subagentType":"reviewer","summary":"looks good"}`, true, KindSubagentDone},
		{"leading whitespace", `   GIT_PUSH:{"toHash":"abc"}`, true, KindGitPush},
		{"plain text", "just some output", false, 0},
		{"tag mid-line", "prefix TASK_CREATE:{}", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Parse(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.kind, m.Kind)
			}
		})
	}
}

func TestIsMarkerLine(t *testing.T) {
	// Malformed payloads still count: they must be swallowed, not forwarded
	// as activity text.
	assert.True(t, IsMarkerLine(`GIT_COMMIT:{broken`))
	assert.True(t, IsMarkerLine(`TASK_UPDATE:`))
	assert.False(t, IsMarkerLine("regular line"))
	assert.False(t, IsMarkerLine(""))
}

func TestGitCommitRender(t *testing.T) {
	c := &GitCommit{Hash: "abc1234", Message: "fix bug"}
	assert.Equal(t, `Committed: "fix bug"`, c.Render())

	c.Stat = "2 files changed"
	assert.Equal(t, `Committed: "fix bug" (2 files changed)`, c.Render())
}

func TestGitPushRender(t *testing.T) {
	p := &GitPush{ToHash: "abc1234def5678", RemoteRef: "origin/main"}
	assert.Equal(t, "Pushed to origin/main (abc1234)", p.Render())

	p = &GitPush{ToHash: "ab12"}
	assert.Equal(t, "Pushed to remote (ab12)", p.Render())
}

func TestSubagentDoneRender(t *testing.T) {
	s := &SubagentDone{SubagentType: "reviewer", Summary: "looks good"}
	assert.Equal(t, "reviewer done: looks good", s.Render())

	s = &SubagentDone{Summary: "done"}
	assert.Equal(t, "agent done: done", s.Render())

	s = &SubagentDone{SubagentType: "reviewer", Summary: "  "}
	assert.Equal(t, "", s.Render())
}
