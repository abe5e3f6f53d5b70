package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	projects []*Project
}

func (r stubRepo) Get(_ context.Context, name string) (*Project, error) {
	for _, p := range r.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (r stubRepo) List(context.Context) ([]*Project, error) { return r.projects, nil }
func (stubRepo) Upsert(context.Context, *Project) error     { return nil }
func (stubRepo) Delete(context.Context, string) error       { return nil }

func TestServiceLoadSkipsInvalid(t *testing.T) {
	svc := NewService(stubRepo{projects: []*Project{
		{Name: "good", ChannelID: "C1", TmuxSession: "main", Window: "agent"},
		{Name: "bad"}, // missing channel and session
	}})
	require.NoError(t, svc.Load(context.Background()))

	_, ok := svc.Get("good")
	assert.True(t, ok)
	_, ok = svc.Get("bad")
	assert.False(t, ok)
}

func TestServiceResolve(t *testing.T) {
	svc := NewService(stubRepo{projects: []*Project{
		{
			Name:        "proj",
			ChannelID:   "C1",
			TmuxSession: "main",
			AgentType:   "claude",
			Window:      "agent",
			Instances:   map[string]string{"worker-1": "w1"},
		},
	}})
	require.NoError(t, svc.Load(context.Background()))

	b, err := svc.Resolve("proj", "claude", "")
	require.NoError(t, err)
	assert.Equal(t, "C1", b.ChannelID)
	assert.Equal(t, "agent", b.Window)

	b, err = svc.Resolve("proj", "claude", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "w1", b.Window)

	_, err = svc.Resolve("ghost", "claude", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown project")

	_, err = svc.Resolve("proj", "codex", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent type")
}

func TestServiceReloadReplacesCache(t *testing.T) {
	repo := &stubRepo{projects: []*Project{
		{Name: "first", ChannelID: "C1", TmuxSession: "main", Window: "agent"},
	}}
	svc := NewService(*repo)
	require.NoError(t, svc.Load(context.Background()))
	_, ok := svc.Get("first")
	require.True(t, ok)

	svc.repo = stubRepo{projects: []*Project{
		{Name: "second", ChannelID: "C2", TmuxSession: "main", Window: "agent"},
	}}
	require.NoError(t, svc.Load(context.Background()))

	_, ok = svc.Get("first")
	assert.False(t, ok)
	_, ok = svc.Get("second")
	assert.True(t, ok)
}
