package repositoryimpl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/chatbridge/internal/registry"
	"github.com/kazz187/chatbridge/pkg/cerr"
	"github.com/kazz187/chatbridge/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func TestUpsertAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := &registry.Project{
		Name:        "proj",
		ChannelID:   "C1",
		TmuxSession: "main",
		AgentType:   "claude",
		Window:      "agent",
		Instances:   map[string]string{"worker-1": "w1"},
	}
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.Get(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	repo := newRepo(t)

	err := repo.Upsert(context.Background(), &registry.Project{Name: "broken"})
	require.Error(t, err)
	var ce *cerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, cerr.InvalidArgument, ce.Code)
}

func TestGetMissing(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.Get(context.Background(), "ghost")
	require.Error(t, err)
	var ce *cerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestListAndDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		require.NoError(t, repo.Upsert(ctx, &registry.Project{
			Name:        name,
			ChannelID:   "C1",
			TmuxSession: "main",
			Window:      "agent",
		}))
	}

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "beta", projects[1].Name)

	require.NoError(t, repo.Delete(ctx, "alpha"))
	projects, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "beta", projects[0].Name)
}
