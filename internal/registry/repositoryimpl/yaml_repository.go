package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/chatbridge/internal/registry"
	"github.com/kazz187/chatbridge/pkg/cerr"
	"github.com/kazz187/chatbridge/pkg/storage"
)

const projectsPrefix = "projects"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(name string) string {
	return fmt.Sprintf("%s/%s.yaml", projectsPrefix, name)
}

func (r *YAMLRepository) Get(ctx context.Context, name string) (*registry.Project, error) {
	data, err := r.storage.Read(ctx, path(name))
	if err != nil {
		return nil, cerr.WrapStorageReadError("project", err)
	}
	var p registry.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal project: %w", err))
	}
	return &p, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*registry.Project, error) {
	paths, err := r.storage.List(ctx, projectsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("projects", err)
	}
	sort.Strings(paths)
	projects := make([]*registry.Project, 0, len(paths))
	for _, pp := range paths {
		data, err := r.storage.Read(ctx, pp)
		if err != nil {
			continue
		}
		var p registry.Project
		if err := yaml.Unmarshal(data, &p); err != nil {
			continue
		}
		projects = append(projects, &p)
	}
	return projects, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, p *registry.Project) error {
	if err := p.Validate(); err != nil {
		return cerr.NewError(cerr.InvalidArgument, err.Error(), nil)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal project: %w", err))
	}
	if err := r.storage.Write(ctx, path(p.Name), data); err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, name string) error {
	if err := r.storage.Delete(ctx, path(name)); err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	return nil
}
