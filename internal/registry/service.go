package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Service caches the repository contents so event handling never waits on
// storage, and revalidates every project on reload.
type Service struct {
	repo Repository

	mu       sync.RWMutex
	projects map[string]*Project
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		projects: make(map[string]*Project),
	}
}

// Load replaces the cache with the repository contents. Projects failing
// validation are skipped with a warning rather than blocking the rest.
func (s *Service) Load(ctx context.Context) error {
	projects, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}
	next := make(map[string]*Project, len(projects))
	for _, p := range projects {
		if err := p.Validate(); err != nil {
			slog.Warn("skipping invalid project", "project", p.Name, "error", err)
			continue
		}
		next[p.Name] = p
	}
	s.mu.Lock()
	s.projects = next
	s.mu.Unlock()
	slog.Info("project registry loaded", "projects", len(next))
	return nil
}

func (s *Service) Get(name string) (*Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	return p, ok
}

// Resolve maps (project, agentType/instance) to a delivery binding. An
// unknown project is the caller's rejection case; an unknown instance is a
// warn-and-drop case.
func (s *Service) Resolve(project, agentType, instanceID string) (*Binding, error) {
	p, ok := s.Get(project)
	if !ok {
		return nil, fmt.Errorf("unknown project %s", project)
	}
	if agentType != "" && p.AgentType != "" && agentType != p.AgentType {
		return nil, fmt.Errorf("project %s: unknown agent type %s", project, agentType)
	}
	return p.ResolveBinding(instanceID)
}
