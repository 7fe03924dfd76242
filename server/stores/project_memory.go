package stores

import (
	"context"
	"sync"

	"github.com/secretlify/cryptly/pkg/model"
)

// InMemoryProjectStore implements ProjectStore for testing/dev.
type InMemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[model.ProjectID]model.Project
}

func NewInMemoryProjectStore() *InMemoryProjectStore {
	return &InMemoryProjectStore{projects: make(map[model.ProjectID]model.Project)}
}

func cloneProject(p model.Project) model.Project {
	members := make(map[model.UserID]model.Role, len(p.Members))
	for k, v := range p.Members {
		members[k] = v
	}
	keys := make(map[model.UserID]string, len(p.EncryptedKeyVersions))
	for k, v := range p.EncryptedKeyVersions {
		keys[k] = v
	}
	p.Members = members
	p.EncryptedKeyVersions = keys
	return p
}

func (s *InMemoryProjectStore) CreateProject(ctx context.Context, project model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return ErrProjectExists
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

func (s *InMemoryProjectStore) GetProject(ctx context.Context, id model.ProjectID) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, ErrProjectNotFound
	}
	return cloneProject(p), nil
}

func (s *InMemoryProjectStore) UpdateProject(ctx context.Context, id model.ProjectID, updateFn func(model.Project) (model.Project, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrProjectNotFound
	}
	updated, err := updateFn(cloneProject(p))
	if err != nil {
		return err
	}
	updated.ID = p.ID
	s.projects[id] = cloneProject(updated)
	return nil
}

func (s *InMemoryProjectStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, cloneProject(p))
	}
	return projects, nil
}

func (s *InMemoryProjectStore) DeleteProject(ctx context.Context, id model.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return ErrProjectNotFound
	}
	delete(s.projects, id)
	return nil
}

var _ ProjectStore = (*InMemoryProjectStore)(nil)
