package stores

import (
	"context"
	"sync"

	"github.com/secretlify/cryptly/pkg/model"
)

// InMemoryIntegrationStore implements IntegrationStore for testing/dev.
type InMemoryIntegrationStore struct {
	mu           sync.RWMutex
	integrations map[model.IntegrationID]model.Integration
	byRepository map[int64]model.IntegrationID
}

func NewInMemoryIntegrationStore() *InMemoryIntegrationStore {
	return &InMemoryIntegrationStore{
		integrations: make(map[model.IntegrationID]model.Integration),
		byRepository: make(map[int64]model.IntegrationID),
	}
}

func (s *InMemoryIntegrationStore) CreateIntegration(ctx context.Context, integration model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, linked := s.byRepository[integration.RepositoryID]; linked {
		return ErrRepositoryLinked
	}
	s.integrations[integration.ID] = integration
	s.byRepository[integration.RepositoryID] = integration.ID
	return nil
}

func (s *InMemoryIntegrationStore) GetIntegration(ctx context.Context, id model.IntegrationID) (model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.integrations[id]
	if !ok {
		return model.Integration{}, ErrIntegrationNotFound
	}
	return rec, nil
}

func (s *InMemoryIntegrationStore) FindByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Integration
	for _, rec := range s.integrations {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryIntegrationStore) UpdateIntegration(ctx context.Context, id model.IntegrationID, updateFn func(model.Integration) (model.Integration, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.integrations[id]
	if !ok {
		return ErrIntegrationNotFound
	}
	updated, err := updateFn(rec)
	if err != nil {
		return err
	}
	updated.ID = rec.ID
	updated.RepositoryID = rec.RepositoryID
	s.integrations[id] = updated
	return nil
}

func (s *InMemoryIntegrationStore) DeleteIntegration(ctx context.Context, id model.IntegrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.integrations[id]
	if !ok {
		return ErrIntegrationNotFound
	}
	delete(s.byRepository, rec.RepositoryID)
	delete(s.integrations, id)
	return nil
}

func (s *InMemoryIntegrationStore) DeleteProjectIntegrations(ctx context.Context, projectID model.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.integrations {
		if rec.ProjectID == projectID {
			delete(s.byRepository, rec.RepositoryID)
			delete(s.integrations, id)
		}
	}
	return nil
}

var _ IntegrationStore = (*InMemoryIntegrationStore)(nil)
