package stores

import (
	"context"
	"sync"

	"github.com/secretlify/cryptly/pkg/model"
)

// InMemoryUserStore implements UserStore for testing/dev.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[model.UserID]model.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[model.UserID]model.User)}
}

func (s *InMemoryUserStore) CreateUser(ctx context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return ErrUserExists
	}
	s.users[user.ID] = user
	return nil
}

func (s *InMemoryUserStore) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *InMemoryUserStore) UpdateUser(ctx context.Context, id model.UserID, updateFn func(model.User) (model.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	updated, err := updateFn(u)
	if err != nil {
		return err
	}
	updated.ID = u.ID
	s.users[id] = updated
	return nil
}

func (s *InMemoryUserStore) DeleteUser(ctx context.Context, id model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *InMemoryUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

var _ UserStore = (*InMemoryUserStore)(nil)
