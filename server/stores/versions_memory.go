package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/secretlify/cryptly/pkg/model"
)

// InMemoryVersionStore implements VersionStore for testing/dev. Entries
// are held in append order per project and read back newest-first.
type InMemoryVersionStore struct {
	mu       sync.RWMutex
	versions map[model.ProjectID][]model.SecretsVersion
}

func NewInMemoryVersionStore() *InMemoryVersionStore {
	return &InMemoryVersionStore{versions: make(map[model.ProjectID][]model.SecretsVersion)}
}

func (s *InMemoryVersionStore) AppendVersion(ctx context.Context, projectID model.ProjectID, authorID model.UserID, encryptedSecrets string) (model.VersionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	v := model.SecretsVersion{
		ID:               model.VersionID(model.NewID()),
		ProjectID:        projectID,
		AuthorID:         authorID,
		EncryptedSecrets: encryptedSecrets,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.versions[projectID] = append(s.versions[projectID], v)
	return v.ID, nil
}

func (s *InMemoryVersionStore) ListVersions(ctx context.Context, projectID model.ProjectID, limit int, cursor string) ([]model.SecretsVersion, string, error) {
	if limit <= 0 {
		limit = DefaultVersionPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.versions[projectID]

	// Walk newest-first; skip until past the cursor entry.
	start := len(all) - 1
	if cursor != "" {
		found := false
		for i := len(all) - 1; i >= 0; i-- {
			if versionCursor(all[i]) == cursor {
				start = i - 1
				found = true
				break
			}
		}
		if !found {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	var page []model.SecretsVersion
	for i := start; i >= 0 && len(page) < limit; i-- {
		page = append(page, all[i])
	}
	next := ""
	if len(page) == limit && start-limit >= 0 {
		next = versionCursor(page[len(page)-1])
	}
	return page, next, nil
}

func (s *InMemoryVersionStore) LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.versions[projectID]
	if len(all) == 0 {
		return model.SecretsVersion{}, ErrVersionNotFound
	}
	return all[len(all)-1], nil
}

func (s *InMemoryVersionStore) DeleteProjectVersions(ctx context.Context, projectID model.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, projectID)
	return nil
}

// versionCursor is the stateless cursor format shared with the bolt store:
// creation time (nanoseconds, zero-padded for lexical order) plus id.
func versionCursor(v model.SecretsVersion) string {
	return fmt.Sprintf("%020d:%s", v.CreatedAt.UnixNano(), v.ID)
}

var _ VersionStore = (*InMemoryVersionStore)(nil)
