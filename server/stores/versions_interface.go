package stores

import (
	"context"
	"errors"

	"github.com/secretlify/cryptly/pkg/model"
)

var ErrVersionNotFound = errors.New("secrets version not found")

// DefaultVersionPageSize bounds a single history page when the caller does
// not ask for less.
const DefaultVersionPageSize = 50

// VersionStore is the append-only history of encrypted secret blobs.
// Records are never updated or deleted individually; the only delete path
// is the project deletion cascade.
type VersionStore interface {
	// AppendVersion inserts a new record and returns its id. Timestamp
	// assignment happens at call time; concurrent appends have no ordering
	// guarantee beyond that.
	AppendVersion(ctx context.Context, projectID model.ProjectID, authorID model.UserID, encryptedSecrets string) (model.VersionID, error)
	// ListVersions returns up to limit versions ordered by CreatedAt
	// descending, starting after the given cursor. The returned cursor is
	// empty when the history is exhausted; it is otherwise stateless and
	// restartable.
	ListVersions(ctx context.Context, projectID model.ProjectID, limit int, cursor string) ([]model.SecretsVersion, string, error)
	// LatestVersion returns the most recent version for a project.
	LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error)
	// DeleteProjectVersions removes a project's entire history. Only used
	// by the project deletion cascade.
	DeleteProjectVersions(ctx context.Context, projectID model.ProjectID) error
}
