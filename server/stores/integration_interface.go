package stores

import (
	"context"
	"errors"

	"github.com/secretlify/cryptly/pkg/model"
)

var ErrIntegrationNotFound = errors.New("integration not found")

// ErrRepositoryLinked is returned when the external repository is already
// linked to a project; a repository belongs to at most one project.
var ErrRepositoryLinked = errors.New("repository already linked to a project")

// IntegrationStore persists project-to-repository links. Integrations are
// exclusively owned by their project and removed on project deletion or
// explicit unlink.
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, integration model.Integration) error
	GetIntegration(ctx context.Context, id model.IntegrationID) (model.Integration, error)
	// FindByProject returns all integrations linked to a project.
	FindByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error)
	// UpdateIntegration applies updateFn atomically; used to refresh cached
	// repository key material.
	UpdateIntegration(ctx context.Context, id model.IntegrationID, updateFn func(model.Integration) (model.Integration, error)) error
	DeleteIntegration(ctx context.Context, id model.IntegrationID) error
	// DeleteProjectIntegrations is the project deletion cascade.
	DeleteProjectIntegrations(ctx context.Context, projectID model.ProjectID) error
}
