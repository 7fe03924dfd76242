// Package stores holds the persistence layer: one interface per entity,
// each with in-memory, BoltDB and Cloud Datastore implementations.
package stores

import (
	"context"
	"errors"

	"github.com/secretlify/cryptly/pkg/model"
)

var ErrProjectExists = errors.New("project already exists")
var ErrProjectNotFound = errors.New("project not found")

type ProjectStore interface {
	CreateProject(ctx context.Context, project model.Project) error
	GetProject(ctx context.Context, id model.ProjectID) (model.Project, error)
	// UpdateProject applies updateFn to the stored project atomically.
	UpdateProject(ctx context.Context, id model.ProjectID, updateFn func(model.Project) (model.Project, error)) error
	ListProjects(ctx context.Context) ([]model.Project, error)
	DeleteProject(ctx context.Context, id model.ProjectID) error
}
