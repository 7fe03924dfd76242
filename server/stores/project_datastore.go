package stores

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/secretlify/cryptly/pkg/model"
)

const projectKind = "Project"

// memberEntry flattens the project's member and wrapped-key maps into a
// datastore-friendly slice.
type memberEntry struct {
	UserID     string `datastore:"user_id"`
	Role       string `datastore:"role"`
	WrappedKey string `datastore:"wrapped_key,noindex"`
}

type projectEntity struct {
	ID        string        `datastore:"id"`
	Members   []memberEntry `datastore:"members,noindex"`
	CreatedAt time.Time     `datastore:"created_at"`
	UpdatedAt time.Time     `datastore:"updated_at"`
}

func toProjectEntity(p model.Project) projectEntity {
	entity := projectEntity{
		ID:        string(p.ID),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for id, role := range p.Members {
		entity.Members = append(entity.Members, memberEntry{
			UserID:     string(id),
			Role:       string(role),
			WrappedKey: p.EncryptedKeyVersions[id],
		})
	}
	return entity
}

func fromProjectEntity(e projectEntity) model.Project {
	p := model.Project{
		ID:                   model.ProjectID(e.ID),
		Members:              make(map[model.UserID]model.Role, len(e.Members)),
		EncryptedKeyVersions: make(map[model.UserID]string, len(e.Members)),
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	for _, m := range e.Members {
		p.Members[model.UserID(m.UserID)] = model.Role(m.Role)
		if m.WrappedKey != "" {
			p.EncryptedKeyVersions[model.UserID(m.UserID)] = m.WrappedKey
		}
	}
	return p
}

// ProjectDataStore implements ProjectStore using Google Cloud Datastore.
type ProjectDataStore struct {
	client *datastore.Client
}

func NewProjectDataStore(client *datastore.Client) *ProjectDataStore {
	return &ProjectDataStore{client: client}
}

func (s *ProjectDataStore) Close() error {
	return s.client.Close()
}

func (s *ProjectDataStore) projectKey(id model.ProjectID) *datastore.Key {
	return datastore.NameKey(projectKind, string(id), nil)
}

func (s *ProjectDataStore) CreateProject(ctx context.Context, project model.Project) error {
	key := s.projectKey(project.ID)
	var existing projectEntity
	err := s.client.Get(ctx, key, &existing)
	if err == nil {
		return ErrProjectExists
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	entity := toProjectEntity(project)
	_, err = s.client.Put(ctx, key, &entity)
	return err
}

func (s *ProjectDataStore) GetProject(ctx context.Context, id model.ProjectID) (model.Project, error) {
	var entity projectEntity
	err := s.client.Get(ctx, s.projectKey(id), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return model.Project{}, ErrProjectNotFound
	}
	if err != nil {
		return model.Project{}, err
	}
	return fromProjectEntity(entity), nil
}

func (s *ProjectDataStore) UpdateProject(ctx context.Context, id model.ProjectID, updateFn func(model.Project) (model.Project, error)) error {
	key := s.projectKey(id)
	tx, err := s.client.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var entity projectEntity
	err = tx.Get(key, &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrProjectNotFound
	}
	if err != nil {
		return err
	}
	updated, err := updateFn(fromProjectEntity(entity))
	if err != nil {
		return err
	}
	if updated.ID != id {
		return errors.New("cannot change project id during update")
	}
	next := toProjectEntity(updated)
	if _, err := tx.Put(key, &next); err != nil {
		return err
	}
	_, err = tx.Commit()
	return err
}

func (s *ProjectDataStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	var entities []projectEntity
	query := datastore.NewQuery(projectKind)
	if _, err := s.client.GetAll(ctx, query, &entities); err != nil {
		return nil, err
	}
	projects := make([]model.Project, 0, len(entities))
	for _, e := range entities {
		projects = append(projects, fromProjectEntity(e))
	}
	return projects, nil
}

func (s *ProjectDataStore) DeleteProject(ctx context.Context, id model.ProjectID) error {
	key := s.projectKey(id)
	var entity projectEntity
	err := s.client.Get(ctx, key, &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrProjectNotFound
	}
	if err != nil {
		return err
	}
	return s.client.Delete(ctx, key)
}

var _ ProjectStore = (*ProjectDataStore)(nil)
