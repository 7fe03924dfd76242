package stores

import (
	"context"
	"errors"
	"strconv"

	"cloud.google.com/go/datastore"

	"github.com/secretlify/cryptly/pkg/model"
)

const (
	integrationKind     = "Integration"
	integrationRepoKind = "IntegrationRepo" // uniqueness guard per external repository
)

// IntegrationDataStore implements IntegrationStore using Google Cloud
// Datastore. A companion IntegrationRepo entity keyed by repository id
// enforces the at-most-one-project-per-repository constraint inside the
// creation transaction.
type IntegrationDataStore struct {
	client *datastore.Client
}

func NewIntegrationDataStore(client *datastore.Client) *IntegrationDataStore {
	return &IntegrationDataStore{client: client}
}

type integrationRepoLink struct {
	IntegrationID string `datastore:"integration_id"`
}

func (s *IntegrationDataStore) integrationKey(id model.IntegrationID) *datastore.Key {
	return datastore.NameKey(integrationKind, string(id), nil)
}

func (s *IntegrationDataStore) repoLinkKey(repositoryID int64) *datastore.Key {
	return datastore.NameKey(integrationRepoKind, strconv.FormatInt(repositoryID, 10), nil)
}

func (s *IntegrationDataStore) CreateIntegration(ctx context.Context, integration model.Integration) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var link integrationRepoLink
		err := tx.Get(s.repoLinkKey(integration.RepositoryID), &link)
		if err == nil {
			return ErrRepositoryLinked
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(s.integrationKey(integration.ID), &integration); err != nil {
			return err
		}
		_, err = tx.Put(s.repoLinkKey(integration.RepositoryID), &integrationRepoLink{IntegrationID: string(integration.ID)})
		return err
	})
	return err
}

func (s *IntegrationDataStore) GetIntegration(ctx context.Context, id model.IntegrationID) (model.Integration, error) {
	var rec model.Integration
	err := s.client.Get(ctx, s.integrationKey(id), &rec)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return model.Integration{}, ErrIntegrationNotFound
	}
	if err != nil {
		return model.Integration{}, err
	}
	return rec, nil
}

func (s *IntegrationDataStore) FindByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error) {
	var out []model.Integration
	query := datastore.NewQuery(integrationKind).FilterField("project_id", "=", string(projectID))
	if _, err := s.client.GetAll(ctx, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *IntegrationDataStore) UpdateIntegration(ctx context.Context, id model.IntegrationID, updateFn func(model.Integration) (model.Integration, error)) error {
	key := s.integrationKey(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var rec model.Integration
		err := tx.Get(key, &rec)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return ErrIntegrationNotFound
		}
		if err != nil {
			return err
		}
		updated, err := updateFn(rec)
		if err != nil {
			return err
		}
		updated.ID = rec.ID
		updated.RepositoryID = rec.RepositoryID
		_, err = tx.Put(key, &updated)
		return err
	})
	return err
}

func (s *IntegrationDataStore) DeleteIntegration(ctx context.Context, id model.IntegrationID) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var rec model.Integration
		err := tx.Get(s.integrationKey(id), &rec)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return ErrIntegrationNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(s.repoLinkKey(rec.RepositoryID)); err != nil {
			return err
		}
		return tx.Delete(s.integrationKey(id))
	})
	return err
}

func (s *IntegrationDataStore) DeleteProjectIntegrations(ctx context.Context, projectID model.ProjectID) error {
	integrations, err := s.FindByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, rec := range integrations {
		if err := s.DeleteIntegration(ctx, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

var _ IntegrationStore = (*IntegrationDataStore)(nil)
