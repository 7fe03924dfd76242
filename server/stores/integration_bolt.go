package stores

import (
	"context"
	"encoding/json"
	"strconv"

	"go.etcd.io/bbolt"

	"github.com/secretlify/cryptly/pkg/model"
)

const (
	integrationBucket     = "integrations"
	integrationRepoBucket = "integration_repos" // repository id -> integration id
)

type BoltIntegrationStore struct {
	db *bbolt.DB
}

func NewBoltIntegrationStore(db *bbolt.DB) *BoltIntegrationStore {
	return &BoltIntegrationStore{db: db}
}

func repoKey(repositoryID int64) []byte {
	return []byte(strconv.FormatInt(repositoryID, 10))
}

func (s *BoltIntegrationStore) CreateIntegration(ctx context.Context, integration model.Integration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(integrationBucket))
		if err != nil {
			return err
		}
		repoIdx, err := tx.CreateBucketIfNotExists([]byte(integrationRepoBucket))
		if err != nil {
			return err
		}
		if repoIdx.Get(repoKey(integration.RepositoryID)) != nil {
			return ErrRepositoryLinked
		}
		data, err := json.Marshal(integration)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(integration.ID), data); err != nil {
			return err
		}
		return repoIdx.Put(repoKey(integration.RepositoryID), []byte(integration.ID))
	})
}

func (s *BoltIntegrationStore) GetIntegration(ctx context.Context, id model.IntegrationID) (model.Integration, error) {
	var rec model.Integration
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(integrationBucket))
		if bucket == nil {
			return ErrIntegrationNotFound
		}
		val := bucket.Get([]byte(id))
		if val == nil {
			return ErrIntegrationNotFound
		}
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func (s *BoltIntegrationStore) FindByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error) {
	var out []model.Integration
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(integrationBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec model.Integration
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.ProjectID == projectID {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltIntegrationStore) UpdateIntegration(ctx context.Context, id model.IntegrationID, updateFn func(model.Integration) (model.Integration, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(integrationBucket))
		if bucket == nil {
			return ErrIntegrationNotFound
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrIntegrationNotFound
		}
		var rec model.Integration
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		updated, err := updateFn(rec)
		if err != nil {
			return err
		}
		updated.ID = rec.ID
		updated.RepositoryID = rec.RepositoryID
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), data)
	})
}

func (s *BoltIntegrationStore) DeleteIntegration(ctx context.Context, id model.IntegrationID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(integrationBucket))
		if bucket == nil {
			return ErrIntegrationNotFound
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrIntegrationNotFound
		}
		var rec model.Integration
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if repoIdx := tx.Bucket([]byte(integrationRepoBucket)); repoIdx != nil {
			if err := repoIdx.Delete(repoKey(rec.RepositoryID)); err != nil {
				return err
			}
		}
		return bucket.Delete([]byte(id))
	})
}

func (s *BoltIntegrationStore) DeleteProjectIntegrations(ctx context.Context, projectID model.ProjectID) error {
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

var _ IntegrationStore = (*BoltIntegrationStore)(nil)
