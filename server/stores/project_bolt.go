package stores

import (
	"context"
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/secretlify/cryptly/pkg/model"
)

const projectBucket = "projects"

type BoltProjectStore struct {
	db *bbolt.DB
}

func NewBoltProjectStore(db *bbolt.DB) *BoltProjectStore {
	return &BoltProjectStore{db: db}
}

func (s *BoltProjectStore) CreateProject(ctx context.Context, project model.Project) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(projectBucket))
		if err != nil {
			return err
		}
		if bucket.Get([]byte(project.ID)) != nil {
			return ErrProjectExists
		}
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(project.ID), data)
	})
}

func (s *BoltProjectStore) GetProject(ctx context.Context, id model.ProjectID) (model.Project, error) {
	var project model.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(projectBucket))
		if bucket == nil {
			return ErrProjectNotFound
		}
		val := bucket.Get([]byte(id))
		if val == nil {
			return ErrProjectNotFound
		}
		return json.Unmarshal(val, &project)
	})
	return project, err
}

func (s *BoltProjectStore) UpdateProject(ctx context.Context, id model.ProjectID, updateFn func(model.Project) (model.Project, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(projectBucket))
		if bucket == nil {
			return ErrProjectNotFound
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrProjectNotFound
		}
		var project model.Project
		if err := json.Unmarshal(raw, &project); err != nil {
			return err
		}
		updated, err := updateFn(project)
		if err != nil {
			return err
		}
		updated.ID = project.ID
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), data)
	})
}

func (s *BoltProjectStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(projectBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var p model.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			projects = append(projects, p)
			return nil
		})
	})
	return projects, err
}

func (s *BoltProjectStore) DeleteProject(ctx context.Context, id model.ProjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(projectBucket))
		if bucket == nil {
			return ErrProjectNotFound
		}
		if bucket.Get([]byte(id)) == nil {
			return ErrProjectNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

var _ ProjectStore = (*BoltProjectStore)(nil)
