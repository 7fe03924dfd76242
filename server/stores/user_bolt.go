package stores

import (
	"context"
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/secretlify/cryptly/pkg/model"
)

const userBucket = "users"

type BoltUserStore struct {
	db *bbolt.DB
}

func NewBoltUserStore(db *bbolt.DB) *BoltUserStore {
	return &BoltUserStore{db: db}
}

func (s *BoltUserStore) CreateUser(ctx context.Context, user model.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(userBucket))
		if err != nil {
			return err
		}
		if bucket.Get([]byte(user.ID)) != nil {
			return ErrUserExists
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(user.ID), data)
	})
}

func (s *BoltUserStore) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(userBucket))
		if bucket == nil {
			return ErrUserNotFound
		}
		val := bucket.Get([]byte(id))
		if val == nil {
			return ErrUserNotFound
		}
		return json.Unmarshal(val, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltUserStore) UpdateUser(ctx context.Context, id model.UserID, updateFn func(model.User) (model.User, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(userBucket))
		if bucket == nil {
			return ErrUserNotFound
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrUserNotFound
		}
		var user model.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return err
		}
		updated, err := updateFn(user)
		if err != nil {
			return err
		}
		updated.ID = user.ID
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), data)
	})
}

func (s *BoltUserStore) DeleteUser(ctx context.Context, id model.UserID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(userBucket))
		if bucket == nil {
			return ErrUserNotFound
		}
		if bucket.Get([]byte(id)) == nil {
			return ErrUserNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

func (s *BoltUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(userBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var u model.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	return users, err
}

var _ UserStore = (*BoltUserStore)(nil)
