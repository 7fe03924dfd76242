package stores

import (
	"context"
	"errors"

	"cloud.google.com/go/datastore"

	"github.com/secretlify/cryptly/pkg/model"
)

const userKind = "User"

// UserDataStore implements UserStore using Google Cloud Datastore.
type UserDataStore struct {
	client *datastore.Client
}

func NewUserDataStore(client *datastore.Client) *UserDataStore {
	return &UserDataStore{client: client}
}

func (s *UserDataStore) userKey(id model.UserID) *datastore.Key {
	return datastore.NameKey(userKind, string(id), nil)
}

func (s *UserDataStore) CreateUser(ctx context.Context, user model.User) error {
	key := s.userKey(user.ID)
	var existing model.User
	err := s.client.Get(ctx, key, &existing)
	if err == nil {
		return ErrUserExists
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = s.client.Put(ctx, key, &user)
	return err
}

func (s *UserDataStore) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	err := s.client.Get(ctx, s.userKey(id), &user)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserDataStore) UpdateUser(ctx context.Context, id model.UserID, updateFn func(model.User) (model.User, error)) error {
	key := s.userKey(id)
	tx, err := s.client.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var user model.User
	err = tx.Get(key, &user)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	updated, err := updateFn(user)
	if err != nil {
		return err
	}
	updated.ID = user.ID
	if _, err := tx.Put(key, &updated); err != nil {
		return err
	}
	_, err = tx.Commit()
	return err
}

func (s *UserDataStore) DeleteUser(ctx context.Context, id model.UserID) error {
	key := s.userKey(id)
	var user model.User
	err := s.client.Get(ctx, key, &user)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	return s.client.Delete(ctx, key)
}

func (s *UserDataStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if _, err := s.client.GetAll(ctx, datastore.NewQuery(userKind), &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

var _ UserStore = (*UserDataStore)(nil)
