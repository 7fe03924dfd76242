package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/secretlify/cryptly/pkg/model"
)

const versionKind = "SecretsVersion"

// VersionDataStore implements VersionStore using Google Cloud Datastore.
// Pagination is backed by native datastore cursors, which are stateless
// and restartable.
type VersionDataStore struct {
	client *datastore.Client
}

func NewVersionDataStore(client *datastore.Client) *VersionDataStore {
	return &VersionDataStore{client: client}
}

func (s *VersionDataStore) versionKey(id model.VersionID) *datastore.Key {
	return datastore.NameKey(versionKind, string(id), nil)
}

func (s *VersionDataStore) AppendVersion(ctx context.Context, projectID model.ProjectID, authorID model.UserID, encryptedSecrets string) (model.VersionID, error) {
	now := time.Now().UTC()
	v := model.SecretsVersion{
		ID:               model.VersionID(model.NewID()),
		ProjectID:        projectID,
		AuthorID:         authorID,
		EncryptedSecrets: encryptedSecrets,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.client.Put(ctx, s.versionKey(v.ID), &v); err != nil {
		return "", err
	}
	return v.ID, nil
}

func (s *VersionDataStore) ListVersions(ctx context.Context, projectID model.ProjectID, limit int, cursor string) ([]model.SecretsVersion, string, error) {
	if limit <= 0 {
		limit = DefaultVersionPageSize
	}
	query := datastore.NewQuery(versionKind).
		FilterField("project_id", "=", string(projectID)).
		Order("-created_at").
		Limit(limit)
	if cursor != "" {
		decoded, err := datastore.DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		query = query.Start(decoded)
	}

	it := s.client.Run(ctx, query)
	var page []model.SecretsVersion
	for {
		var v model.SecretsVersion
		_, err := it.Next(&v)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, "", err
		}
		page = append(page, v)
	}
	next := ""
	if len(page) == limit {
		c, err := it.Cursor()
		if err != nil {
			return nil, "", err
		}
		next = c.String()
	}
	return page, next, nil
}

func (s *VersionDataStore) LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error) {
	page, _, err := s.ListVersions(ctx, projectID, 1, "")
	if err != nil {
		return model.SecretsVersion{}, err
	}
	if len(page) == 0 {
		return model.SecretsVersion{}, ErrVersionNotFound
	}
	return page[0], nil
}

func (s *VersionDataStore) DeleteProjectVersions(ctx context.Context, projectID model.ProjectID) error {
	query := datastore.NewQuery(versionKind).
		FilterField("project_id", "=", string(projectID)).
		KeysOnly()
	keys, err := s.client.GetAll(ctx, query, nil)
	if err != nil {
		return err
	}
	return s.client.DeleteMulti(ctx, keys)
}

var _ VersionStore = (*VersionDataStore)(nil)
