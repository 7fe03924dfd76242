package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/secretlify/cryptly/pkg/model"
)

const versionBucket = "versions"

// BoltVersionStore keeps one nested bucket per project under "versions".
// Entry keys are the versionCursor format, so a reverse scan yields
// CreatedAt-descending order and the cursor is just the last seen key.
type BoltVersionStore struct {
	db *bbolt.DB
}

func NewBoltVersionStore(db *bbolt.DB) *BoltVersionStore {
	return &BoltVersionStore{db: db}
}

func (s *BoltVersionStore) AppendVersion(ctx context.Context, projectID model.ProjectID, authorID model.UserID, encryptedSecrets string) (model.VersionID, error) {
	now := time.Now().UTC()
	v := model.SecretsVersion{
		ID:               model.VersionID(model.NewID()),
		ProjectID:        projectID,
		AuthorID:         authorID,
		EncryptedSecrets: encryptedSecrets,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(versionBucket))
		if err != nil {
			return err
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(projectID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		// Insert only; existing keys are never overwritten.
		key := []byte(versionCursor(v))
		if bucket.Get(key) != nil {
			return fmt.Errorf("duplicate version key %q", key)
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

func (s *BoltVersionStore) ListVersions(ctx context.Context, projectID model.ProjectID, limit int, cursor string) ([]model.SecretsVersion, string, error) {
	if limit <= 0 {
		limit = DefaultVersionPageSize
	}
	var page []model.SecretsVersion
	next := ""
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(versionBucket))
		if root == nil {
			return nil
		}
		bucket := root.Bucket([]byte(projectID))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		var k, v []byte
		if cursor == "" {
			k, v = c.Last()
		} else {
			// Position at the cursor key, then step past it.
			k, v = c.Seek([]byte(cursor))
			if k == nil || !bytes.Equal(k, []byte(cursor)) {
				return fmt.Errorf("invalid cursor %q", cursor)
			}
			k, v = c.Prev()
		}
		for ; k != nil && len(page) < limit; k, v = c.Prev() {
			var entry model.SecretsVersion
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			page = append(page, entry)
		}
		if k != nil && len(page) == limit {
			next = versionCursor(page[len(page)-1])
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}

func (s *BoltVersionStore) LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error) {
	var latest model.SecretsVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(versionBucket))
		if root == nil {
			return ErrVersionNotFound
		}
		bucket := root.Bucket([]byte(projectID))
		if bucket == nil {
			return ErrVersionNotFound
		}
		k, v := bucket.Cursor().Last()
		if k == nil {
			return ErrVersionNotFound
		}
		return json.Unmarshal(v, &latest)
	})
	return latest, err
}

func (s *BoltVersionStore) DeleteProjectVersions(ctx context.Context, projectID model.ProjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(versionBucket))
		if root == nil {
			return nil
		}
		if root.Bucket([]byte(projectID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(projectID))
	})
}

var _ VersionStore = (*BoltVersionStore)(nil)
