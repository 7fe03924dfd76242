package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/secretlify/cryptly/pkg/model"
)

func openTestBolt(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "cryptly-test.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testVersionStore(t *testing.T, store VersionStore) {
	ctx := context.Background()
	projectID := model.ProjectID("proj-1")

	t.Run("listing an empty history returns nothing", func(t *testing.T) {
		page, next, err := store.ListVersions(ctx, projectID, 10, "")
		assert.NoError(t, err)
		assert.Empty(t, page)
		assert.Empty(t, next)
		_, err = store.LatestVersion(ctx, projectID)
		assert.ErrorIs(t, err, ErrVersionNotFound)
	})

	id1, err := store.AppendVersion(ctx, projectID, "alice", "blob-1")
	require.NoError(t, err)
	id2, err := store.AppendVersion(ctx, projectID, "bob", "blob-2")
	require.NoError(t, err)
	id3, err := store.AppendVersion(ctx, projectID, "", "blob-3")
	require.NoError(t, err)

	t.Run("history reads newest first", func(t *testing.T) {
		page, next, err := store.ListVersions(ctx, projectID, 10, "")
		assert.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, id3, page[0].ID)
		assert.Equal(t, id2, page[1].ID)
		assert.Equal(t, id1, page[2].ID)
		assert.Empty(t, next)
		assert.True(t, !page[0].CreatedAt.Before(page[1].CreatedAt))
		assert.True(t, !page[1].CreatedAt.Before(page[2].CreatedAt))
	})

	t.Run("appending never overwrites earlier entries", func(t *testing.T) {
		page, _, err := store.ListVersions(ctx, projectID, 10, "")
		assert.NoError(t, err)
		assert.Equal(t, "blob-1", page[2].EncryptedSecrets)
		assert.Equal(t, model.UserID("alice"), page[2].AuthorID)
	})

	t.Run("anonymous author is preserved as empty", func(t *testing.T) {
		latest, err := store.LatestVersion(ctx, projectID)
		assert.NoError(t, err)
		assert.Equal(t, id3, latest.ID)
		assert.Equal(t, model.UserID(""), latest.AuthorID)
	})

	t.Run("pagination is restartable via cursor", func(t *testing.T) {
		first, cursor, err := store.ListVersions(ctx, projectID, 2, "")
		assert.NoError(t, err)
		require.Len(t, first, 2)
		require.NotEmpty(t, cursor)

		rest, next, err := store.ListVersions(ctx, projectID, 2, cursor)
		assert.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, id1, rest[0].ID)
		assert.Empty(t, next)
	})

	t.Run("invalid cursors are rejected", func(t *testing.T) {
		_, _, err := store.ListVersions(ctx, projectID, 2, "bogus-cursor")
		assert.Error(t, err)
	})

	t.Run("other projects see an isolated history", func(t *testing.T) {
		page, _, err := store.ListVersions(ctx, "proj-2", 10, "")
		assert.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("project deletion cascade drops the history", func(t *testing.T) {
		assert.NoError(t, store.DeleteProjectVersions(ctx, projectID))
		page, _, err := store.ListVersions(ctx, projectID, 10, "")
		assert.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestInMemoryVersionStore(t *testing.T) {
	testVersionStore(t, NewInMemoryVersionStore())
}

func TestBoltVersionStore(t *testing.T) {
	testVersionStore(t, NewBoltVersionStore(openTestBolt(t)))
}
