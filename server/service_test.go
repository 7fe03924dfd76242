package server

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/githubapp"
	"github.com/secretlify/cryptly/pkg/integration"
	"github.com/secretlify/cryptly/pkg/keydist"
	"github.com/secretlify/cryptly/pkg/model"
	"github.com/secretlify/cryptly/pkg/syncengine"
	"github.com/secretlify/cryptly/server/stores"
)

type stubGithubProvider struct {
	repoKey string
}

func (p *stubGithubProvider) Type() model.IntegrationType {
	return model.IntegrationTypeGithubActions
}

func (p *stubGithubProvider) Create(_ context.Context, projectID model.ProjectID, repositoryID int64) (model.Integration, error) {
	return model.Integration{
		ID:                    model.IntegrationID(model.NewID()),
		Type:                  model.IntegrationTypeGithubActions,
		ProjectID:             projectID,
		RepositoryID:          repositoryID,
		RepositoryOwner:       "acme",
		RepositoryName:        fmt.Sprintf("repo-%d", repositoryID),
		InstallationID:        7,
		RepositoryPublicKey:   p.repoKey,
		RepositoryPublicKeyID: "kid-1",
	}, nil
}

type stubSyncProvider struct {
	mu      sync.Mutex
	key     githubapp.RepositoryPublicKey
	pushed  map[string]string
	failing map[string]bool
}

func (p *stubSyncProvider) GetRepositoryPublicKey(context.Context, int64, string, string) (githubapp.RepositoryPublicKey, error) {
	return p.key, nil
}

func (p *stubSyncProvider) PutSecret(_ context.Context, _ int64, _, _, name, encryptedValue, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[name] {
		return fmt.Errorf("upstream unavailable")
	}
	if p.pushed == nil {
		p.pushed = make(map[string]string)
	}
	p.pushed[name] = encryptedValue
	return nil
}

type serviceFixture struct {
	svc        *Service
	provider   *stubSyncProvider
	repoKeys   crypto.Keypair
	ownerKeys  crypto.Keypair
	projectKey *[crypto.KeySize]byte
	project    model.Project
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{}
	require.NoError(t, f.repoKeys.Generate())
	require.NoError(t, f.ownerKeys.Generate())
	projectKey, err := crypto.GenerateSecretsKey()
	require.NoError(t, err)
	f.projectKey = projectKey

	f.provider = &stubSyncProvider{
		key: githubapp.RepositoryPublicKey{KeyID: "kid-1", Key: f.repoKeys.PublicString()},
	}
	f.svc = NewService(Config{
		Projects:     stores.NewInMemoryProjectStore(),
		Users:        stores.NewInMemoryUserStore(),
		Versions:     stores.NewInMemoryVersionStore(),
		Integrations: stores.NewInMemoryIntegrationStore(),
		Registry:     integration.NewRegistry(&stubGithubProvider{repoKey: f.repoKeys.PublicString()}),
		Provider:     f.provider,
	})

	ctx := context.Background()
	require.NoError(t, f.svc.RegisterUser(ctx, model.User{
		ID: "owner", Username: "owner", PublicKey: f.ownerKeys.PublicString(),
	}))
	wrapped, err := crypto.Seal(projectKey[:], f.ownerKeys.PublicString())
	require.NoError(t, err)
	f.project, err = f.svc.CreateProject(ctx, "owner", wrapped)
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) keySource() syncengine.KeySource {
	return func(context.Context, model.ProjectID) (*[crypto.KeySize]byte, error) {
		cp := *f.projectKey
		return &cp, nil
	}
}

func TestRegisterUser_RejectsMalformedPublicKey(t *testing.T) {
	f := setupService(t)
	err := f.svc.RegisterUser(context.Background(), model.User{ID: "bad", PublicKey: "not-a-key"})
	assert.ErrorIs(t, err, crypto.ErrInvalidKeyMaterial)
}

func TestCreateProject_RejectsMalformedWrappedKey(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("not base64", func(t *testing.T) {
		_, err := f.svc.CreateProject(ctx, "owner", "sealed")
		assert.ErrorIs(t, err, crypto.ErrInvalidKeyMaterial)
	})

	t.Run("bare public key instead of a sealed box", func(t *testing.T) {
		_, err := f.svc.CreateProject(ctx, "owner", f.ownerKeys.PublicString())
		assert.ErrorIs(t, err, crypto.ErrInvalidKeyMaterial)
	})
}

func TestCreateIntegration(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("unknown type fails with a typed error", func(t *testing.T) {
		_, err := f.svc.CreateIntegration(ctx, CreateIntegrationRequest{
			Type: "unknown", ProjectID: f.project.ID, RepositoryID: 42,
		})
		assert.ErrorIs(t, err, integration.ErrUnsupportedIntegrationType)
	})

	t.Run("links and persists", func(t *testing.T) {
		rec, err := f.svc.CreateIntegration(ctx, CreateIntegrationRequest{
			Type: model.IntegrationTypeGithubActions, ProjectID: f.project.ID, RepositoryID: 42,
		})
		require.NoError(t, err)
		assert.Equal(t, f.project.ID, rec.ProjectID)

		linked, err := f.svc.FindIntegrationsByProject(ctx, f.project.ID)
		require.NoError(t, err)
		assert.Len(t, linked, 1)
	})

	t.Run("a repository cannot serve two projects", func(t *testing.T) {
		wrapped, err := crypto.Seal(f.projectKey[:], f.ownerKeys.PublicString())
		require.NoError(t, err)
		other, err := f.svc.CreateProject(ctx, "owner", wrapped)
		require.NoError(t, err)
		_, err = f.svc.CreateIntegration(ctx, CreateIntegrationRequest{
			Type: model.IntegrationTypeGithubActions, ProjectID: other.ID, RepositoryID: 42,
		})
		assert.ErrorIs(t, err, stores.ErrRepositoryLinked)
	})
}

func TestUpdateMembership(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	var aliceKeys crypto.Keypair
	require.NoError(t, aliceKeys.Generate())
	require.NoError(t, f.svc.RegisterUser(ctx, model.User{
		ID: "alice", Username: "alice", PublicKey: aliceKeys.PublicString(),
	}))

	t.Run("only the owner may change membership", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "alice", f.keySource(), []model.UserID{"alice"}, nil)
		assert.ErrorIs(t, err, ErrNotProjectOwner)
	})

	t.Run("added member receives a wrapped key that opens to the project key", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "owner", f.keySource(), []model.UserID{"alice"}, nil)
		require.NoError(t, err)

		got, err := f.svc.GetProject(ctx, f.project.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RoleMember, got.Members["alice"])
		assert.True(t, keydist.Converged(&got))

		opened, err := crypto.Open(got.EncryptedKeyVersions["alice"], &aliceKeys)
		require.NoError(t, err)
		assert.Equal(t, f.projectKey[:], opened)
	})

	t.Run("re-adding the owner keeps the owner role", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "owner", f.keySource(), []model.UserID{"owner"}, nil)
		require.NoError(t, err)

		got, err := f.svc.GetProject(ctx, f.project.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RoleOwner, got.Members["owner"])
		ownerID, ok := got.Owner()
		assert.True(t, ok)
		assert.Equal(t, model.UserID("owner"), ownerID)
	})

	t.Run("unknown member leaves the project untouched", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "owner", f.keySource(), []model.UserID{"ghost"}, nil)
		assert.ErrorIs(t, err, keydist.ErrMissingPublicKey)

		got, err := f.svc.GetProject(ctx, f.project.ID)
		require.NoError(t, err)
		_, ok := got.Members["ghost"]
		assert.False(t, ok)
	})

	t.Run("the owner cannot be removed", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "owner", f.keySource(), nil, []model.UserID{"owner"})
		assert.ErrorIs(t, err, ErrOwnerImmutable)
	})

	t.Run("removal drops the wrapped key entry", func(t *testing.T) {
		err := f.svc.UpdateMembership(ctx, f.project.ID, "owner", f.keySource(), nil, []model.UserID{"alice"})
		require.NoError(t, err)
		got, err := f.svc.GetProject(ctx, f.project.ID)
		require.NoError(t, err)
		_, ok := got.EncryptedKeyVersions["alice"]
		assert.False(t, ok)
	})
}

func TestAppendVersion(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	blob, err := crypto.EncryptSecrets(f.projectKey, map[string]string{"API_KEY": "v1"})
	require.NoError(t, err)

	t.Run("non-members cannot author", func(t *testing.T) {
		_, err := f.svc.AppendVersion(ctx, f.project.ID, "stranger", blob)
		assert.ErrorIs(t, err, ErrNotProjectMember)
	})

	t.Run("authoring waits for key convergence", func(t *testing.T) {
		store := f.svc.projects
		require.NoError(t, store.UpdateProject(ctx, f.project.ID, func(p model.Project) (model.Project, error) {
			p.Members["pending"] = model.RoleMember
			return p, nil
		}))
		_, err := f.svc.AppendVersion(ctx, f.project.ID, "owner", blob)
		assert.ErrorIs(t, err, ErrKeysNotConverged)
		require.NoError(t, store.UpdateProject(ctx, f.project.ID, func(p model.Project) (model.Project, error) {
			delete(p.Members, "pending")
			return p, nil
		}))
	})

	t.Run("members author and history reads newest first", func(t *testing.T) {
		id1, err := f.svc.AppendVersion(ctx, f.project.ID, "owner", blob)
		require.NoError(t, err)
		id2, err := f.svc.AppendVersion(ctx, f.project.ID, "", blob)
		require.NoError(t, err)

		page, _, err := f.svc.ListVersions(ctx, f.project.ID, 10, "")
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, id2, page[0].ID)
		assert.Equal(t, id1, page[1].ID)
	})
}

func TestUpsertSecrets_EndToEnd(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("no linked integration", func(t *testing.T) {
		_, err := f.svc.UpsertSecrets(ctx, f.project.ID, f.keySource())
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	})

	_, err := f.svc.CreateIntegration(ctx, CreateIntegrationRequest{
		Type: model.IntegrationTypeGithubActions, ProjectID: f.project.ID, RepositoryID: 42,
	})
	require.NoError(t, err)

	blob, err := crypto.EncryptSecrets(f.projectKey, map[string]string{"A": "1", "B": "2", "C": "3"})
	require.NoError(t, err)
	_, err = f.svc.AppendVersion(ctx, f.project.ID, "owner", blob)
	require.NoError(t, err)

	t.Run("partial failure is isolated per secret", func(t *testing.T) {
		f.provider.failing = map[string]bool{"B": true}
		result, err := f.svc.UpsertSecrets(ctx, f.project.ID, f.keySource())
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, result.FailedSecrets)

		plain, err := crypto.Open(f.provider.pushed["A"], &f.repoKeys)
		require.NoError(t, err)
		assert.Equal(t, "1", string(plain))
	})
}

func TestDeleteProject_Cascades(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntegration(ctx, CreateIntegrationRequest{
		Type: model.IntegrationTypeGithubActions, ProjectID: f.project.ID, RepositoryID: 42,
	})
	require.NoError(t, err)
	blob, err := crypto.EncryptSecrets(f.projectKey, map[string]string{"A": "1"})
	require.NoError(t, err)
	_, err = f.svc.AppendVersion(ctx, f.project.ID, "owner", blob)
	require.NoError(t, err)

	t.Run("only the owner may delete", func(t *testing.T) {
		err := f.svc.DeleteProject(ctx, f.project.ID, "stranger")
		assert.ErrorIs(t, err, ErrNotProjectOwner)
	})

	require.NoError(t, f.svc.DeleteProject(ctx, f.project.ID, "owner"))
	_, err = f.svc.GetProject(ctx, f.project.ID)
	assert.ErrorIs(t, err, stores.ErrProjectNotFound)
	linked, err := f.svc.FindIntegrationsByProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, linked)
}
