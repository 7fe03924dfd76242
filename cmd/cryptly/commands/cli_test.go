package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/secretlify/cryptly"
	"github.com/secretlify/cryptly/pkg/integration"
	"github.com/secretlify/cryptly/pkg/keydist"
	"github.com/secretlify/cryptly/pkg/model"
	"github.com/secretlify/cryptly/pkg/oskeyring"
	"github.com/secretlify/cryptly/server"
	"github.com/secretlify/cryptly/server/stores"
)

func newTestCtx(t *testing.T) *cliCtx {
	t.Helper()
	// Pinboard writes under the home directory.
	t.Setenv("HOME", t.TempDir())
	svc := server.NewService(server.Config{
		Projects:     stores.NewInMemoryProjectStore(),
		Users:        stores.NewInMemoryUserStore(),
		Versions:     stores.NewInMemoryVersionStore(),
		Integrations: stores.NewInMemoryIntegrationStore(),
		Registry:     integration.NewRegistry(),
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	return &cliCtx{
		Context: context.Background(),
		Service: svc,
		Keyring: oskeyring.NewMemory(),
		Logger:  slog.Default(),
	}
}

func TestKeygenSavesToKeyring(t *testing.T) {
	ctx := newTestCtx(t)

	cmd := &KeygenCmd{Save: true, Account: "owner"}
	assert.NoError(t, cmd.Run(ctx))

	priv, err := ctx.Keyring.Get("owner")
	assert.NoError(t, err)
	assert.NotEqual(t, "", priv)
}

func TestKeygenSaveRequiresAccount(t *testing.T) {
	ctx := newTestCtx(t)
	cmd := &KeygenCmd{Save: true}
	assert.Error(t, cmd.Run(ctx))
}

func TestProjectLifecycle(t *testing.T) {
	ctx := newTestCtx(t)

	ownerPub, ownerPriv, err := cryptly.GenerateKeypair()
	assert.NoError(t, err)
	assert.NoError(t, ctx.Keyring.Set("owner", ownerPriv))
	alicePub, _, err := cryptly.GenerateKeypair()
	assert.NoError(t, err)

	register := &RegisterUserCmd{ID: "owner", PublicKey: ownerPub}
	assert.NoError(t, register.Run(ctx))
	register = &RegisterUserCmd{ID: "alice", PublicKey: alicePub}
	assert.NoError(t, register.Run(ctx))

	create := &CreateProjectCmd{Owner: "owner"}
	assert.NoError(t, create.Run(ctx))

	all, err := ctx.Service.ListProjects(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(all))
	projectID := string(all[0].ID)

	add := &MemberAddCmd{Project: projectID, Member: "alice", As: "owner"}
	assert.NoError(t, add.Run(ctx))

	got, err := ctx.Service.GetProject(ctx, all[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, model.RoleMember, got.Members["alice"])
	assert.True(t, keydist.Converged(&got))

	// Author a version from a dotenv file.
	envFile := filepath.Join(t.TempDir(), "secrets.env")
	assert.NoError(t, os.WriteFile(envFile, []byte("API_KEY=hunter2\n"), 0o600))
	author := &AuthorVersionCmd{Project: projectID, EnvFile: envFile, As: "owner"}
	assert.NoError(t, author.Run(ctx))

	list := &ListVersionsCmd{Project: projectID, Limit: 10}
	assert.NoError(t, list.Run(ctx))

	remove := &MemberRemoveCmd{Project: projectID, Member: "alice", As: "owner"}
	assert.NoError(t, remove.Run(ctx))
}
