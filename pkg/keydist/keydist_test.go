package keydist

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/model"
)

type fakeDirectory map[model.UserID]string

func (d fakeDirectory) GetPublicKey(_ context.Context, id model.UserID) (string, error) {
	return d[id], nil
}

func TestOnMembershipChange(t *testing.T) {
	ctx := context.Background()

	var owner, alice crypto.Keypair
	assert.NoError(t, owner.Generate())
	assert.NoError(t, alice.Generate())

	projectKey, err := crypto.GenerateSecretsKey()
	assert.NoError(t, err)

	directory := fakeDirectory{
		"owner": owner.PublicString(),
		"alice": alice.PublicString(),
	}
	d := NewDistributor(directory, nil)

	project := &model.Project{
		ID:      "proj-1",
		Members: map[model.UserID]model.Role{"owner": model.RoleOwner},
	}
	assert.NoError(t, d.OnMembershipChange(ctx, project, projectKey[:], []model.UserID{"owner"}, nil))

	t.Run("added member gets a copy that opens to the same project key", func(t *testing.T) {
		project.Members["alice"] = model.RoleMember
		err := d.OnMembershipChange(ctx, project, projectKey[:], []model.UserID{"alice"}, nil)
		assert.NoError(t, err)
		assert.True(t, Converged(project))

		blob, ok := project.EncryptedKeyVersions["alice"]
		assert.True(t, ok)
		opened, err := crypto.Open(blob, &alice)
		assert.NoError(t, err)
		assert.Equal(t, projectKey[:], opened)

		ownerCopy, err := crypto.Open(project.EncryptedKeyVersions["owner"], &owner)
		assert.NoError(t, err)
		assert.Equal(t, opened, ownerCopy)
	})

	t.Run("removed member loses their entry", func(t *testing.T) {
		delete(project.Members, "alice")
		err := d.OnMembershipChange(ctx, project, projectKey[:], nil, []model.UserID{"alice"})
		assert.NoError(t, err)
		_, ok := project.EncryptedKeyVersions["alice"]
		assert.False(t, ok)
		assert.True(t, Converged(project))
	})

	t.Run("adding a member without a known public key fails", func(t *testing.T) {
		before := len(project.EncryptedKeyVersions)
		err := d.OnMembershipChange(ctx, project, projectKey[:], []model.UserID{"stranger"}, nil)
		assert.IsError(t, err, ErrMissingPublicKey)
		assert.Equal(t, before, len(project.EncryptedKeyVersions))
	})
}

func TestConverged(t *testing.T) {
	project := &model.Project{
		ID: "proj-1",
		Members: map[model.UserID]model.Role{
			"owner": model.RoleOwner,
			"bob":   model.RoleMember,
		},
		EncryptedKeyVersions: map[model.UserID]string{"owner": "sealed"},
	}
	assert.False(t, Converged(project))
	project.EncryptedKeyVersions["bob"] = "sealed"
	assert.True(t, Converged(project))
}
