// Package keydist maintains the per-member wrapped copies of a project's
// symmetric secret-encryption key. The unwrapped project key only ever
// exists as a function-scoped value; members unwrap their own copy
// client-side with their private key.
package keydist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/model"
)

// ErrMissingPublicKey is returned when a member being added has no public
// key on file. The caller must register one before retrying.
var ErrMissingPublicKey = errors.New("no public key on file for member")

// PublicKeyDirectory resolves a member's registered sealed-box public key.
type PublicKeyDirectory interface {
	GetPublicKey(ctx context.Context, id model.UserID) (string, error)
}

// Distributor wraps and unwraps project key copies for project members.
type Distributor struct {
	directory PublicKeyDirectory
	logger    *slog.Logger
}

func NewDistributor(directory PublicKeyDirectory, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{directory: directory, logger: logger}
}

// WrapForMember seals the project key to a member's public key. The sealed
// blob is safe to persist; the project key itself never is.
func (d *Distributor) WrapForMember(projectKey []byte, memberPublicKey string) (string, error) {
	return crypto.Seal(projectKey, memberPublicKey)
}

// OnMembershipChange brings a project's wrapped key entries in line with a
// membership transition: each added member gets a fresh sealed copy of the
// project key, each removed member loses theirs. The project is mutated in
// place; the caller persists it.
//
// Fails with ErrMissingPublicKey if any added member has no resolvable
// public key. In that case the project is left untouched.
func (d *Distributor) OnMembershipChange(ctx context.Context, project *model.Project, projectKey []byte, added, removed []model.UserID) error {
	wrapped := make(map[model.UserID]string, len(added))
	for _, id := range added {
		publicKey, err := d.directory.GetPublicKey(ctx, id)
		if err != nil || publicKey == "" {
			return fmt.Errorf("member %s: %w", id, ErrMissingPublicKey)
		}
		blob, err := d.WrapForMember(projectKey, publicKey)
		if err != nil {
			return fmt.Errorf("wrapping key for member %s: %w", id, err)
		}
		wrapped[id] = blob
	}

	if project.EncryptedKeyVersions == nil {
		project.EncryptedKeyVersions = make(map[model.UserID]string, len(wrapped))
	}
	for id, blob := range wrapped {
		project.EncryptedKeyVersions[id] = blob
		d.logger.Debug("wrapped project key for member", "project", project.ID, "member", id)
	}
	for _, id := range removed {
		delete(project.EncryptedKeyVersions, id)
		d.logger.Debug("removed wrapped project key", "project", project.ID, "member", id)
	}
	return nil
}

// Converged reports whether every current member has a wrapped key entry.
// Membership transitions may briefly violate this; it must hold again
// before the next secrets version is authored.
func Converged(project *model.Project) bool {
	for id := range project.Members {
		if _, ok := project.EncryptedKeyVersions[id]; !ok {
			return false
		}
	}
	return true
}
