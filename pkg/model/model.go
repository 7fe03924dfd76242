// Package model holds the shared domain types for the cryptly core:
// projects with per-member wrapped keys, append-only secret versions,
// and external CI integrations.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewID mints an opaque random identifier. Cross-entity references use
// these strings; the storage engine's native id format never leaks into
// the contract.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

type ProjectID string

func (p ProjectID) String() string {
	return string(p)
}

type UserID string

func (u UserID) String() string {
	return string(u)
}

type VersionID string

func (v VersionID) String() string {
	return string(v)
}

type IntegrationID string

func (i IntegrationID) String() string {
	return string(i)
}

// Role of a project member. A project has exactly one owner at any time.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// User is a platform account with a registered sealed-box public key.
type User struct {
	ID        UserID `json:"id" datastore:"id"`
	Username  string `json:"username" datastore:"username"`
	PublicKey string `json:"public_key" datastore:"public_key,noindex"`
}

// Project maps each member to a role and to that member's own sealed copy
// of the project's symmetric secret-encryption key. The unwrapped key is
// never stored anywhere; members unwrap their copy client-side.
type Project struct {
	ID      ProjectID       `json:"id" datastore:"id"`
	Members map[UserID]Role `json:"members" datastore:"-"`
	// EncryptedKeyVersions holds one sealed key copy per member, keyed by
	// member id. Every key in Members must converge to an entry here before
	// the next secrets version is authored.
	EncryptedKeyVersions map[UserID]string `json:"encrypted_key_versions" datastore:"-"`
	CreatedAt            time.Time         `json:"created_at" datastore:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" datastore:"updated_at"`
}

// Owner returns the id of the project's single owner.
func (p Project) Owner() (UserID, bool) {
	for id, role := range p.Members {
		if role == RoleOwner {
			return id, true
		}
	}
	return "", false
}

// SecretsVersion is one append-only history entry of a project's encrypted
// secrets. Records are immutable once created; history reads are ordered by
// CreatedAt descending.
type SecretsVersion struct {
	ID        VersionID `json:"id" datastore:"id"`
	ProjectID ProjectID `json:"project_id" datastore:"project_id"`
	// AuthorID is empty when the authoring member could not be resolved.
	AuthorID         UserID    `json:"author_id,omitempty" datastore:"author_id"`
	EncryptedSecrets string    `json:"encrypted_secrets" datastore:"encrypted_secrets,noindex"`
	CreatedAt        time.Time `json:"created_at" datastore:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" datastore:"updated_at"`
}

// IntegrationType tags the concrete external provider of an integration.
type IntegrationType string

const (
	// IntegrationTypeGithubActions is the GitHub Actions secret store.
	IntegrationTypeGithubActions IntegrationType = "github_actions"
)

// Integration links a project to one external repository's secret store.
// A project may link several repositories; a repository belongs to at most
// one project.
type Integration struct {
	ID        IntegrationID   `json:"id" datastore:"id"`
	Type      IntegrationType `json:"type" datastore:"type"`
	ProjectID ProjectID       `json:"project_id" datastore:"project_id"`
	// Repository coordinates on the provider side. RepositoryID is unique
	// across all integrations.
	RepositoryID    int64  `json:"repository_id" datastore:"repository_id"`
	RepositoryOwner string `json:"repository_owner" datastore:"repository_owner"`
	RepositoryName  string `json:"repository_name" datastore:"repository_name"`
	InstallationID  int64  `json:"installation_id" datastore:"installation_id"`
	// Cached asymmetric key material for the repository, refreshed on demand
	// when the provider reports a key-id mismatch.
	RepositoryPublicKey   string    `json:"repository_public_key" datastore:"repository_public_key,noindex"`
	RepositoryPublicKeyID string    `json:"repository_public_key_id" datastore:"repository_public_key_id,noindex"`
	CreatedAt             time.Time `json:"created_at" datastore:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" datastore:"updated_at"`
}

// Repository is one external repository reachable through an installation.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
	Private  bool   `json:"private"`
}

// AccessToken is a short-lived installation-scoped credential. It is never
// persisted; every sync run requests a fresh one.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
