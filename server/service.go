// Package server exposes the platform-facing contract over the stores:
// project and membership management, version authoring, integration
// linking and secret sync. Transport layers call into Service; it holds
// no HTTP concerns of its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/integration"
	"github.com/secretlify/cryptly/pkg/keydist"
	"github.com/secretlify/cryptly/pkg/model"
	"github.com/secretlify/cryptly/pkg/syncengine"
	"github.com/secretlify/cryptly/server/stores"
)

var (
	ErrNotProjectOwner  = errors.New("caller is not the project owner")
	ErrNotProjectMember = errors.New("caller is not a project member")
	// ErrKeysNotConverged is returned when a version is authored while a
	// member still lacks a wrapped key copy.
	ErrKeysNotConverged = errors.New("wrapped key entries have not converged with membership")
	ErrOwnerImmutable   = errors.New("the project owner cannot be removed")
)

// ProjectRoleFunc decides whether a user holds a role on a project.
// Injectable so tests and alternative authorization schemes can replace
// the membership-map default.
type ProjectRoleFunc func(project model.Project, user model.UserID, role model.Role) bool

func defaultProjectRole(project model.Project, user model.UserID, role model.Role) bool {
	return project.Members[user] == role
}

type Config struct {
	Projects     stores.ProjectStore
	Users        stores.UserStore
	Versions     stores.VersionStore
	Integrations stores.IntegrationStore
	Registry     *integration.Registry
	Provider     syncengine.ProviderClient
	Logger       *slog.Logger
	// HasRole defaults to a membership-map lookup.
	HasRole       ProjectRoleFunc
	EngineOptions []syncengine.Option
}

type Service struct {
	projects     stores.ProjectStore
	users        stores.UserStore
	versions     stores.VersionStore
	integrations stores.IntegrationStore
	registry     *integration.Registry
	engine       *syncengine.Engine
	distributor  *keydist.Distributor
	hasRole      ProjectRoleFunc
	logger       *slog.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HasRole == nil {
		cfg.HasRole = defaultProjectRole
	}
	engineOpts := append([]syncengine.Option{syncengine.WithLogger(cfg.Logger)}, cfg.EngineOptions...)
	return &Service{
		projects:     cfg.Projects,
		users:        cfg.Users,
		versions:     cfg.Versions,
		integrations: cfg.Integrations,
		registry:     cfg.Registry,
		engine: syncengine.New(cfg.Integrations,
			versionSource{cfg.Versions}, cfg.Provider, engineOpts...),
		distributor: keydist.NewDistributor(publicKeyDirectory{cfg.Users}, cfg.Logger),
		hasRole:     cfg.HasRole,
		logger:      cfg.Logger,
	}
}

// versionSource adapts the version store to the engine's contract,
// translating the store's not-found sentinel.
type versionSource struct {
	store stores.VersionStore
}

func (s versionSource) LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error) {
	v, err := s.store.LatestVersion(ctx, projectID)
	if errors.Is(err, stores.ErrVersionNotFound) {
		return model.SecretsVersion{}, syncengine.ErrNoVersions
	}
	return v, err
}

// publicKeyDirectory resolves member public keys from the user store.
type publicKeyDirectory struct {
	store stores.UserStore
}

func (d publicKeyDirectory) GetPublicKey(ctx context.Context, id model.UserID) (string, error) {
	user, err := d.store.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

// RegisterUser adds a platform account with its sealed-box public key.
func (s *Service) RegisterUser(ctx context.Context, user model.User) error {
	if _, err := crypto.ParseKey(user.PublicKey); err != nil {
		return fmt.Errorf("public key for %s: %w", user.ID, err)
	}
	return s.users.CreateUser(ctx, user)
}

func (s *Service) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	return s.users.GetUser(ctx, id)
}

// CreateProject registers a project owned by ownerID. wrappedOwnerKey is
// the owner's sealed copy of the project key; the unwrapped key never
// reaches the platform, so the caller wraps before calling.
func (s *Service) CreateProject(ctx context.Context, ownerID model.UserID, wrappedOwnerKey string) (model.Project, error) {
	if _, err := s.users.GetUser(ctx, ownerID); err != nil {
		return model.Project{}, fmt.Errorf("resolving owner: %w", err)
	}
	if err := crypto.ValidateWrappedKey(wrappedOwnerKey); err != nil {
		return model.Project{}, fmt.Errorf("wrapped owner key: %w", err)
	}
	now := time.Now().UTC()
	project := model.Project{
		ID:                   model.ProjectID(model.NewID()),
		Members:              map[model.UserID]model.Role{ownerID: model.RoleOwner},
		EncryptedKeyVersions: map[model.UserID]string{ownerID: wrappedOwnerKey},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return model.Project{}, err
	}
	s.logger.Info("project created", "project", project.ID, "owner", ownerID)
	return project, nil
}

func (s *Service) GetProject(ctx context.Context, id model.ProjectID) (model.Project, error) {
	return s.projects.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]model.Project, error) {
	return s.projects.ListProjects(ctx)
}

// UpdateMembership adds and removes members on a project, keeping the
// wrapped key entries in line with the transition. Owner-only. The key
// from keySource exists only for the duration of the call.
func (s *Service) UpdateMembership(ctx context.Context, projectID model.ProjectID, actor model.UserID, keySource syncengine.KeySource, added, removed []model.UserID) error {
	current, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !s.hasRole(current, actor, model.RoleOwner) {
		return ErrNotProjectOwner
	}
	for _, id := range removed {
		if current.Members[id] == model.RoleOwner {
			return ErrOwnerImmutable
		}
	}

	key, err := keySource(ctx, projectID)
	if err != nil {
		return err
	}
	defer crypto.ZeroKey(key)

	err = s.projects.UpdateProject(ctx, projectID, func(p model.Project) (model.Project, error) {
		if err := s.distributor.OnMembershipChange(ctx, &p, key[:], added, removed); err != nil {
			return model.Project{}, err
		}
		for _, id := range added {
			// Existing members keep their role; re-adding the owner must
			// not demote the project's only owner.
			if _, exists := p.Members[id]; !exists {
				p.Members[id] = model.RoleMember
			}
		}
		for _, id := range removed {
			delete(p.Members, id)
		}
		p.UpdatedAt = time.Now().UTC()
		return p, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("membership updated", "project", projectID, "added", len(added), "removed", len(removed))
	return nil
}

// AppendVersion records a new encrypted secrets version. The author must
// be a member; an empty author is kept as-is for unattributable writes.
// Authoring is refused until every member holds a wrapped key copy.
func (s *Service) AppendVersion(ctx context.Context, projectID model.ProjectID, authorID model.UserID, encryptedSecrets string) (model.VersionID, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if authorID != "" {
		if _, ok := project.Members[authorID]; !ok {
			return "", ErrNotProjectMember
		}
	}
	if !keydist.Converged(&project) {
		return "", ErrKeysNotConverged
	}
	return s.versions.AppendVersion(ctx, projectID, authorID, encryptedSecrets)
}

// ListVersions pages through a project's version history, newest first.
func (s *Service) ListVersions(ctx context.Context, projectID model.ProjectID, limit int, cursor string) ([]model.SecretsVersion, string, error) {
	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return nil, "", err
	}
	return s.versions.ListVersions(ctx, projectID, limit, cursor)
}

type CreateIntegrationRequest struct {
	Type         model.IntegrationType
	ProjectID    model.ProjectID
	RepositoryID int64
}

// CreateIntegration links a project to an external repository through the
// provider registered for the requested type.
func (s *Service) CreateIntegration(ctx context.Context, req CreateIntegrationRequest) (model.Integration, error) {
	if _, err := s.projects.GetProject(ctx, req.ProjectID); err != nil {
		return model.Integration{}, err
	}
	rec, err := s.registry.CreateIntegration(ctx, req.Type, req.ProjectID, req.RepositoryID)
	if err != nil {
		return model.Integration{}, err
	}
	if err := s.integrations.CreateIntegration(ctx, rec); err != nil {
		return model.Integration{}, err
	}
	s.logger.Info("integration created",
		"project", req.ProjectID, "type", req.Type, "repository", rec.RepositoryOwner+"/"+rec.RepositoryName)
	return rec, nil
}

func (s *Service) FindIntegrationsByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error) {
	return s.integrations.FindByProject(ctx, projectID)
}

// UpsertSecrets pushes the project's current secrets to every linked
// repository and reports per-secret failures.
func (s *Service) UpsertSecrets(ctx context.Context, projectID model.ProjectID, keySource syncengine.KeySource) (syncengine.Result, error) {
	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return syncengine.Result{}, err
	}
	return s.engine.UpsertSecrets(ctx, projectID, keySource)
}

// DeleteProject removes a project together with its version history and
// integrations. Owner-only.
func (s *Service) DeleteProject(ctx context.Context, projectID model.ProjectID, actor model.UserID) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !s.hasRole(project, actor, model.RoleOwner) {
		return ErrNotProjectOwner
	}
	if err := s.integrations.DeleteProjectIntegrations(ctx, projectID); err != nil {
		return err
	}
	if err := s.versions.DeleteProjectVersions(ctx, projectID); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("project deleted", "project", projectID)
	return nil
}
