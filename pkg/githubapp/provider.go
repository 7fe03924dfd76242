package githubapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/secretlify/cryptly/pkg/model"
)

// Provider implements the integration provider capability for GitHub
// Actions. Create resolves the repository through the installation and
// snapshots its secrets public key into the integration record.
type Provider struct {
	client         *Client
	installationID int64
	logger         *slog.Logger
}

func NewProvider(client *Client, installationID int64, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, installationID: installationID, logger: logger}
}

// Client exposes the underlying API client for callers that also need
// the raw provider operations, like the sync engine.
func (p *Provider) Client() *Client {
	return p.client
}

func (p *Provider) Type() model.IntegrationType {
	return model.IntegrationTypeGithubActions
}

func (p *Provider) Create(ctx context.Context, projectID model.ProjectID, repositoryID int64) (model.Integration, error) {
	repo, err := p.client.GetRepository(ctx, p.installationID, repositoryID)
	if err != nil {
		return model.Integration{}, fmt.Errorf("resolving repository %d: %w", repositoryID, err)
	}
	publicKey, err := p.client.GetRepositoryPublicKey(ctx, p.installationID, repo.Owner, repo.Name)
	if err != nil {
		return model.Integration{}, fmt.Errorf("fetching public key for %s: %w", repo.FullName, err)
	}
	now := time.Now().UTC()
	rec := model.Integration{
		ID:                    model.IntegrationID(model.NewID()),
		Type:                  model.IntegrationTypeGithubActions,
		ProjectID:             projectID,
		RepositoryID:          repo.ID,
		RepositoryOwner:       repo.Owner,
		RepositoryName:        repo.Name,
		InstallationID:        p.installationID,
		RepositoryPublicKey:   publicKey.Key,
		RepositoryPublicKeyID: publicKey.KeyID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	p.logger.Info("linked repository", "project", projectID, "repo", repo.FullName)
	return rec, nil
}
