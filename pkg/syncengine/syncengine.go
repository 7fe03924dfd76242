// Package syncengine pushes a project's current secrets to its linked
// external repositories. Pushes fan out concurrently and failures are
// partitioned per secret name, never aborting the batch.
package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/githubapp"
	"github.com/secretlify/cryptly/pkg/integration"
	"github.com/secretlify/cryptly/pkg/model"
)

const (
	defaultConcurrency = 5
	defaultPushTimeout = 30 * time.Second
)

// IntegrationSource yields the integrations linked to a project and lets
// the engine persist refreshed repository key material.
type IntegrationSource interface {
	FindByProject(ctx context.Context, projectID model.ProjectID) ([]model.Integration, error)
	UpdateIntegration(ctx context.Context, id model.IntegrationID, updateFn func(model.Integration) (model.Integration, error)) error
}

// VersionSource yields the newest secrets version of a project.
type VersionSource interface {
	LatestVersion(ctx context.Context, projectID model.ProjectID) (model.SecretsVersion, error)
}

// ProviderClient is the outbound surface the engine needs from the external
// provider. *githubapp.Client satisfies it.
type ProviderClient interface {
	GetRepositoryPublicKey(ctx context.Context, installationID int64, owner, repo string) (githubapp.RepositoryPublicKey, error)
	PutSecret(ctx context.Context, installationID int64, owner, repo, name, encryptedValue, keyID string) error
}

// KeySource yields the unwrapped project key for a single operation. The
// engine takes ownership of the returned key and zeroes it before
// returning, so callers must hand over a private copy.
type KeySource func(ctx context.Context, projectID model.ProjectID) (*[crypto.KeySize]byte, error)

// Result reports the outcome of one sync run. FailedSecrets holds the
// names whose push did not succeed, sorted; an empty slice means every
// secret is confirmed on the provider.
type Result struct {
	FailedSecrets []string
}

type Engine struct {
	integrations IntegrationSource
	versions     VersionSource
	provider     ProviderClient
	logger       *slog.Logger
	concurrency  int
	pushTimeout  time.Duration
}

// Option tweaks engine behavior.
type Option func(*Engine)

// WithConcurrency bounds the number of in-flight pushes.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithPushTimeout bounds each individual secret push. A push that exceeds
// it counts as failed.
func WithPushTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pushTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(integrations IntegrationSource, versions VersionSource, provider ProviderClient, opts ...Option) *Engine {
	e := &Engine{
		integrations: integrations,
		versions:     versions,
		provider:     provider,
		logger:       slog.Default(),
		concurrency:  defaultConcurrency,
		pushTimeout:  defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpsertSecrets decrypts the project's newest secrets version and pushes
// every entry to each linked repository. Each push is isolated: a failing
// secret never prevents the others from being attempted. Nothing is
// retried; the caller decides whether to re-invoke with the returned
// failure set.
func (e *Engine) UpsertSecrets(ctx context.Context, projectID model.ProjectID, keySource KeySource) (Result, error) {
	integrations, err := e.integrations.FindByProject(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if len(integrations) == 0 {
		return Result{}, integration.ErrIntegrationNotFound
	}

	key, err := keySource(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	defer crypto.ZeroKey(key)

	secrets, err := e.currentSecrets(ctx, projectID, key)
	if err != nil {
		return Result{}, err
	}
	if len(secrets) == 0 {
		return Result{FailedSecrets: []string{}}, nil
	}

	failed := make(map[string]struct{})
	for _, linked := range integrations {
		names, err := e.pushToRepository(ctx, linked, secrets)
		if err != nil {
			return Result{}, err
		}
		for _, name := range names {
			failed[name] = struct{}{}
		}
	}

	result := Result{FailedSecrets: make([]string, 0, len(failed))}
	for name := range failed {
		result.FailedSecrets = append(result.FailedSecrets, name)
	}
	sort.Strings(result.FailedSecrets)
	if len(result.FailedSecrets) > 0 {
		e.logger.Warn("sync finished with failures",
			"project", projectID, "failed", len(result.FailedSecrets), "total", len(secrets))
	}
	return result, nil
}

// currentSecrets opens the newest version blob. A project with no history
// yet has an empty secret set.
func (e *Engine) currentSecrets(ctx context.Context, projectID model.ProjectID, key *[crypto.KeySize]byte) (map[string]string, error) {
	version, err := e.versions.LatestVersion(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNoVersions) {
			return nil, nil
		}
		return nil, err
	}
	return crypto.DecryptSecrets(key, version.EncryptedSecrets)
}

// ErrNoVersions is the sentinel a VersionSource returns when a project has
// no secrets history yet. The engine treats it as an empty secret set.
var ErrNoVersions = errors.New("no secrets versions")

// pushToRepository seals every secret under the repository's public key
// and fans the uploads out. The returned slice holds the names that
// failed for this repository.
func (e *Engine) pushToRepository(ctx context.Context, linked model.Integration, secrets map[string]string) ([]string, error) {
	repoKey, err := e.repositoryKey(ctx, linked)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for name, value := range secrets {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(ctx, e.pushTimeout)
			defer cancel()
			if err := e.pushOne(pushCtx, linked, repoKey, name, value); err != nil {
				e.logger.Warn("secret push failed",
					"repository", linked.RepositoryOwner+"/"+linked.RepositoryName,
					"secret", name, "error", err)
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed, nil
}

func (e *Engine) pushOne(ctx context.Context, linked model.Integration, repoKey githubapp.RepositoryPublicKey, name, value string) error {
	sealed, err := crypto.Seal([]byte(value), repoKey.Key)
	if err != nil {
		return err
	}
	return e.provider.PutSecret(ctx, linked.InstallationID,
		linked.RepositoryOwner, linked.RepositoryName, name, sealed, repoKey.KeyID)
}

// repositoryKey fetches the repository's current public key and refreshes
// the cached copy on the integration record when the provider rotated it.
func (e *Engine) repositoryKey(ctx context.Context, linked model.Integration) (githubapp.RepositoryPublicKey, error) {
	current, err := e.provider.GetRepositoryPublicKey(ctx, linked.InstallationID, linked.RepositoryOwner, linked.RepositoryName)
	if err != nil {
		return githubapp.RepositoryPublicKey{}, err
	}
	if current.KeyID != linked.RepositoryPublicKeyID {
		e.logger.Info("repository public key rotated",
			"repository", linked.RepositoryOwner+"/"+linked.RepositoryName,
			"old_key_id", linked.RepositoryPublicKeyID, "new_key_id", current.KeyID)
		err := e.integrations.UpdateIntegration(ctx, linked.ID, func(i model.Integration) (model.Integration, error) {
			i.RepositoryPublicKey = current.Key
			i.RepositoryPublicKeyID = current.KeyID
			return i, nil
		})
		if err != nil {
			return githubapp.RepositoryPublicKey{}, err
		}
	}
	return current, nil
}
