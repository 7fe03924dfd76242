// Package githubapp is the GitHub-backed external provider client. All
// remote operations run against per-installation credentials: the app
// exchanges its private key for installation-scoped access, so a revoked
// installation immediately loses access without further platform action.
package githubapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ghinstallation "github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/secretlify/cryptly/pkg/model"
)

// ErrProviderAuth is returned when the provider rejects the installation
// credential. Surfaced to the caller, never retried automatically.
var ErrProviderAuth = errors.New("provider rejected installation credentials")

const (
	requestTimeout = 30 * time.Second
	reposPerPage   = 100
	// Installation tokens are provider-controlled and short; assume the
	// documented one-hour window when the response omits an expiry.
	tokenLifetime = time.Hour

	defaultRequestsPerSecond = 5
	defaultBurst             = 10
)

// Config holds the app credentials used to mint installation clients.
type Config struct {
	AppID      int64
	PrivateKey []byte // PEM-encoded app private key
	// EnterpriseURL points at a GitHub Enterprise instance when set.
	EnterpriseURL string
	Logger        *slog.Logger
	// Outbound rate limit; zero values pick conservative defaults.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the GitHub API on behalf of app installations.
type Client struct {
	logger  *slog.Logger
	limiter *rate.Limiter

	mu             sync.Mutex
	installClients map[int64]*github.Client

	// Injectable for tests; default to ghinstallation-backed constructors.
	installationFactory func(installationID int64) (*github.Client, error)
	appsFactory         func() (*github.Client, error)
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = defaultBurst
	}
	c := &Client{
		logger:         cfg.Logger,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		installClients: make(map[int64]*github.Client),
	}
	c.installationFactory = func(installationID int64) (*github.Client, error) {
		return newInstallationClient(cfg.AppID, installationID, cfg.PrivateKey, cfg.EnterpriseURL)
	}
	c.appsFactory = func() (*github.Client, error) {
		return newAppsClient(cfg.AppID, cfg.PrivateKey, cfg.EnterpriseURL)
	}
	return c, nil
}

// newInstallationClient creates a GitHub client authenticated as an app
// installation. privateKey is the PEM-encoded content of the app's key.
func newInstallationClient(appID, installationID int64, privateKey []byte, enterpriseURL string) (*github.Client, error) {
	tr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: tr, Timeout: requestTimeout}
	if enterpriseURL != "" {
		return github.NewEnterpriseClient(enterpriseURL, enterpriseURL, httpClient)
	}
	return github.NewClient(httpClient), nil
}

// newAppsClient authenticates as the app itself (JWT), for operations that
// are not installation-scoped: token issuance, installation discovery.
func newAppsClient(appID int64, privateKey []byte, enterpriseURL string) (*github.Client, error) {
	tr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: tr, Timeout: requestTimeout}
	if enterpriseURL != "" {
		return github.NewEnterpriseClient(enterpriseURL, enterpriseURL, httpClient)
	}
	return github.NewClient(httpClient), nil
}

// NewTokenClient creates a GitHub client from a user OAuth token. Used for
// calls made on behalf of a platform user rather than an installation.
func NewTokenClient(ctx context.Context, token string, enterpriseURL string) (*github.Client, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = requestTimeout
	if enterpriseURL != "" {
		return github.NewEnterpriseClient(enterpriseURL, enterpriseURL, httpClient)
	}
	return github.NewClient(httpClient), nil
}

func (c *Client) installationClient(installationID int64) (*github.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.installClients[installationID]; ok {
		return client, nil
	}
	client, err := c.installationFactory(installationID)
	if err != nil {
		return nil, err
	}
	c.installClients[installationID] = client
	return client, nil
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// asProviderError maps a GitHub API error, folding credential rejections
// into ErrProviderAuth.
func asProviderError(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", ErrProviderAuth, err)
		}
	}
	return err
}

// ListAccessibleRepositories enumerates every repository the installation
// can reach. Pagination is handled here; callers never see raw pages.
func (c *Client) ListAccessibleRepositories(ctx context.Context, installationID int64) ([]model.Repository, error) {
	client, err := c.installationClient(installationID)
	if err != nil {
		return nil, err
	}
	var repos []model.Repository
	opts := &github.ListOptions{PerPage: reposPerPage}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, asProviderError(err)
		}
		for _, r := range page.Repositories {
			repos = append(repos, model.Repository{
				ID:       r.GetID(),
				Name:     r.GetName(),
				Owner:    r.GetOwner().GetLogin(),
				FullName: r.GetFullName(),
				URL:      r.GetHTMLURL(),
				Private:  r.GetPrivate(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	c.logger.Debug("listed installation repositories", "installation", installationID, "count", len(repos))
	return repos, nil
}

// GetRepository resolves a single repository by its provider id.
func (c *Client) GetRepository(ctx context.Context, installationID, repositoryID int64) (model.Repository, error) {
	client, err := c.installationClient(installationID)
	if err != nil {
		return model.Repository{}, err
	}
	if err := c.wait(ctx); err != nil {
		return model.Repository{}, err
	}
	r, _, err := client.Repositories.GetByID(ctx, repositoryID)
	if err != nil {
		return model.Repository{}, asProviderError(err)
	}
	return model.Repository{
		ID:       r.GetID(),
		Name:     r.GetName(),
		Owner:    r.GetOwner().GetLogin(),
		FullName: r.GetFullName(),
		URL:      r.GetHTMLURL(),
		Private:  r.GetPrivate(),
	}, nil
}

// RepositoryPublicKey is the asymmetric encryption target for a
// repository's secrets.
type RepositoryPublicKey struct {
	KeyID string
	Key   string
}

// GetRepositoryPublicKey fetches the repository's current secrets public
// key. Callers cache it and refresh on a key-id mismatch.
func (c *Client) GetRepositoryPublicKey(ctx context.Context, installationID int64, owner, repo string) (RepositoryPublicKey, error) {
	client, err := c.installationClient(installationID)
	if err != nil {
		return RepositoryPublicKey{}, err
	}
	if err := c.wait(ctx); err != nil {
		return RepositoryPublicKey{}, err
	}
	key, _, err := client.Actions.GetRepoPublicKey(ctx, owner, repo)
	if err != nil {
		return RepositoryPublicKey{}, asProviderError(err)
	}
	return RepositoryPublicKey{KeyID: key.GetKeyID(), Key: key.GetKey()}, nil
}

// IssueAccessToken exchanges the installation credential for a short-lived
// access token. Tokens are never cached; every sync run requests a fresh
// one because expiry is provider-controlled.
func (c *Client) IssueAccessToken(ctx context.Context, installationID int64) (model.AccessToken, error) {
	client, err := c.appsFactory()
	if err != nil {
		return model.AccessToken{}, err
	}
	if err := c.wait(ctx); err != nil {
		return model.AccessToken{}, err
	}
	token, _, err := client.Apps.CreateInstallationToken(ctx, installationID, &github.InstallationTokenOptions{})
	if err != nil {
		return model.AccessToken{}, asProviderError(err)
	}
	expiresAt := token.GetExpiresAt().Time
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(tokenLifetime)
	}
	return model.AccessToken{Token: token.GetToken(), ExpiresAt: expiresAt.UTC()}, nil
}

// FindOrganizationInstallation resolves the app installation id for an
// organization.
func (c *Client) FindOrganizationInstallation(ctx context.Context, org string) (int64, error) {
	client, err := c.appsFactory()
	if err != nil {
		return 0, err
	}
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	installation, _, err := client.Apps.FindOrganizationInstallation(ctx, org)
	if err != nil {
		return 0, asProviderError(err)
	}
	return installation.GetID(), nil
}

// PutSecret upserts one encrypted secret on the repository. encryptedValue
// must already be sealed to the repository public key identified by keyID.
func (c *Client) PutSecret(ctx context.Context, installationID int64, owner, repo, name, encryptedValue, keyID string) error {
	client, err := c.installationClient(installationID)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	secret := &github.EncryptedSecret{
		Name:           name,
		KeyID:          keyID,
		EncryptedValue: encryptedValue,
	}
	if _, err := client.Actions.CreateOrUpdateRepoSecret(ctx, owner, repo, secret); err != nil {
		return asProviderError(err)
	}
	return nil
}
