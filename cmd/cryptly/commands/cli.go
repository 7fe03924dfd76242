package commands

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.etcd.io/bbolt"

	"cloud.google.com/go/datastore"

	"github.com/secretlify/cryptly"
	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/githubapp"
	"github.com/secretlify/cryptly/pkg/integration"
	"github.com/secretlify/cryptly/pkg/model"
	"github.com/secretlify/cryptly/pkg/oskeyring"
	"github.com/secretlify/cryptly/pkg/syncengine"
	"github.com/secretlify/cryptly/server"
	"github.com/secretlify/cryptly/server/stores"
)

type cliCtx struct {
	context.Context
	Service *server.Service
	Keyring oskeyring.Service
	Logger  *slog.Logger
}

type cli struct {
	Keygen      KeygenCmd      `cmd:"" help:"Generate a sealed-box keypair"`
	User        UserCmd        `cmd:"" help:"Manage platform accounts"`
	Project     ProjectCmd     `cmd:"" help:"Manage projects and membership"`
	Versions    VersionsCmd    `cmd:"" help:"Author and inspect secret versions"`
	Integration IntegrationCmd `cmd:"" help:"Link projects to external repositories"`
	Sync        SyncCmd        `cmd:"" help:"Push the current secrets to linked repositories"`
}

func Execute(version string) {
	_ = godotenv.Load()

	var cli cli
	ctx := kong.Parse(&cli,
		kong.UsageOnError(),
		kong.Name("cryptly"),
		kong.Description("cryptly distributes project secrets to members and CI providers"),
		kong.Vars{"version": version},
	)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc, cleanup, err := buildService(logger)
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}
	defer cleanup()

	err = ctx.Run(&cliCtx{
		Context: context.Background(),
		Service: svc,
		Keyring: oskeyring.NewOS(),
		Logger:  logger,
	})
	ctx.FatalIfErrorf(err)
}

// buildService wires stores, provider and registry from the environment.
// CRYPTLY_STORE selects the backend: memory (default), bolt or datastore.
func buildService(logger *slog.Logger) (*server.Service, func(), error) {
	cfg := server.Config{Logger: logger}
	cleanup := func() {}

	switch os.Getenv("CRYPTLY_STORE") {
	case "bolt":
		path := os.Getenv("CRYPTLY_BOLT_PATH")
		if path == "" {
			path = "cryptly.db"
		}
		db, err := bbolt.Open(path, 0o600, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bolt db %s: %w", path, err)
		}
		cleanup = func() { _ = db.Close() }
		cfg.Projects = stores.NewBoltProjectStore(db)
		cfg.Users = stores.NewBoltUserStore(db)
		cfg.Versions = stores.NewBoltVersionStore(db)
		cfg.Integrations = stores.NewBoltIntegrationStore(db)
		logger.Info("using bolt store", "path", path)
	case "datastore":
		project := os.Getenv("CRYPTLY_DATASTORE_PROJECT")
		client, err := datastore.NewClient(context.Background(), project)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to datastore: %w", err)
		}
		cleanup = func() { _ = client.Close() }
		cfg.Projects = stores.NewProjectDataStore(client)
		cfg.Users = stores.NewUserDataStore(client)
		cfg.Versions = stores.NewVersionDataStore(client)
		cfg.Integrations = stores.NewIntegrationDataStore(client)
		logger.Info("using datastore", "project", project)
	default:
		cfg.Projects = stores.NewInMemoryProjectStore()
		cfg.Users = stores.NewInMemoryUserStore()
		cfg.Versions = stores.NewInMemoryVersionStore()
		cfg.Integrations = stores.NewInMemoryIntegrationStore()
		logger.Info("using in-memory store")
	}

	registry := integration.NewRegistry()
	provider, err := githubProviderFromEnv(logger)
	if err != nil {
		return nil, nil, err
	}
	if provider != nil {
		registry.Register(provider)
		cfg.Provider = provider.Client()
	}
	cfg.Registry = registry
	return server.NewService(cfg), cleanup, nil
}

// githubProviderFromEnv builds the GitHub Actions provider when app
// credentials are configured; nil otherwise, leaving link and sync
// commands unavailable.
func githubProviderFromEnv(logger *slog.Logger) (*githubapp.Provider, error) {
	appIDStr := os.Getenv("CRYPTLY_GITHUB_APP_ID")
	keyPath := os.Getenv("CRYPTLY_GITHUB_PRIVATE_KEY")
	installIDStr := os.Getenv("CRYPTLY_GITHUB_INSTALLATION_ID")
	if appIDStr == "" || keyPath == "" || installIDStr == "" {
		return nil, nil
	}
	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing CRYPTLY_GITHUB_APP_ID: %w", err)
	}
	installID, err := strconv.ParseInt(installIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing CRYPTLY_GITHUB_INSTALLATION_ID: %w", err)
	}
	privateKey, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading app private key: %w", err)
	}
	client, err := githubapp.NewClient(githubapp.Config{
		AppID:         appID,
		PrivateKey:    privateKey,
		EnterpriseURL: os.Getenv("CRYPTLY_GITHUB_ENTERPRISE_URL"),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return githubapp.NewProvider(client, installID, logger), nil
}

// operatorKeySource unwraps the operator's own sealed project key copy
// with the private key held in the OS keyring.
func (c *cliCtx) operatorKeySource(userID model.UserID) syncengine.KeySource {
	return func(ctx context.Context, projectID model.ProjectID) (*[crypto.KeySize]byte, error) {
		user, err := c.Service.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		project, err := c.Service.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		wrapped, ok := project.EncryptedKeyVersions[userID]
		if !ok {
			return nil, fmt.Errorf("no wrapped project key for %s on project %s", userID, projectID)
		}
		privateKey, err := c.Keyring.Get(string(userID))
		if err != nil {
			return nil, fmt.Errorf("loading private key for %s: %w", userID, err)
		}
		return cryptly.UnwrapKey(wrapped, user.PublicKey, privateKey)
	}
}
