package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	authadapter "github.com/bnema/deadlock-gc/internal/adapters/auth"
	matchrender "github.com/bnema/deadlock-gc/internal/adapters/render/match"
	tomlrepo "github.com/bnema/deadlock-gc/internal/adapters/repo/toml"
	chainstore "github.com/bnema/deadlock-gc/internal/adapters/secrets/chain"
	filestore "github.com/bnema/deadlock-gc/internal/adapters/secrets/file"
	"github.com/bnema/deadlock-gc/internal/adapters/secrets/keyed"
	passstore "github.com/bnema/deadlock-gc/internal/adapters/secrets/pass"
	"github.com/bnema/deadlock-gc/internal/adapters/transport/relay"
	"github.com/bnema/deadlock-gc/internal/application"
	"github.com/bnema/deadlock-gc/internal/config"
	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/logging"
	"github.com/bnema/deadlock-gc/internal/ports"
)

const envConfigFile = "DGC_CONFIG"

type app struct {
	cfg            config.Config
	service        *application.Service
	secretStore    ports.SecretStore
	httpClient     *http.Client
	logOutput      io.Writer
	renderMetadata func(domain.MatchMetadata) (string, error)
	renderHistory  func(domain.MatchHistory, matchrender.RenderOptions) (string, error)
	now            func() time.Time
}

// sessionIO is where a session prompts for guard codes and writes its logs.
type sessionIO struct {
	in  io.Reader
	out io.Writer
}

func wireApp() (*app, error) {
	v, err := config.New(os.Getenv(envConfigFile))
	if err != nil {
		return nil, fmt.Errorf("wire config: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	secretStore, err := wireSecretStore(cfg.SecretsBackend, logging.New(logging.ProfileRuntime, os.Stderr, cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	return &app{
		cfg:            cfg,
		service:        application.NewService(repo, secretStore, ports.SystemClock{}),
		secretStore:    secretStore,
		httpClient:     http.DefaultClient,
		logOutput:      os.Stderr,
		renderMetadata: matchrender.RenderMetadata,
		renderHistory:  matchrender.RenderHistory,
		now:            time.Now,
	}, nil
}

func wireSecretStore(backend string, log zerolog.Logger) (ports.SecretStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(homeDir, ".deadlock-gc", "secrets")

	switch backend {
	case config.SecretsFile:
		return filestore.NewStore(root), nil
	case config.SecretsPass:
		return passstore.NewStore(), nil
	default:
		return chainstore.NewPassFirstWithFileFallback(root, log.With().Str("component", "secrets").Logger())
	}
}

func (a *app) logger() zerolog.Logger {
	return logging.New(logging.ProfileRuntime, a.logOutput, a.cfg.LogLevel)
}

// newClient builds a coordinator client for one stored account.
func (a *app) newClient(account domain.Account, creds domain.Credentials, stdio sessionIO, hooks application.Hooks) *application.Client {
	log := a.logger().With().Str("account", string(account.ID)).Logger()

	conn := relay.New(relay.Config{
		URL:    a.cfg.RelayURL,
		Logger: log.With().Str("component", "relay").Logger(),
	})

	auth := authadapter.SessionFlowAdapter{
		API:           authadapter.DefaultAPI(a.cfg.AuthBaseURL),
		HTTPClient:    a.httpClient,
		Authenticator: authadapter.NewConsoleAuthenticator(stdio.in, stdio.out),
	}

	return application.NewClient(conn, auth, keyed.ForAccount(a.secretStore, account), application.Config{
		AppID:                a.cfg.AppID,
		Credentials:          creds,
		ReconnectInterval:    a.cfg.Session.ReconnectInterval,
		CoordinatorGrace:     a.cfg.Session.CoordinatorGrace,
		HelloInterval:        a.cfg.Session.HelloInterval,
		RequestTimeout:       a.cfg.Session.RequestTimeout,
		AuthFailureThreshold: a.cfg.Session.AuthFailureThreshold,
		Logger:               log,
		Hooks:                hooks,
	})
}
