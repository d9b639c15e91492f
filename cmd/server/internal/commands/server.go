package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/impacthq/impactos/internal/auth"
	"github.com/impacthq/impactos/internal/crm"
	"github.com/impacthq/impactos/internal/identity"
	"github.com/impacthq/impactos/internal/invite"
	"github.com/impacthq/impactos/internal/logger"
	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/org"
	"github.com/impacthq/impactos/internal/reports"
	"github.com/impacthq/impactos/internal/store"
	memorystore "github.com/impacthq/impactos/internal/store/memory"
	postgresstore "github.com/impacthq/impactos/internal/store/postgres"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/impacthq/impactos/internal/tenant"
	"github.com/impacthq/impactos/internal/web"
	"github.com/rs/zerolog/log"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:443" env:"IMPACTOS_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"IMPACTOS_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"IMPACTOS_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"IMPACTOS_CORS_ORIGINS"`

	// Session configuration
	SessionSecret string        `help:"secret key for HMAC signing of session tokens" env:"IMPACTOS_SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" default:"168h" env:"IMPACTOS_SESSION_TTL"`
	SessionSweep  time.Duration `help:"interval between expired-session sweeps" default:"1h" env:"IMPACTOS_SESSION_SWEEP"`

	// Public base URL, used in invitation links and OAuth redirects
	BaseURL string `help:"public base URL of the application" default:"https://localhost" env:"IMPACTOS_BASE_URL"`

	// GitHub OAuth configuration (optional; unset disables GitHub sign-in)
	GithubClientID     string `help:"GitHub client ID" default:"" env:"IMPACTOS_GITHUB_CLIENT_ID"`
	GithubClientSecret string `help:"GitHub client secret" default:"" env:"IMPACTOS_GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `help:"GitHub callback URL" default:"" env:"IMPACTOS_GITHUB_CALLBACK_URL"`

	// Identity provider configuration
	IdentityProvider string      `help:"identity provider (local or gotrue)" default:"local" env:"IMPACTOS_IDENTITY_PROVIDER" enum:"local,gotrue"`
	GoTrue           GoTrueFlags `embed:"" prefix:"gotrue-"`

	// Invitation email configuration
	Mailer string      `help:"invitation mailer (log or http)" default:"log" env:"IMPACTOS_MAILER" enum:"log,http"`
	Mail   MailerFlags `embed:"" prefix:"mail-"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"IMPACTOS_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"IMPACTOS_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type GoTrueFlags struct {
	URL        string `help:"GoTrue base URL" default:"" env:"IMPACTOS_GOTRUE_URL"`
	AnonKey    string `help:"GoTrue anon (publishable) key" default:"" env:"IMPACTOS_GOTRUE_ANON_KEY"`
	ServiceKey string `help:"GoTrue service role key for admin operations" default:"" env:"IMPACTOS_GOTRUE_SERVICE_KEY"`
	CacheDir   string `help:"directory for the cached provider settings document, empty keeps the cache in memory" default:"" env:"IMPACTOS_GOTRUE_CACHE_DIR"`
}

type MailerFlags struct {
	Endpoint string `help:"mail API endpoint URL" default:"" env:"IMPACTOS_MAIL_ENDPOINT"`
	APIKey   string `help:"mail API key" default:"" env:"IMPACTOS_MAIL_API_KEY"`
	From     string `help:"invitation sender address" default:"" env:"IMPACTOS_MAIL_FROM"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"IMPACTOS_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 bytes (--session-secret or IMPACTOS_SESSION_SECRET)")
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "impactos-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, err := c.createStores(ctx)
	if err != nil {
		return err
	}

	provider, err := c.createIdentityProvider()
	if err != nil {
		return err
	}

	mailer, err := c.createMailer()
	if err != nil {
		return err
	}

	signer, err := login.NewSigner([]byte(c.SessionSecret))
	if err != nil {
		return fmt.Errorf("failed to create session signer: %w", err)
	}

	resolver := tenant.NewResolver(stores.Memberships, stores.Sessions)

	gate, err := auth.NewGate(signer, stores.Users, stores.Sessions, resolver, "", "")
	if err != nil {
		return fmt.Errorf("failed to create authorization gate: %w", err)
	}

	invites, err := invite.NewService(stores, provider, mailer, c.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create invitation service: %w", err)
	}

	orgs, err := org.NewService(stores)
	if err != nil {
		return fmt.Errorf("failed to create organization service: %w", err)
	}

	crmService, err := crm.NewService(stores)
	if err != nil {
		return fmt.Errorf("failed to create CRM service: %w", err)
	}

	reportService, err := reports.NewService(stores)
	if err != nil {
		return fmt.Errorf("failed to create report service: %w", err)
	}

	handlers, err := web.NewHandlers(signer, stores, provider, gate, resolver, invites, orgs, crmService, reportService, c.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create handlers: %w", err)
	}

	// GitHub sign-in is optional: all three settings or none.
	var gh *login.Github
	if c.GithubClientID != "" || c.GithubClientSecret != "" || c.GithubCallbackURL != "" {
		gh, err = login.NewGithub(c.GithubClientID, c.GithubClientSecret, c.GithubCallbackURL, handlers.EstablishFromOAuth)
		if err != nil {
			return fmt.Errorf("failed to initialize GitHub OAuth: %w", err)
		}
		log.Info().Msg("GitHub sign-in enabled")
	}

	router := web.NewRouter(web.RouterConfig{
		Handlers:    handlers,
		Github:      gh,
		CORSOrigins: c.CORSOrigins,
		Logger:      log,
	})

	go c.sweepSessions(ctx, stores)

	srv := configureHTTPServer(c.Listen, router)

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" && c.Key != "" {
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Warn().Str("addr", c.Listen).Msg("Starting HTTP server without TLS; use a terminating proxy in production")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

func (c *ServerCmd) createStores(ctx context.Context) (*store.Stores, error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info().Msg("Using PostgreSQL stores")
		return postgresstore.NewStores(pool), nil

	default:
		log.Info().Msg("Using in-memory stores")
		return memorystore.NewStores(), nil
	}
}

func (c *ServerCmd) createIdentityProvider() (identity.Provider, error) {
	switch c.IdentityProvider {
	case "gotrue":
		return identity.NewGoTrue(c.GoTrue.URL, c.GoTrue.AnonKey, c.GoTrue.ServiceKey, c.GoTrue.CacheDir)
	default:
		// The session secret doubles as the local JWT signing key; both
		// already require 32 bytes.
		return identity.NewLocal([]byte(c.SessionSecret), time.Hour)
	}
}

func (c *ServerCmd) createMailer() (invite.Mailer, error) {
	switch c.Mailer {
	case "http":
		return invite.NewHTTPMailer(c.Mail.Endpoint, c.Mail.APIKey, c.Mail.From)
	default:
		return invite.LogMailer{}, nil
	}
}

// sweepSessions periodically clears expired sessions so abandoned rows do not
// accumulate. Resolution already rejects expired sessions; this is cleanup,
// not enforcement.
func (c *ServerCmd) sweepSessions(ctx context.Context, stores *store.Stores) {
	if c.SessionSweep <= 0 {
		return
	}

	ticker := time.NewTicker(c.SessionSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := stores.Sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Session sweep failed")
				continue
			}
			if removed > 0 {
				telemetry.GetMetrics().SessionsRevoked.Add(ctx, int64(removed))
			}
		}
	}
}
