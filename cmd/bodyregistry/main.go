package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adapthttp "bodyregistry/internal/adapter/http"
	"bodyregistry/internal/adapter/memory"
	"bodyregistry/internal/adapter/postgres"
	"bodyregistry/internal/app"
	"bodyregistry/internal/config"
	"bodyregistry/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const sessionSweepInterval = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	accounts domain.AccountRepository
	users    domain.UserRepository
	sessions domain.SessionRepository
	close    func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		db := memory.New()
		return &stores{accounts: db, users: db, sessions: db.NewSessionRepo(), close: func() error { return nil }}, nil
	}
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	return &stores{accounts: db, users: db, sessions: postgres.NewSessionRepo(db), close: db.Close}, nil
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	policy := app.OverwriteOnRegister
	if cfg.RejectReregistration {
		policy = app.RejectReregistration
	}

	if cfg.Init {
		if _, err := app.Initialize(ctx, st.accounts, policy); err != nil {
			return err
		}
		logger.Info("registry initialized", "storage", cfg.Storage)
		return nil
	}

	reg := app.NewRegistry(st.accounts, policy)
	authSvc := app.NewAuthService(st.users, st.sessions)

	if cfg.AdminUser != "" {
		err := authSvc.CreateInitialUser(ctx, cfg.AdminUser, cfg.AdminPassword)
		switch {
		case errors.Is(err, app.ErrUsersExist):
			logger.Info("initial user skipped, users already exist")
		case err != nil:
			return fmt.Errorf("create initial user: %w", err)
		default:
			logger.Info("initial user created", "username", cfg.AdminUser)
		}
	}

	srv := adapthttp.New(reg, authSvc, logger)
	if cfg.TrustForwardAuth {
		srv.WithForwardAuth()
	}
	if cfg.OIDC.Enabled() {
		provider, err := oidc.NewProvider(ctx, cfg.OIDC.Issuer)
		if err != nil {
			return fmt.Errorf("oidc provider: %w", err)
		}
		srv.WithOIDC(adapthttp.OIDCConfig{
			Enabled:  true,
			Provider: provider,
			OAuth2Config: oauth2.Config{
				ClientID:     cfg.OIDC.ClientID,
				ClientSecret: cfg.OIDC.ClientSecret,
				RedirectURL:  cfg.OIDC.RedirectURL,
				Endpoint:     provider.Endpoint(),
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
		})
		logger.Info("sso enabled", "issuer", cfg.OIDC.Issuer)
	}

	go sweepSessions(ctx, authSvc, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "storage", cfg.Storage)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepSessions(ctx context.Context, authSvc *app.AuthService, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authSvc.CleanupSessions(ctx); err != nil {
				logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}
