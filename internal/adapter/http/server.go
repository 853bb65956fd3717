package adapthttp

import (
	"log/slog"
	"net/http"

	"bodyregistry/internal/app"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig holds the single sign-on provider. SSO routes answer 404 unless
// Enabled is set.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config oauth2.Config
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	registry         *app.Registry
	authSvc          *app.AuthService
	oidcConfig       OIDCConfig
	trustForwardAuth bool
	logger           *slog.Logger
}

// New creates a Server wired to the given application services.
func New(reg *app.Registry, authSvc *app.AuthService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: reg, authSvc: authSvc, logger: logger}
}

// WithOIDC enables single sign-on through the given provider.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithForwardAuth trusts the Remote-User header. Only enable behind a proxy
// that strips the header from client requests.
func (s *Server) WithForwardAuth() *Server {
	s.trustForwardAuth = true
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	api.HandleFunc("GET /users/{id}", s.handleGetUser)
	api.HandleFunc("GET /users/{id}/exists", s.handleCheckUser)
	api.Handle("POST /register", s.authMiddleware(http.HandlerFunc(s.handleRegister)))
	api.Handle("POST /users/{id}/weights", s.authMiddleware(http.HandlerFunc(s.handleAddWeight)))
	api.Handle("GET /me", s.authMiddleware(http.HandlerFunc(s.handleMe)))

	api.HandleFunc("POST /auth/login", s.handleLogin)
	api.HandleFunc("POST /auth/logout", s.handleLogout)
	api.HandleFunc("POST /auth/signup", s.handleSignUp)
	api.HandleFunc("POST /auth/setup", s.handleSetupUser)
	api.HandleFunc("GET /auth/config", s.handleConfig)
	api.HandleFunc("GET /auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("GET /auth/sso/callback", s.handleSSOCallback)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return withRequestID(s.loggingMiddleware(withNoCache(root)))
}
