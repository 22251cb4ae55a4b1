// Package server wires the cupcakes API together and runs it.
//
// This is the composition root: every dependency is built here, in one
// place, and handed down explicitly.
//
//	config.Config
//	  └─ sqlite.DB ─┬─ UserDB ───┬─ AuthService ──┬─ SessionGate
//	                │            │                └─ AuthHandler
//	                └─ CupcakeDB ┴─ CupcakeService ── CupcakeHandler
//	  └─ TokenService   (JWT_SECRET)
//	  └─ SessionStore   (SECRET)          ┐ only when login
//	  └─ OIDCProvider   (ISSUER_BASE_URL) ┘ is configured
package server

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/config"
	"github.com/sakif/cupcakes/internal/handler"
	"github.com/sakif/cupcakes/internal/middleware"
	sqliteRepo "github.com/sakif/cupcakes/internal/repository/sqlite"
	"github.com/sakif/cupcakes/internal/service"
)

const (
	shutdownTimeout  = 30 * time.Second
	discoveryTimeout = 15 * time.Second
)

// Option customises New.
type Option func(*options)

type options struct {
	provider auth.Provider
}

// WithProvider uses p instead of discovering the identity provider from
// ISSUER_BASE_URL. Login still requires SECRET for the session cookies.
func WithProvider(p auth.Provider) Option {
	return func(o *options) { o.provider = p }
}

// Server owns the router and the resources behind it.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	tokens   *auth.TokenService
	sessions *auth.SessionStore // nil when login is disabled
	provider auth.Provider      // nil when login is disabled
	oidc     *auth.OIDCProvider // set when provider was discovered here
}

// New opens the database (applying pending migrations), builds the auth
// components and registers the routes.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}

	if err := s.setupLogin(o); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}

	return s, nil
}

// setupLogin builds the session store and identity provider. Missing
// configuration disables login with a warning; it is not an error.
func (s *Server) setupLogin(o options) error {
	oc := s.config.OIDC
	if oc.Secret == "" || (o.provider == nil && !oc.Enabled()) {
		s.logger.Warn("login is not configured; every session is anonymous",
			slog.Bool("SECRET", oc.Secret != ""),
			slog.Bool("BASE_URL", oc.BaseURL != ""),
			slog.Bool("CLIENT_ID", oc.ClientID != ""),
			slog.Bool("ISSUER_BASE_URL", oc.IssuerBaseURL != ""),
		)
		return nil
	}

	sessions, err := auth.NewSessionStore(auth.SessionConfig{
		Secret: oc.Secret,
		Secure: oc.SecureCookies(),
	}, s.logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	provider := o.provider
	if provider == nil {
		ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
		defer cancel()

		discovered, err := auth.DiscoverOIDC(ctx, auth.OIDCConfig{
			IssuerBaseURL: oc.IssuerBaseURL,
			ClientID:      oc.ClientID,
			ClientSecret:  oc.ClientSecret,
			BaseURL:       oc.BaseURL,
			Auth0Logout:   oc.Auth0Logout,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("server: discovering identity provider: %w", err)
		}
		s.oidc = discovered
		provider = discovered

		s.logger.Info("identity provider discovered", slog.String("issuer", oc.IssuerBaseURL))
	}

	s.sessions = sessions
	s.provider = provider
	return nil
}

// setupRoutes registers middleware and routes.
//
// ROUTES:
//
//	GET  /          optional session  HTML greeting
//	GET  /me        session required  {user, token}
//	GET  /profile   session required  identity claim
//	GET  /login, /callback, /logout   browser login flow
//	GET  /cupcakes  public            list
//	POST /cupcakes  bearer token      create, owned by the token subject
//	GET  /healthz   public            database ping
//
// MIDDLEWARE ORDER:
// Logger sits outside Recoverer so a recovered panic is still logged with
// its 500 status.
func (s *Server) setupRoutes() error {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	users := s.db.Users()
	authService := service.NewAuthService(users, s.tokens, s.logger)
	cupcakeService := service.NewCupcakeService(s.db.Cupcakes(), users, s.logger)

	// A nil *SessionStore inside the interface would not compare equal to
	// nil, so only pass it when login is on.
	var identities handler.IdentityResolver
	if s.sessions != nil {
		identities = s.sessions
	}
	gate := handler.NewSessionGate(identities, authService, s.logger)

	home, err := handler.NewHomeHandler(s.provider != nil, s.logger)
	if err != nil {
		return fmt.Errorf("creating home handler: %w", err)
	}
	authHandler := handler.NewAuthHandler(s.provider, s.sessions, authService, s.config.OIDC.BaseURL, s.logger)
	cupcakeHandler := handler.NewCupcakeHandler(cupcakeService, s.logger)

	r.Get("/healthz", handler.Health(s.db, s.logger))

	r.Get("/", gate.Optional(home.Home))
	r.Get("/me", gate.Required(authHandler.Me))
	r.Get("/profile", gate.Required(authHandler.Profile))

	r.Get("/login", authHandler.Login)
	r.Get("/callback", authHandler.Callback)
	r.Get("/logout", authHandler.Logout)

	r.Route("/cupcakes", func(r chi.Router) {
		r.Get("/", cupcakeHandler.List)
		r.With(auth.RequireBearer(s.tokens, handler.DenyBearer)).Post("/", cupcakeHandler.Create)
	})

	return nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and stops the JWKS refresher.
func (s *Server) Close() error {
	if s.oidc != nil {
		s.oidc.Close()
	}
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes everything.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("cupcakes are ready",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("login", s.provider != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
