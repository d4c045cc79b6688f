// Package server is the composition root: it opens the document store,
// builds the auth provider, session registry, services and handlers, and
// mounts them on one chi router.
//
// DEPENDENCY FLOW:
//
//	config → docstore.Store → repositories → services → handlers → routes
//	                        ↘ auth.LocalProvider → session.Registry ↗
//
// The registry subscribes to the provider in New and unsubscribes in
// Start's shutdown path, so no notification is delivered to a closed
// registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/campus-link/internal/auth"
	"github.com/sakif/campus-link/internal/config"
	"github.com/sakif/campus-link/internal/docstore"
	"github.com/sakif/campus-link/internal/docstore/mongo"
	"github.com/sakif/campus-link/internal/docstore/sqlite"
	"github.com/sakif/campus-link/internal/handler"
	"github.com/sakif/campus-link/internal/middleware"
	"github.com/sakif/campus-link/internal/repository"
	"github.com/sakif/campus-link/internal/service"
	"github.com/sakif/campus-link/internal/session"
	"github.com/sakif/campus-link/web"
)

// Server owns the router and the long-lived resources behind it.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    docstore.Store
	registry *session.Registry
}

// New opens the store and wires the whole application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("server: opening mongo store: %w", err)
		}
		return store, nil
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite store: %w", err)
		}
		logger.Info("document store opened", slog.String("driver", "sqlite"), slog.String("path", cfg.DBPath))
		return store, nil
	}
}

// setupRoutes builds every collaborator and registers the routes.
//
// ROUTES:
//
//	public      /, /signup, /login, /auth/google/*, /auth/verify, /logout, /api/session
//	identity    /dashboard, /complete-profile, PUT /api/profile
//	capability  /post-project, /find-projects, /my-projects, /api/projects...
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → Recoverer → Authenticate. Authenticate runs
// last so a panic while resolving the session is still recovered and logged.
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === AUTH PROVIDER ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return err
	}

	var federated auth.Federated
	if cfg.GoogleEnabled() {
		federated = auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	} else {
		s.logger.Info("Google sign-in disabled: GOOGLE_CLIENT_ID not set")
	}

	provider := auth.NewLocalProvider(auth.LocalProviderConfig{
		Store:     s.store,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		Federated: federated,
		Mailer:    auth.LogMailer{Logger: s.logger},
		PublicURL: cfg.PublicURL,
		Logger:    s.logger,
	})

	// === DATA + SESSIONS ===
	projects := repository.NewProjects(s.store, s.logger)
	profiles := repository.NewProfiles(s.store, s.logger)

	s.registry = session.NewRegistry(provider, profiles, cfg.ProfileReadTimeout, s.logger)
	s.registry.Start()

	// === SERVICES ===
	if cfg.OwnerOnlyDelete {
		s.logger.Warn("OWNER_ONLY_DELETE enabled: only a project's owner may delete or mark it done")
	}
	validator := service.NewValidator()
	projectSvc := service.NewProjectService(projects, profiles, validator,
		service.ProjectOptions{OwnerOnlyDelete: cfg.OwnerOnlyDelete}, s.logger)
	profileSvc := service.NewProfileService(profiles, validator, s.logger)

	// === HANDLERS ===
	renderer, err := handler.NewRenderer(web.Templates, s.logger)
	if err != nil {
		return err
	}
	guard := handler.NewGuard(s.registry, renderer, handler.DefaultLoadingWait, s.logger)
	authHandler := handler.NewAuthHandler(provider, guard, renderer, cfg.SecureCookies, s.logger)
	projectHandler := handler.NewProjectHandler(projectSvc, guard, renderer, s.logger)
	profileHandler := handler.NewProfileHandler(profileSvc, renderer, s.logger)

	// === GLOBAL MIDDLEWARE ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(auth.Authenticate(provider, cfg.SecureCookies, s.logger))

	// === STATIC FILES ===
	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		return err
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	// === PUBLIC PAGES ===
	s.router.Get("/", projectHandler.ShowLanding)
	s.router.Get("/signup", authHandler.ShowSignup)
	s.router.Post("/signup", authHandler.HandleSignup)
	s.router.Get("/login", authHandler.ShowLogin)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
	s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)
	s.router.Get("/auth/verify", authHandler.HandleVerify)
	s.router.Post("/logout", authHandler.HandleLogout)

	// === IDENTITY PAGES ===
	s.router.Group(func(r chi.Router) {
		r.Use(guard.RequireIdentity)
		r.Get("/dashboard", projectHandler.ShowDashboard)
		r.Get("/complete-profile", profileHandler.ShowCompleteProfile)
		r.Post("/complete-profile", profileHandler.HandleCompleteProfile)
	})

	// === CAPABILITY PAGES ===
	s.router.Group(func(r chi.Router) {
		r.Use(guard.RequireCapability)
		r.Get("/post-project", projectHandler.ShowPostProject)
		r.Post("/post-project", projectHandler.HandlePostProject)
		r.Get("/find-projects", projectHandler.ShowFindProjects)
		r.Get("/my-projects", projectHandler.ShowMyProjects)
		r.Post("/my-projects/{id}/done", projectHandler.HandleMarkDone)
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/session", projectHandler.HandleSession)
		r.With(guard.APIRequireIdentity).Put("/profile", profileHandler.HandleSaveProfile)

		r.Group(func(r chi.Router) {
			r.Use(guard.APIRequireCapability)
			r.Get("/projects", projectHandler.HandleList)
			r.Get("/projects/mine", projectHandler.HandleListMine)
			r.Post("/projects", projectHandler.HandleCreate)
			r.Delete("/projects/{id}", projectHandler.HandleDelete)
		})
	})

	return nil
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close unsubscribes the session registry and closes the store.
func (s *Server) Close() error {
	if s.registry != nil {
		s.registry.Close()
	}
	return s.store.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and releases the registry and the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicURL),
			slog.String("store", s.config.StoreDriver),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
