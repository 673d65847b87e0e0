// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New opens the database and builds the
// dependency chain
//
//	sqlite.DB → AuthService / OAuth2Bridge → AuthHandler → routes
//
// and Start runs the HTTP server until SIGINT/SIGTERM.
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

	"github.com/sakif/atlasstudio/internal/auth"
	"github.com/sakif/atlasstudio/internal/config"
	"github.com/sakif/atlasstudio/internal/handler"
	"github.com/sakif/atlasstudio/internal/middleware"
	sqliteRepo "github.com/sakif/atlasstudio/internal/repository/sqlite"
	"github.com/sakif/atlasstudio/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it when Start returns
// (or on Close, for servers that are never started).
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires every route. Google login routes answer
// 503 unless both Google credentials are configured.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to keep it apart from the
// modernc.org/sqlite driver.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST     /api/auth/register            → create local account (JSON)
// POST     /api/auth/login               → local login, sets session cookie
// GET      /api/me                       → current user (session required)
// GET      /oauth2/authorization/google  → redirect to Google
// GET      /login/oauth2/code/google     → Google callback
// GET|POST /logout                       → clear session, redirect to login page
// GET      /healthz                      → liveness + DB ping
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (the logger prints it)
// 2. RealIP: extracts the client IP from proxy headers
// 3. Recoverer: turns panics into 500s
// 4. Logger: logs each request with timing info
// 5. CORS: lets the frontend origin call the API with cookies
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// The frontend runs on its own origin and sends the session cookie with
	// credentials: "include", so the origin list must be explicit (no "*").
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Auth dependencies ===
	tokens, err := auth.NewTokenService(s.config.SessionSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	authService := service.NewAuthService(s.db, auth.NewPasswordService(), s.logger)
	bridge := service.NewOAuth2Bridge(s.db, s.logger)

	var providers []handler.IdentityProvider
	if s.config.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.GoogleCallbackURL,
		))
		s.logger.Info("Google login enabled", slog.String("callback", s.config.GoogleCallbackURL))
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, Google login is disabled")
	}

	authHandler := handler.NewAuthHandler(
		authService,
		bridge,
		tokens,
		handler.AuthConfig{
			CookieSecure:    s.config.CookieSecure,
			LoginSuccessURL: s.config.LoginSuccessURL(),
			LoginPageURL:    s.config.LoginPageURL(),
		},
		s.logger,
		providers...,
	)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
		})
	})

	s.router.With(auth.OptionalAuth(tokens)).Get("/oauth2/authorization/{provider}", authHandler.HandleOAuthAuthorize)
	s.router.Get("/login/oauth2/code/{provider}", authHandler.HandleOAuthCallback)

	// GET stays because the frontend's logout button navigates here. Any site
	// can therefore log a user out; it cannot log anyone in.
	s.router.Get("/logout", authHandler.HandleLogout)
	s.router.Post("/logout", authHandler.HandleLogout)

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start already does this on return.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
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
