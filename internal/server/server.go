// Package server wires the example store together: database, services,
// handlers and routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go  → config.Config, logger, executor
//	New()    → sqlite.DB → services → handlers → chi routes
//
// Every dependency is built here, in one composition root, so handlers and
// services never construct their own collaborators.
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
	"golang.org/x/time/rate"

	"github.com/sakif/example-author/internal/auth"
	"github.com/sakif/example-author/internal/config"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/handler"
	"github.com/sakif/example-author/internal/middleware"
	sqliteRepo "github.com/sakif/example-author/internal/repository/sqlite"
	"github.com/sakif/example-author/internal/service"
)

// Server owns the router and the database connection, which is closed when
// the server stops.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	tokens *auth.TokenService
}

// New opens the database and builds the router. exec may be nil: execute
// then answers 503 while everything else keeps working.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it is not confused with the
// modernc driver.
func New(cfg *config.Config, logger *slog.Logger, exec executor.Executor) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}
	s.setupRoutes(exec)
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	POST   /auth/register
//	POST   /auth/login
//	POST   /auth/logout
//	GET    /auth/github/login            (when GitHub is configured)
//	GET    /auth/github/callback         (when GitHub is configured)
//	GET    /healthz
//
//	everything under /api requires a token:
//	GET    /api/me
//	GET    /api/packages
//	GET    /api/examples/query
//	GET    /api/{language}/{package}/lockAndList
//	POST   /api/{language}/{package}/examples
//	DELETE /api/{language}/{package}/lock
//	POST   /api/{language}/execute
//	POST   /api/{language}/autoformat
//	GET    /api/example/{id}
//	PUT    /api/example/{id}
//	GET    /api/example/{id}/history
//	GET    /api/example/{id}/comments
//	POST   /api/example/{id}/comments
//	GET    /api/comment/{id}
//	PUT    /api/comment/{id}
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can report it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes(exec executor.Executor) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	accessService := service.NewAccessService(s.db, s.config.Server.LockTTL, s.logger)
	exampleService := service.NewExampleService(s.db, s.db, s.db, accessService, s.logger)
	executionService := service.NewExecutionService(exec, s.db, s.logger)
	authService := service.NewAuthService(s.db, s.tokens, auth.NewPasswordService(), s.logger)

	// === Handlers ===
	var limiter *rate.Limiter
	if s.config.Server.ExecuteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.Server.ExecuteRate), s.config.Server.ExecuteBurst)
	}
	exampleHandler := handler.NewExampleHandler(exampleService, accessService, s.logger)
	executeHandler := handler.NewExecuteHandler(executionService, limiter, s.logger)

	var github *auth.GitHubProvider
	if s.config.Auth.GitHubEnabled() {
		callback := s.config.Auth.GitHubCallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/auth/github/callback", s.config.Server.Port)
		}
		github = auth.NewGitHubProvider(s.config.Auth.GitHubClientID, s.config.Auth.GitHubClientSecret, callback)
	} else {
		s.logger.Info("GitHub login disabled: client id/secret not configured")
	}
	authHandler := handler.NewAuthHandler(authService, github, s.tokens.TTL(), s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// === Auth Routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens))
		r.Use(middleware.RecordIdentity)

		r.Get("/me", authHandler.HandleMe)
		r.Get("/packages", exampleHandler.HandlePackages)
		r.Get("/examples/query", exampleHandler.HandleQuery)

		r.Route("/example/{id}", func(r chi.Router) {
			r.Get("/", exampleHandler.HandleGet)
			r.Put("/", exampleHandler.HandleUpdate)
			r.Get("/history", exampleHandler.HandleHistory)
			r.Get("/comments", exampleHandler.HandleListComments)
			r.Post("/comments", exampleHandler.HandleAddComment)
		})
		r.Get("/comment/{id}", exampleHandler.HandleGetComment)
		r.Put("/comment/{id}", exampleHandler.HandleEditComment)

		r.Post("/{language}/execute", executeHandler.HandleExecute)
		r.Post("/{language}/autoformat", executeHandler.HandleAutoformat)

		r.Route("/{language}/{package}", func(r chi.Router) {
			r.Get("/lockAndList", exampleHandler.HandleLockAndList)
			r.Post("/examples", exampleHandler.HandleCreate)
			r.Delete("/lock", exampleHandler.HandleRelease)
		})
	})
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // execute can take the sandbox timeout plus pool wait
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
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
