// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the storage backend, the
// notifier, the services, the handlers, and the middleware, and it owns the
// lifecycle of everything that needs closing on shutdown.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → openStore   → repository.Store (sqlite or mongo)
//	              → openNotifier → notify.Notifier (log, smtp, or amqp)
//	Store + Notifier → AuthService, PostService → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/research-gate/internal/auth"
	"github.com/sakif/research-gate/internal/blob"
	"github.com/sakif/research-gate/internal/config"
	"github.com/sakif/research-gate/internal/handler"
	"github.com/sakif/research-gate/internal/metrics"
	"github.com/sakif/research-gate/internal/middleware"
	"github.com/sakif/research-gate/internal/notify"
	"github.com/sakif/research-gate/internal/repository"
	mongoRepo "github.com/sakif/research-gate/internal/repository/mongo"
	sqliteRepo "github.com/sakif/research-gate/internal/repository/sqlite"
	"github.com/sakif/research-gate/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and, with NOTIFIER=amqp, the broker connection
// and the background consumer. Close releases them in reverse order of
// creation: stop consuming, close the broker, then close the store.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics

	queue        *notify.Queue // nil unless NOTIFIER=amqp
	stopConsumer context.CancelFunc
	consumerDone chan struct{}
}

// New opens the configured store and notifier and wires the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	notifier, err := s.openNotifier()
	if err != nil {
		store.Close() // Clean up the store if notifier setup fails
		return nil, err
	}

	if err := s.setupRoutes(notifier); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// newWithStore builds a Server around an already open store and notifier.
// Tests use it to run the full router against a temp SQLite file.
func newWithStore(cfg *config.Config, store repository.Store, notifier notify.Notifier, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}
	if err := s.setupRoutes(notifier); err != nil {
		return nil, err
	}
	return s, nil
}

// openStore picks the backend named by STORE_DRIVER.
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		store, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return store, nil

	default:
		// The "data" directory is created automatically if it doesn't exist.
		if dir := filepath.Dir(cfg.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// openNotifier builds the verification code delivery chain.
//
//	log  → codes are written to the log only
//	smtp → SMTP, falling back to the log when the relay fails
//	amqp → published to the broker; a consumer goroutine in this process
//	       delivers them through SMTP (or the log when SMTP is not configured)
func (s *Server) openNotifier() (notify.Notifier, error) {
	logNotifier := notify.NewLogNotifier(s.logger)

	switch s.config.Notifier {
	case config.NotifierSMTP:
		smtpNotifier, err := notify.NewSMTPNotifier(s.config.SMTP)
		if err != nil {
			return nil, fmt.Errorf("creating smtp notifier: %w", err)
		}
		return notify.WithFallback(smtpNotifier, logNotifier), nil

	case config.NotifierAMQP:
		queue, err := notify.OpenQueue(s.config.AMQP.URL, s.config.AMQP.Queue)
		if err != nil {
			return nil, err
		}

		var target notify.Notifier = logNotifier
		if smtpNotifier, err := notify.NewSMTPNotifier(s.config.SMTP); err == nil {
			target = notify.WithFallback(smtpNotifier, logNotifier)
		} else {
			s.logger.Warn("queued verification codes will only be logged",
				slog.String("reason", err.Error()),
			)
		}

		consumer, err := queue.Consumer(target, s.logger)
		if err != nil {
			queue.Close()
			return nil, err
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.queue = queue
		s.stopConsumer = cancel
		s.consumerDone = make(chan struct{})
		go func() {
			defer close(s.consumerDone)
			consumer.Run(ctx)
		}()

		return queue.Notifier(), nil

	default:
		return logNotifier, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /api/auth/register              → Register (public)
// POST   /api/auth/verify-email          → Verify a code (public)
// POST   /api/auth/resend-verification   → Issue a new code (public)
// POST   /api/auth/login                 → Log in (public)
// GET    /api/posts                      → Feed (public)
// POST   /api/posts                      → Create post
// GET    /api/posts/my-posts             → Caller's posts
// POST   /api/posts/{id}/like            → Toggle like
// POST   /api/posts/{id}/comment         → Add comment
// POST   /api/posts/{id}/share           → Share
// DELETE /api/posts/{id}                 → Delete (author only)
// POST   /api/upload                     → Store a file
// GET    /uploads/*                      → Serve stored files
// GET    /api/health                     → Liveness + DB status
// GET    /metrics                        → Prometheus scrape endpoint
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger + Metrics: one log line and one histogram sample per request
func (s *Server) setupRoutes(notifier notify.Notifier) error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	// === Services ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(s.config.BcryptCost)

	authService := service.NewAuthService(s.store, tokens, passwords, notifier, s.logger, service.AuthOptions{
		EmailDomain: s.config.EmailDomain,
		CodeTTL:     s.config.CodeTTL,
		Metrics:     s.metrics,
	})
	postService := service.NewPostService(s.store, s.store, s.store, s.logger, service.PostOptions{
		Metrics: s.metrics,
	})

	uploads, err := blob.NewLocalStore(s.config.UploadDir)
	if err != nil {
		return fmt.Errorf("creating upload store: %w", err)
	}

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, s.logger)
	postHandler := handler.NewPostHandler(postService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploads, s.config.MaxUploadBytes, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	requireAuth := auth.RequireAuth(authService, handler.WriteError)

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/verify-email", authHandler.HandleVerifyEmail)
			r.Post("/resend-verification", authHandler.HandleResendVerification)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.HandleList)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", postHandler.HandleCreate)
				r.Get("/my-posts", postHandler.HandleMyPosts)
				r.Post("/{id}/like", postHandler.HandleLike)
				r.Post("/{id}/comment", postHandler.HandleComment)
				r.Post("/{id}/share", postHandler.HandleShare)
				r.Delete("/{id}", postHandler.HandleDelete)
			})
		})

		r.With(requireAuth).Post("/upload", uploadHandler.HandleUpload)
		r.Get("/health", healthHandler.HandleHealth)
	})

	// === Static Files ===
	// http.StripPrefix removes "/uploads/" before the file lookup, so
	// GET /uploads/123-paper.pdf serves {UploadDir}/123-paper.pdf.
	// Directories are never listed.
	fileServer := http.FileServer(uploads.FileSystem())
	s.router.Handle(blob.URLPrefix+"*", http.StripPrefix(blob.URLPrefix, fileServer))

	s.router.Handle("/metrics", s.metrics.Handler())

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the consumer and releases the broker and the store.
func (s *Server) Close() error {
	var errs []error
	if s.stopConsumer != nil {
		s.stopConsumer()
		<-s.consumerDone
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the email consumer and close the broker connection
// 4. Close the store (flushes the SQLite WAL or disconnects from Mongo)
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("shutdown cleanup failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second, // uploads can be 10MB
		WriteTimeout: 30 * time.Second,
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
			slog.String("store", s.config.StoreDriver),
			slog.String("notifier", s.config.Notifier),
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
