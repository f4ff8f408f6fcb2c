package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"secondbrain/app/api"
	"secondbrain/app/middleware"
	"secondbrain/config"
	"secondbrain/conflict"
	"secondbrain/model"
	"secondbrain/search"
	"secondbrain/store"
	"secondbrain/upload"
)

type Server struct {
	cfg      config.Config
	store    store.Storer
	detector *conflict.Detector
	app      *fiber.App
	logger   *slog.Logger
}

// OpenStore connects the backend selected by cfg.Store.Driver and makes sure
// its schema exists.
func OpenStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (store.Storer, error) {
	var (
		s   store.Storer
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		s, err = store.OpenSQLite(cfg.SQLitePath, logger)
	case "postgres":
		s, err = store.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.Dimensions, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open builds a server from configuration: the store, the embedding client
// and everything wired on top of them.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	s, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedder, err := model.NewEmbedder(cfg.Embedding, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	return New(cfg, s, embedder, logger), nil
}

// New wires the services and routes around an already open store.
func New(cfg config.Config, s store.Storer, embedder model.EmbedderInterface, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	searcher := search.NewSearcher(s, cfg.Search.Timeout, logger)
	detector := conflict.NewDetector(embedder, searcher, s, conflict.Options{
		Threshold: cfg.Conflict.Threshold,
		Limit:     cfg.Conflict.Limit,
	}, logger)
	registry := upload.NewRegistry(detector, s, s, cfg.Server.SessionTTL, logger)

	srv := &Server{
		cfg:      cfg,
		store:    s,
		detector: detector,
		logger:   logger.With("component", "server"),
	}
	srv.app = srv.routes(registry)
	return srv
}

func (s *Server) routes(registry *upload.Registry) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          api.ErrorHandler,
			BodyLimit:             s.cfg.Server.MaxUploadBytes,
			DisableStartupMessage: true,
		})
		checkHandler    = api.NewCheckHandler(s.store)
		uploadHandler   = api.NewUploadHandler(registry)
		fileHandler     = api.NewFileHandler(s.store, s.logger)
		conflictHandler = api.NewConflictHandler(s.detector)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1", middleware.BearerAuth(s.cfg.Server.APIToken), middleware.Owner())
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/ready", checkHandler.HandleReady)

	apiv1.Post("/uploads", uploadHandler.HandleUpload)
	apiv1.Get("/uploads", uploadHandler.HandleStatus)
	apiv1.Post("/uploads/proceed", uploadHandler.HandleProceed)
	apiv1.Post("/uploads/cancel", uploadHandler.HandleCancel)

	apiv1.Get("/files", fileHandler.HandleList)
	apiv1.Delete("/files/:id", fileHandler.HandleDelete)
	apiv1.Delete("/files", fileHandler.HandleDeleteAll)

	apiv1.Post("/conflicts/check", conflictHandler.HandleCheck)
	apiv1.Post("/diagnostics", conflictHandler.HandleDiagnose)

	return app
}

// App exposes the fiber application, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Detector() *conflict.Detector {
	return s.detector
}

// Run listens until Stop is called or the listener fails.
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.cfg.Server.Addr, "driver", s.cfg.Store.Driver)
	return s.app.Listen(s.cfg.Server.Addr)
}

// Stop shuts the HTTP server down and closes the store.
func (s *Server) Stop(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info("server stopped")
	return err
}
