package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SubinY/email-sender/internal/config"
	"github.com/SubinY/email-sender/internal/metrics"
	"github.com/SubinY/email-sender/internal/planner"
	"github.com/SubinY/email-sender/internal/scheduler"
	"github.com/SubinY/email-sender/internal/store"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.APIConfig
	store      *store.Store
	planner    *planner.Planner
	sched      *scheduler.Scheduler
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(
	cfg *config.APIConfig,
	st *store.Store,
	pl *planner.Planner,
	sched *scheduler.Scheduler,
	m *metrics.Metrics,
	metricsPath string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		store:     st,
		planner:   pl,
		sched:     sched,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes(m, metricsPath)
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(m *metrics.Metrics, metricsPath string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if m != nil {
		s.router.Use(m.Middleware)
		s.router.Method(http.MethodGet, metricsPath, m.Handler())
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/senders", func(r chi.Router) {
		r.Get("/", s.handleListSenders)
		r.Post("/", s.handleCreateSender)
		r.Get("/{id}", s.handleGetSender)
		r.Put("/{id}", s.handleUpdateSender)
		r.Delete("/{id}", s.handleDeleteSender)
	})

	s.router.Route("/recipients", func(r chi.Router) {
		r.Get("/", s.handleListRecipients)
		r.Post("/", s.handleCreateRecipient)
		r.Post("/import", s.handleImportRecipients)
		r.Put("/{id}/blacklist", s.handleBlacklistRecipient)
		r.Delete("/{id}", s.handleDeleteRecipient)
	})

	s.router.Route("/send-tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Post("/calculate", s.handleCalculate)
		r.Delete("/", s.handleResetAll)
		r.Post("/{id}/control", s.handleControl)
		r.Get("/{id}/status", s.handleTaskStatus)
	})
}

// Router exposes the chi router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout.Std(),
		WriteTimeout: s.cfg.WriteTimeout.Std(),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
