package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/assistant"
	"github.com/raaihank/fin-sentinel/internal/config"
	"github.com/raaihank/fin-sentinel/internal/ingest"
	"github.com/raaihank/fin-sentinel/internal/logger"
	"github.com/raaihank/fin-sentinel/internal/ratelimit"
	"github.com/raaihank/fin-sentinel/internal/vector"
	"github.com/raaihank/fin-sentinel/internal/websocket"
)

// Version is reported by /info.
const Version = "0.1.0"

// Ingester adds statement uploads to the retrieval index.
type Ingester interface {
	Ingest(ctx context.Context, source string, r io.Reader, reset bool) (*ingest.Result, error)
	Stats(ctx context.Context) (*vector.Stats, error)
}

// Dependencies are the collaborators served over HTTP. Ingest, Hub and
// Limiter may be nil.
type Dependencies struct {
	Assistant *assistant.Pipeline
	Ingest    Ingester
	Hub       *websocket.Hub
	Limiter   *ratelimit.Limiter
}

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	assistant *assistant.Pipeline
	ingester  Ingester
	hub       *websocket.Hub
	limiter   *ratelimit.Limiter
	router    *mux.Router
	server    *http.Server
	startTime time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	if deps.Assistant == nil {
		return nil, errors.New("server: assistant pipeline is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		assistant: deps.Assistant,
		ingester:  deps.Ingest,
		hub:       deps.Hub,
		limiter:   deps.Limiter,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.hub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.NewRoute().Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.timeoutMiddleware)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/mask", s.handleMask).Methods(http.MethodPost)
	api.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting fin-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.String("model_provider", string(s.config.Model.Provider)),
		zap.String("retrieval_backend", s.config.Retrieval.Backend),
		zap.Bool("ingest_enabled", s.ingester != nil),
		zap.Bool("websocket_enabled", s.hub != nil && s.config.WebSocket.Enabled),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping fin-sentinel server")
	return s.server.Shutdown(ctx)
}
