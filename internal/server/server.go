// Package server exposes the compliance engine over HTTP and streams check
// events to WebSocket subscribers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"github.com/raaihank/compliance-sentinel/internal/metrics"
	"github.com/raaihank/compliance-sentinel/internal/ratelimit"
	"github.com/raaihank/compliance-sentinel/internal/store"
	"github.com/raaihank/compliance-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// RecordStore persists check records.
type RecordStore interface {
	Save(ctx context.Context, rec store.Record) error
	Get(ctx context.Context, postID string) (*store.Record, error)
	Recent(ctx context.Context, limit int, platform string) ([]store.Record, error)
	Summary(ctx context.Context) (*store.Summary, error)
}

// ResultCache caches check results by platform and content.
type ResultCache interface {
	Get(ctx context.Context, platform, content string) (*compliance.Result, error)
	Set(ctx context.Context, platform, content string, result compliance.Result) error
}

// Dependencies are the collaborators a Server is built from. Only Engine is
// required.
type Dependencies struct {
	Engine  *compliance.Engine
	Store   RecordStore
	Cache   ResultCache
	Metrics *metrics.Collector
	Hub     *websocket.Hub
	Version string
}

// Server represents the compliance API server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *compliance.Engine
	store   RecordStore
	cache   ResultCache
	metrics *metrics.Collector
	limiter *ratelimit.Limiter
	wsHub   *websocket.Hub
	router  *mux.Router
	server  *http.Server
	version string

	startedAt    time.Time
	totalChecks  atomic.Int64
	nonCompliant atomic.Int64
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("compliance engine is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	hub := deps.Hub
	if hub == nil {
		hub = websocket.NewHub(cfg.WebSocket, log)
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		engine:    deps.Engine,
		store:     deps.Store,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		limiter:   ratelimit.New(cfg.RateLimit),
		wsHub:     hub,
		router:    mux.NewRouter(),
		version:   version,
		startedAt: time.Now(),
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

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	if s.config.Metrics.Enabled && s.metrics != nil {
		s.router.Handle(s.config.Metrics.Path, s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	api.HandleFunc("/highlight", s.handleHighlight).Methods(http.MethodPost)
	api.HandleFunc("/platforms", s.handlePlatforms).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/records", s.handleRecords).Methods(http.MethodGet)
	api.HandleFunc("/records/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/records/{postId}", s.handleRecord).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the WebSocket hub and serves HTTP until Stop is called. The hub
// stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting compliance API server",
		zap.Int("port", s.config.Server.Port),
		zap.String("version", s.version),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("store", s.store != nil),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
	)

	go s.wsHub.Run(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping compliance API server")
	return s.server.Shutdown(ctx)
}

// Hub returns the WebSocket hub for broadcasting events
func (s *Server) Hub() *websocket.Hub {
	return s.wsHub
}

// Limiter returns the API rate limiter.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// SystemStatus snapshots process and check counters.
func (s *Server) SystemStatus() websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		TotalChecks:      s.totalChecks.Load(),
		NonCompliant:     s.nonCompliant.Load(),
		RulesVersion:     compliance.RulesVersion,
		ActiveRules:      s.engine.RuleCount(),
		ConnectedClients: s.wsHub.ClientCount(),
		MemoryUsage:      fmt.Sprintf("%.1f MB", float64(mem.Alloc)/1024/1024),
		Goroutines:       runtime.NumGoroutine(),
	}
}

// BroadcastStatus sends a system_status event to WebSocket subscribers.
func (s *Server) BroadcastStatus() {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data:      s.SystemStatus(),
	})
}
