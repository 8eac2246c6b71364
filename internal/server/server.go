// Package server is the HTTP and WebSocket front of the ledger host.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/server/middleware"
	"github.com/alanyoungcy/binaryoptions/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	RateLimitRPS   float64
	RateLimitBurst int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Status       *handler.StatusHandler
	Transactions *handler.TransactionHandler
	Accounts     *handler.AccountHandler
	Markets      *handler.MarketHandler
	Events       *handler.EventHandler // nil without a shared event stream
}

// Options carries the optional collaborators.
type Options struct {
	Hub         *ws.Hub
	RateLimiter domain.RateLimiter // shared limiter, may be nil
	Gatherer    prometheus.Gatherer
	Registerer  prometheus.Registerer
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain: CORS, logging, rate limiting, auth for writes and metrics.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, opts, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler without a listener.
func NewHandler(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/recent-hash", handlers.Status.RecentHash)

	mux.HandleFunc("POST /api/transactions", handlers.Transactions.Submit)
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Accounts.GetAccount)

	mux.HandleFunc("GET /api/config", handlers.Markets.GetConfig)
	mux.HandleFunc("GET /api/predictions", handlers.Markets.ListPredictions)
	mux.HandleFunc("GET /api/predictions/{id}", handlers.Markets.GetPrediction)

	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Hub != nil {
		mux.HandleFunc("GET /ws", opts.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Metrics(middleware.NewHTTPMetrics(opts.Registerer))(h)
	h = middleware.Auth(cfg.APIKey)(h)

	var local *middleware.LocalLimiter
	if cfg.RateLimitRPS > 0 {
		local = middleware.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if local != nil || opts.RateLimiter != nil {
		window := time.Second
		limit := cfg.RateLimitBurst
		if limit <= 0 {
			limit = 1
		}
		h = middleware.RateLimit(local, opts.RateLimiter, limit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
