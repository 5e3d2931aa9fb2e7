// Package server exposes the pool engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/server/handler"
	"github.com/alanyoungcy/poolbet/internal/server/middleware"
	"github.com/alanyoungcy/poolbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client IP. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
	Pools  *handler.PoolHandler
	Trades *handler.TradeHandler
	Settle *handler.SettleHandler
	Oracle *handler.OracleHandler
}

// Server is the HTTP + WebSocket API server for the pool engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS, auth) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth required for health).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Pool lifecycle and reads.
	mux.HandleFunc("POST /api/pools", handlers.Pools.CreatePool)
	mux.HandleFunc("GET /api/pools", handlers.Pools.ListPools)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("GET /api/pools/{id}/prices", handlers.Pools.GetPrices)
	mux.HandleFunc("GET /api/pools/{id}/book/{option}", handlers.Pools.GetBook)
	mux.HandleFunc("GET /api/pools/{id}/quote", handlers.Pools.GetQuote)
	mux.HandleFunc("GET /api/pools/{id}/impact", handlers.Pools.GetImpact)
	mux.HandleFunc("GET /api/pools/{id}/amount-to-price", handlers.Pools.GetAmountToPrice)
	mux.HandleFunc("GET /api/pools/{id}/balance/{address}", handlers.Pools.GetBalance)
	mux.HandleFunc("GET /api/pools/{id}/projection/{address}", handlers.Pools.GetProjection)

	// Trading.
	mux.HandleFunc("POST /api/pools/{id}/enter", handlers.Trades.Enter)
	mux.HandleFunc("POST /api/pools/{id}/liquidity", handlers.Trades.AddLiquidity)
	mux.HandleFunc("POST /api/pools/{id}/orders", handlers.Trades.PlaceOrder)
	mux.HandleFunc("DELETE /api/pools/{id}/orders/{orderID}", handlers.Trades.CancelOrder)
	mux.HandleFunc("GET /api/pools/{id}/orders", handlers.Trades.ListOrders)
	mux.HandleFunc("GET /api/pools/{id}/fills", handlers.Trades.ListFills)
	mux.HandleFunc("GET /api/pools/{id}/events", handlers.Trades.ListEvents)

	// Settlement.
	mux.HandleFunc("POST /api/pools/{id}/close", handlers.Settle.Close)
	mux.HandleFunc("POST /api/pools/{id}/winner", handlers.Settle.ChooseWinner)
	mux.HandleFunc("POST /api/pools/{id}/dispute", handlers.Settle.OpenDispute)
	mux.HandleFunc("GET /api/pools/{id}/dispute", handlers.Settle.GetDispute)
	mux.HandleFunc("POST /api/pools/{id}/claim", handlers.Settle.Claim)
	mux.HandleFunc("GET /api/pools/{id}/claims", handlers.Settle.ListClaims)

	// Resolution sources.
	mux.HandleFunc("GET /api/oracles", handlers.Oracle.ListSources)
	mux.HandleFunc("GET /api/oracles/{id}", handlers.Oracle.GetSource)
	mux.HandleFunc("POST /api/oracles/{id}/finalize", handlers.Oracle.Finalize)
	mux.HandleFunc("POST /api/oracles/{id}/extend", handlers.Oracle.Extend)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
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
