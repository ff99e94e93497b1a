// Package server exposes the portfolio service over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server/handler"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server/middleware"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Portfolios *handler.PortfolioHandler
	Transfers  *handler.TransferHandler
	Orders     *handler.OrderHandler
}

// Server is the HTTP + WebSocket API server for the portfolio service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Portfolio lifecycle and reads.
	mux.HandleFunc("POST /api/portfolios", handlers.Portfolios.OpenPortfolio)
	mux.HandleFunc("GET /api/portfolios", handlers.Portfolios.ListPortfolios)
	mux.HandleFunc("GET /api/portfolios/{id}", handlers.Portfolios.GetPortfolio)
	mux.HandleFunc("POST /api/portfolios/{id}/liquidate", handlers.Portfolios.LiquidatePortfolio)
	mux.HandleFunc("POST /api/portfolios/{id}/close", handlers.Portfolios.ClosePortfolio)

	// Funds and share transfers.
	mux.HandleFunc("POST /api/portfolios/{id}/deposits", handlers.Transfers.Deposit)
	mux.HandleFunc("POST /api/portfolios/{id}/withdrawals", handlers.Transfers.Withdraw)
	mux.HandleFunc("POST /api/portfolios/{id}/shares/credits", handlers.Transfers.CreditShares)
	mux.HandleFunc("POST /api/portfolios/{id}/shares/debits", handlers.Transfers.DebitShares)

	// Orders.
	mux.HandleFunc("POST /api/portfolios/{id}/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/portfolios/{id}/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/portfolios/{id}/orders/{orderId}/complete", handlers.Orders.CompleteTrade)
	mux.HandleFunc("POST /api/portfolios/{id}/orders/{orderId}/fail", handlers.Orders.FailOrder)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
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
