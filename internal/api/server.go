// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/service"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// Service interfaces for dependency injection and testing

// SnapshotServiceInterface defines the view model operations used by the API
type SnapshotServiceInterface interface {
	Refresh(ctx context.Context, session wallet.Session) (*service.StakeView, error)
	Current(address string) (*service.StakeView, bool)
}

// WatcherInterface defines the scheduler operations used by the event stream
type WatcherInterface interface {
	Watch(ctx context.Context, session wallet.Session) (*service.Subscription, error)
}

// ActionServiceInterface defines the action operations used by the API
type ActionServiceInterface interface {
	Submit(ctx context.Context, session wallet.Session, kind types.ActionKind, amount types.Amount) (*service.ActionRecord, error)
	Get(id string) (*service.ActionRecord, error)
	Pending(address string) (string, bool)
}

// WalletResolver returns the wallet that signs writes for an address, or nil when there is none
type WalletResolver func(address string) wallet.Wallet

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	snapshots  SnapshotServiceInterface
	watcher    WatcherInterface
	actions    ActionServiceInterface
	wallets    WalletResolver
	validate   *validator.Validate
	logger     *logging.Logger
	config     *ServerConfig

	// closing ends open event streams when the server shuts down
	closing   chan struct{}
	closeOnce sync.Once
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	Network           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	snapshots SnapshotServiceInterface,
	watcher WatcherInterface,
	actions ActionServiceInterface,
	wallets WalletResolver,
) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if wallets == nil {
		wallets = func(string) wallet.Wallet { return nil }
	}

	s := &Server{
		router:    mux.NewRouter(),
		snapshots: snapshots,
		watcher:   watcher,
		actions:   actions,
		wallets:   wallets,
		validate:  validator.New(),
		logger:    logger.WithField("component", "api"),
		config:    config,
		closing:   make(chan struct{}),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	// Shutdown waits for active handlers, so streams must end first
	s.httpServer.RegisterOnShutdown(s.closeStreams)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Staker endpoints
	api.HandleFunc("/stakers/{address}", s.handleGetStaker).Methods("GET")
	api.HandleFunc("/stakers/{address}/projections", s.handleGetStakerProjections).Methods("GET")
	api.HandleFunc("/stakers/{address}/stream", s.handleStream).Methods("GET")

	// Action endpoints
	api.HandleFunc("/stakers/{address}/stake", s.handleStake).Methods("POST")
	api.HandleFunc("/stakers/{address}/unstake", s.handleUnstake).Methods("POST")
	api.HandleFunc("/stakers/{address}/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/actions/{id}", s.handleGetAction).Methods("GET")

	// Stateless calculator
	api.HandleFunc("/projections", s.handleProjectionCalculator).Methods("GET")
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "sats-staker",
		"network": s.config.Network,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on an existing listener
func (s *Server) Serve(l net.Listener) error {
	s.logger.WithField("addr", l.Addr().String()).Info("Starting API server")
	return s.httpServer.Serve(l)
}

// Shutdown gracefully shuts down the server. Open event streams are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}
