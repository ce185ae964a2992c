// Package main provides the API server entry point for the staking dashboard service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sats-staker/internal/adapter"
	"github.com/sats-staker/internal/api"
	"github.com/sats-staker/internal/config"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/service"
	"github.com/sats-staker/internal/storage"
	"github.com/sats-staker/internal/wallet"
)

func main() {
	fmt.Println("Sats Staker API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()
	logger.WithFields(map[string]interface{}{
		"level":   cfg.Logging.Level,
		"format":  cfg.Logging.Format,
		"backend": cfg.Contract.Backend,
		"network": cfg.Contract.Network,
	}).Info("Structured logging initialized")

	// Initialize the contract backend
	contract, wallets, closeContract, err := newContract(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize contract backend")
	}
	defer closeContract()

	resilient := adapter.DefaultResilientConfig()
	resilient.RequestsPerSecond = cfg.Contract.ReadsPerSecond
	resilient.Burst = cfg.Contract.ReadBurst
	resilient.CallTimeout = cfg.Contract.CallTimeout
	resilient.Logger = logger
	reader := adapter.NewResilientReader(contract, resilient)

	// Snapshot store for warm starts
	var store storage.SnapshotStore = storage.NewMemorySnapshotStore()
	if cfg.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()
		store = storage.NewRedisSnapshotStore(redis, cfg.Redis.SnapshotTTL)
		logger.WithField("addr", fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)).Info("Snapshot store connected to Redis")
	}

	// Initialize services
	logger.Info("Initializing services...")

	snapshotService := service.NewSnapshotService(reader, service.SnapshotServiceConfig{
		Policy:         service.ParseFallbackPolicy(cfg.Refresh.Policy),
		Store:          store,
		RefreshTimeout: cfg.Refresh.Timeout,
		Logger:         logger,
	})

	scheduler := service.NewRefreshScheduler(snapshotService, cfg.Refresh.Interval, logger)
	defer scheduler.Close()

	actionService := service.NewActionService(contract, snapshotService, scheduler, service.ActionServiceConfig{
		SettleDelay:      cfg.Refresh.SettleDelay,
		MinPeriodMarkers: cfg.Contract.MinPeriodMarkers,
		Logger:           logger,
	})
	defer actionService.Close()

	logger.WithField("policy", snapshotService.Policy()).Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Network:           cfg.Contract.Network,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Logger:            logger,
	}

	server := api.NewServer(serverConfig, snapshotService, scheduler, actionService, wallets)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// newContract builds the configured contract backend and the wallets that sign for it
func newContract(cfg *config.Config, logger *logging.Logger) (adapter.StakingContract, api.WalletResolver, func(), error) {
	switch cfg.Contract.Backend {
	case config.BackendEVM:
		pool, err := adapter.NewRPCPool(&adapter.RPCPoolConfig{
			Endpoints: cfg.Contract.RPCEndpoints,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		contract, err := adapter.NewEVMStakingContract(&adapter.EVMContractConfig{
			Network:        cfg.Contract.Network,
			StakingAddress: cfg.Contract.StakingAddress,
			TokenAddress:   cfg.Contract.TokenAddress,
			Caller:         pool,
			Simulate:       cfg.Contract.SimulateWrites,
			Logger:         logger,
		})
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.WithFields(map[string]interface{}{
			"endpoints": pool.EndpointCount(),
			"staking":   cfg.Contract.StakingAddress,
		}).Info("EVM staking contract initialized")
		// Signing happens in the user's wallet, so the server cannot submit writes itself
		return contract, nil, pool.Close, nil

	default:
		mockCfg := adapter.DefaultMockConfig()
		mockCfg.BlockInterval = cfg.Mock.BlockInterval
		mockCfg.Latency = cfg.Mock.Latency
		mockCfg.Logger = logger
		dev := wallet.NewDevWallet()
		logger.Warn("Using the in-memory development contract")
		return adapter.NewMockContract(mockCfg), func(string) wallet.Wallet { return dev }, func() {}, nil
	}
}
