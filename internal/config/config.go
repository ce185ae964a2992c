// Package config provides configuration management for the staking service.
// It loads configuration from environment variables, .env files and an optional
// YAML deployment descriptor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Contract backends
const (
	BackendMock = "mock"
	BackendEVM  = "evm"
)

// Refresh read policies
const (
	PolicyAllOrNothing    = "all_or_nothing"
	PolicyPerFieldDefault = "per_field_default"
)

// DefaultMinPeriodMarker is the contract's revert reason for an unstake before the minimum period
const DefaultMinPeriodMarker = "too early to unstake"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Contract  ContractConfig
	Refresh   RefreshConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Mock      MockConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis configuration for the snapshot store
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	SnapshotTTL    time.Duration
}

// ContractConfig describes the staking deployment
type ContractConfig struct {
	Backend          string
	Network          string
	RPCEndpoints     []string
	StakingAddress   string
	TokenAddress     string
	SimulateWrites   bool
	MinPeriodMarkers []string
	ReadsPerSecond   float64
	ReadBurst        int
	CallTimeout      time.Duration
}

// RefreshConfig holds view model refresh configuration
type RefreshConfig struct {
	Interval    time.Duration // Periodic refresh per watched address
	SettleDelay time.Duration // Wait after a confirmed write before re-reading
	Timeout     time.Duration // Bound on one refresh
	Policy      string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// MockConfig tunes the development contract
type MockConfig struct {
	BlockInterval time.Duration
	Latency       time.Duration
}

// LoadConfig loads configuration from .env file and environment variables.
// When DEPLOYMENT_FILE is set its values become the defaults for the contract settings.
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	deployment := &Deployment{}
	if path := getEnv("DEPLOYMENT_FILE", ""); path != "" {
		d, err := LoadDeployment(path)
		if err != nil {
			return nil, err
		}
		deployment = d
	}

	defaultBackend := BackendMock
	if deployment.StakingContract != "" {
		defaultBackend = BackendEVM
	}
	markers := deployment.MinPeriodMarkers
	if len(markers) == 0 {
		markers = []string{DefaultMinPeriodMarker}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", true),
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			SnapshotTTL:    getEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),
		},
		Contract: ContractConfig{
			Backend:          strings.ToLower(getEnv("CONTRACT_BACKEND", defaultBackend)),
			Network:          getEnv("NETWORK", orDefault(deployment.Network, "devnet")),
			RPCEndpoints:     getEnvAsList("RPC_ENDPOINTS", deployment.RPCEndpoints),
			StakingAddress:   getEnv("STAKING_CONTRACT", deployment.StakingContract),
			TokenAddress:     getEnv("TOKEN_CONTRACT", deployment.TokenContract),
			SimulateWrites:   getEnvAsBool("SIMULATE_WRITES", deployment.SimulateWrites),
			MinPeriodMarkers: getEnvAsList("MIN_PERIOD_MARKERS", markers),
			ReadsPerSecond:   getEnvAsFloat("CONTRACT_READS_PER_SECOND", 20),
			ReadBurst:        getEnvAsInt("CONTRACT_READ_BURST", 10),
			CallTimeout:      getEnvAsDuration("CONTRACT_CALL_TIMEOUT", 5*time.Second),
		},
		Refresh: RefreshConfig{
			Interval:    getEnvAsDuration("REFRESH_INTERVAL", 30*time.Second),
			SettleDelay: getEnvAsDuration("SETTLE_DELAY", 3*time.Second),
			Timeout:     getEnvAsDuration("REFRESH_TIMEOUT", 15*time.Second),
			Policy:      strings.ToLower(getEnv("REFRESH_POLICY", PolicyAllOrNothing)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Mock: MockConfig{
			BlockInterval: getEnvAsDuration("MOCK_BLOCK_INTERVAL", 10*time.Minute),
			Latency:       getEnvAsDuration("MOCK_LATENCY", 0),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Contract.Backend {
	case BackendMock:
	case BackendEVM:
		if len(c.Contract.RPCEndpoints) == 0 {
			return fmt.Errorf("evm backend requires RPC_ENDPOINTS")
		}
		if c.Contract.StakingAddress == "" || c.Contract.TokenAddress == "" {
			return fmt.Errorf("evm backend requires STAKING_CONTRACT and TOKEN_CONTRACT")
		}
	default:
		return fmt.Errorf("unknown contract backend %q", c.Contract.Backend)
	}

	switch c.Refresh.Policy {
	case PolicyAllOrNothing, PolicyPerFieldDefault:
	default:
		return fmt.Errorf("unknown refresh policy %q", c.Refresh.Policy)
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.Refresh.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative")
	}
	return nil
}

// Address returns the listen address of the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma-separated environment variable with a default value
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
