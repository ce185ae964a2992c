package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sats-staker/internal/logging"
)

// PoolClient is a node connection held by the pool
type PoolClient interface {
	ethereum.ContractCaller
	Close()
}

// DialFunc connects to one endpoint
type DialFunc func(url string) (PoolClient, error)

// DialEthClient dials an endpoint with go-ethereum's ethclient
func DialEthClient(url string) (PoolClient, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RPCPool manages multiple RPC endpoints with failover.
// Strategy: stick to the current endpoint until it is rate limited or unreachable, then switch to the next.
type RPCPool struct {
	endpoints    []string
	clients      []PoolClient
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time // When each endpoint was last marked unavailable
	cooldownTime time.Duration     // How long to wait before retrying an unavailable endpoint
	dial         DialFunc
	logger       *logging.Logger
}

// RPCPoolConfig holds configuration for creating an RPC pool
type RPCPoolConfig struct {
	// Endpoints is a list of RPC URLs
	Endpoints []string
	// CooldownTime is how long to wait before retrying an unavailable endpoint
	// Default: 60 seconds
	CooldownTime time.Duration
	// Dial connects to an endpoint. Default: DialEthClient
	Dial   DialFunc
	Logger *logging.Logger
}

// NewRPCPool creates a new RPC pool from multiple endpoints
func NewRPCPool(cfg *RPCPoolConfig) (*RPCPool, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	cooldownTime := cfg.CooldownTime
	if cooldownTime == 0 {
		cooldownTime = 60 * time.Second
	}
	dial := cfg.Dial
	if dial == nil {
		dial = DialEthClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	pool := &RPCPool{
		endpoints:    cfg.Endpoints,
		clients:      make([]PoolClient, len(cfg.Endpoints)),
		currentIndex: 0,
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldownTime,
		dial:         dial,
		logger:       logger.WithField("component", "rpc_pool"),
	}

	// Connect to first endpoint only (lazy connect others)
	client, err := dial(cfg.Endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary RPC endpoint: %w", err)
	}
	pool.clients[0] = client

	pool.logger.Infof("Initialized with %d endpoints, starting with endpoint 0", len(cfg.Endpoints))

	return pool, nil
}

// SplitEndpoints splits a comma-separated URL list, dropping empty entries
func SplitEndpoints(urls string) []string {
	var endpoints []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// CallContract executes an eth_call on the current endpoint, failing over once
// to the next available endpoint when the current one is rate limited or unreachable.
func (p *RPCPool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	index, client := p.current()
	out, err := client.CallContract(ctx, msg, blockNumber)
	if err == nil || ctx.Err() != nil || !ShouldFailover(err) {
		return out, err
	}

	if switchErr := p.markUnavailable(index); switchErr != nil {
		p.logger.WithError(switchErr).Warn("No endpoint available for failover")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	_, client = p.current()
	return client.CallContract(ctx, msg, blockNumber)
}

func (p *RPCPool) current() (int, PoolClient) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.currentIndex, p.clients[p.currentIndex]
}

// GetCurrentURL returns the current active RPC URL
func (p *RPCPool) GetCurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.endpoints[p.currentIndex]
}

// GetCurrentIndex returns the current endpoint index
func (p *RPCPool) GetCurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.currentIndex
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// markUnavailable puts the endpoint in cooldown and switches to the next available one.
// Returns error if every endpoint is in cooldown.
func (p *RPCPool) markUnavailable(failed int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if failed != p.currentIndex {
		// Another caller already switched away
		return nil
	}

	p.cooldowns[p.currentIndex] = time.Now()
	p.logger.WithField("endpoint", p.currentIndex).Warn("Endpoint unavailable, marking cooldown")

	startIndex := p.currentIndex
	for i := 0; i < len(p.endpoints)-1; i++ {
		nextIndex := (startIndex + 1 + i) % len(p.endpoints)

		if cooldownTime, exists := p.cooldowns[nextIndex]; exists {
			if time.Since(cooldownTime) < p.cooldownTime {
				continue
			}
			// Cooldown expired, remove from map
			delete(p.cooldowns, nextIndex)
		}

		if err := p.switchToEndpoint(nextIndex); err != nil {
			p.logger.WithError(err).WithField("endpoint", nextIndex).Warn("Failed to switch endpoint")
			continue
		}

		p.logger.WithFields(map[string]interface{}{"from": startIndex, "to": nextIndex}).Info("Switched RPC endpoint")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints are unavailable", len(p.endpoints))
}

// switchToEndpoint switches to a specific endpoint (must hold lock)
func (p *RPCPool) switchToEndpoint(index int) error {
	// Lazy connect if not already connected
	if p.clients[index] == nil {
		client, err := p.dial(p.endpoints[index])
		if err != nil {
			return fmt.Errorf("failed to connect to endpoint %d: %w", index, err)
		}
		p.clients[index] = client
	}

	p.currentIndex = index
	return nil
}

// TryResetToPrimary attempts to switch back to the primary endpoint (index 0)
// if its cooldown has expired.
func (p *RPCPool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}

	if cooldownTime, exists := p.cooldowns[0]; exists {
		if time.Since(cooldownTime) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}

	if err := p.switchToEndpoint(0); err != nil {
		p.logger.WithError(err).Warn("Failed to reset to primary endpoint")
		return false
	}

	p.logger.Info("Reset to primary endpoint")
	return true
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// ShouldFailover determines if an error warrants moving to another endpoint.
// Contract reverts never do; only transport-level trouble does.
func ShouldFailover(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "eof")
}

// Close closes all client connections
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if client != nil {
			client.Close()
			p.clients[i] = nil
		}
	}
}

// Status returns the current status of the pool
func (p *RPCPool) Status() *RPCPoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := &RPCPoolStatus{
		TotalEndpoints: len(p.endpoints),
		CurrentIndex:   p.currentIndex,
		EndpointStatus: make([]EndpointStatus, len(p.endpoints)),
	}

	for i := range p.endpoints {
		es := EndpointStatus{
			Index:     i,
			Connected: p.clients[i] != nil,
			IsCurrent: i == p.currentIndex,
		}

		if cooldownTime, exists := p.cooldowns[i]; exists {
			remaining := p.cooldownTime - time.Since(cooldownTime)
			if remaining > 0 {
				es.InCooldown = true
				es.CooldownRemaining = remaining
			}
		}

		status.EndpointStatus[i] = es
	}

	return status
}

// RPCPoolStatus represents the current status of the RPC pool
type RPCPoolStatus struct {
	TotalEndpoints int              `json:"totalEndpoints"`
	CurrentIndex   int              `json:"currentIndex"`
	EndpointStatus []EndpointStatus `json:"endpoints"`
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	Index             int           `json:"index"`
	Connected         bool          `json:"connected"`
	IsCurrent         bool          `json:"isCurrent"`
	InCooldown        bool          `json:"inCooldown"`
	CooldownRemaining time.Duration `json:"cooldownRemaining"`
}
