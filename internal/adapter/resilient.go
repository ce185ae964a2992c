package adapter

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/sats-staker/internal/circuitbreaker"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/retry"
	"github.com/sats-staker/internal/types"
)

// ResilientConfig configures a ResilientReader
type ResilientConfig struct {
	// RequestsPerSecond caps reads against the node. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Retry   *retry.RetryConfig
	Breaker *circuitbreaker.Config
	// CallTimeout bounds a single attempt. Zero means no per-attempt timeout.
	CallTimeout time.Duration
	Logger      *logging.Logger
}

// DefaultResilientConfig returns the configuration used for contract reads
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		RequestsPerSecond: 20,
		Burst:             10,
		Retry:             retry.DefaultRetryConfig(),
		Breaker:           circuitbreaker.DefaultConfig("contract-reads"),
		CallTimeout:       5 * time.Second,
	}
}

// ResilientReader decorates a ContractReader with rate limiting, a circuit breaker
// and exponential-backoff retry. Writes are not decorated: a write is confirmed by
// the user and must never be replayed.
type ResilientReader struct {
	next        ContractReader
	limiter     *rate.Limiter
	breaker     *circuitbreaker.CircuitBreaker
	retry       *retry.RetryConfig
	callTimeout time.Duration
	logger      *logging.Logger
}

// NewResilientReader wraps a reader
func NewResilientReader(next ContractReader, cfg *ResilientConfig) *ResilientReader {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg == nil {
		breakerCfg = circuitbreaker.DefaultConfig("contract-reads")
	}
	if breakerCfg.Logger == nil {
		cp := *breakerCfg
		cp.Logger = logger
		breakerCfg = &cp
	}

	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	if retryCfg.ShouldRetry == nil {
		cp := *retryCfg
		cp.ShouldRetry = isRetryableRead
		retryCfg = &cp
	}

	return &ResilientReader{
		next:        next,
		limiter:     limiter,
		breaker:     circuitbreaker.NewCircuitBreaker(breakerCfg),
		retry:       retryCfg,
		callTimeout: cfg.CallTimeout,
		logger:      logger.WithField("component", "resilient_reader"),
	}
}

// isRetryableRead rejects errors another attempt cannot fix.
// A timed-out attempt is retried; cancellation of the caller stops the retry loop itself.
func isRetryableRead(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrUnexpectedResult),
		errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return false
	}
	return true
}

// Breaker exposes the circuit breaker for health reporting
func (r *ResilientReader) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

// ValidateAddress delegates to the wrapped reader
func (r *ResilientReader) ValidateAddress(address string) bool {
	return r.next.ValidateAddress(address)
}

// GetStakeInfo reads the stake position through the resilience chain
func (r *ResilientReader) GetStakeInfo(ctx context.Context, address string) (*StakeInfo, error) {
	return guarded(ctx, r, MethodGetStakeInfo, func(ctx context.Context) (*StakeInfo, error) {
		return r.next.GetStakeInfo(ctx, address)
	})
}

// CalculateRewards reads the claimable rewards through the resilience chain
func (r *ResilientReader) CalculateRewards(ctx context.Context, address string) (types.Amount, error) {
	return guarded(ctx, r, MethodCalculateRewards, func(ctx context.Context) (types.Amount, error) {
		return r.next.CalculateRewards(ctx, address)
	})
}

// GetRewardRate reads the protocol reward rate through the resilience chain
func (r *ResilientReader) GetRewardRate(ctx context.Context) (types.RewardRate, error) {
	return guarded(ctx, r, MethodGetRewardRate, r.next.GetRewardRate)
}

// GetTotalStaked reads the protocol-wide stake through the resilience chain
func (r *ResilientReader) GetTotalStaked(ctx context.Context) (types.Amount, error) {
	return guarded(ctx, r, MethodGetTotalStaked, r.next.GetTotalStaked)
}

// GetRewardPool reads the remaining reward pool through the resilience chain
func (r *ResilientReader) GetRewardPool(ctx context.Context) (types.Amount, error) {
	return guarded(ctx, r, MethodGetRewardPool, r.next.GetRewardPool)
}

// GetMinStakePeriod reads the minimum stake period through the resilience chain
func (r *ResilientReader) GetMinStakePeriod(ctx context.Context) (int64, error) {
	return guarded(ctx, r, MethodGetMinStakePeriod, r.next.GetMinStakePeriod)
}

// GetTokenBalance reads the wallet token balance through the resilience chain
func (r *ResilientReader) GetTokenBalance(ctx context.Context, address string) (types.Amount, error) {
	return guarded(ctx, r, MethodBalanceOf, func(ctx context.Context) (types.Amount, error) {
		return r.next.GetTokenBalance(ctx, address)
	})
}

// guarded runs one read through the limiter, breaker and retry loop
func guarded[T any](ctx context.Context, r *ResilientReader, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	ctx = logging.WithLogger(ctx, r.logger.WithField("method", method))

	err := retry.Do(ctx, r.retry, func(ctx context.Context, attempt int) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return r.breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx := ctx
			if r.callTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
				defer cancel()
			}
			v, err := fn(callCtx)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
