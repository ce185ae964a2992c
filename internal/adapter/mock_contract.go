package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// ErrTooEarlyToUnstake is the revert reason of an unstake before the minimum period
var ErrTooEarlyToUnstake = fmt.Errorf("too early to unstake")

// MockConfig seeds a MockContract. Start from DefaultMockConfig and override.
type MockConfig struct {
	StakedAmount   types.Amount
	StakedAt       int64
	Rewards        types.Amount
	RewardRate     types.RewardRate
	MinStakePeriod int64
	TotalStaked    types.Amount
	RewardPool     types.Amount
	WalletBalance  types.Amount

	// StartHeight is the block height when the contract is created.
	// Default: StakedAt + MinStakePeriod, so the seeded stake can be unstaked.
	StartHeight int64
	// BlockInterval advances the height with wall time. Zero keeps the height fixed.
	BlockInterval time.Duration
	// Latency delays every call to mimic a remote node
	Latency time.Duration

	Now    func() time.Time
	Logger *logging.Logger
}

// DefaultMockConfig returns the demo values: 0.5 staked, 0.025 claimable,
// 5.0% APY, ~10 day minimum, 5000 staked protocol-wide, 1000 in the pool, 1.0 in the wallet.
func DefaultMockConfig() *MockConfig {
	return &MockConfig{
		StakedAmount:   50_000_000,
		StakedAt:       1000,
		Rewards:        2_500_000,
		RewardRate:     50,
		MinStakePeriod: 1440,
		TotalStaked:    500_000_000_000,
		RewardPool:     100_000_000_000,
		WalletBalance:  100_000_000,
		BlockInterval:  10 * time.Minute,
	}
}

type mockAccount struct {
	staked   types.Amount
	stakedAt int64
	rewards  types.Amount
	balance  types.Amount
}

// MockContract is an in-memory staking contract for development and tests.
// Every address starts with the seeded position; writes change the state
// the way the real contract would.
type MockContract struct {
	mu             sync.Mutex
	seed           mockAccount
	accounts       map[string]*mockAccount
	rewardRate     types.RewardRate
	minStakePeriod int64
	totalStaked    types.Amount
	rewardPool     types.Amount

	startHeight   int64
	heightOffset  int64
	started       time.Time
	blockInterval time.Duration
	latency       time.Duration
	now           func() time.Time

	failures map[string]error
	calls    map[string]int
	logger   *logging.Logger
}

// NewMockContract creates a mock contract
func NewMockContract(cfg *MockConfig) *MockContract {
	if cfg == nil {
		cfg = DefaultMockConfig()
	}

	m := &MockContract{
		seed: mockAccount{
			staked:   cfg.StakedAmount,
			stakedAt: cfg.StakedAt,
			rewards:  cfg.Rewards,
			balance:  cfg.WalletBalance,
		},
		accounts:       make(map[string]*mockAccount),
		rewardRate:     cfg.RewardRate,
		minStakePeriod: cfg.MinStakePeriod,
		totalStaked:    cfg.TotalStaked,
		rewardPool:     cfg.RewardPool,
		blockInterval:  cfg.BlockInterval,
		latency:        cfg.Latency,
		now:            cfg.Now,
		failures:       make(map[string]error),
		calls:          make(map[string]int),
		logger:         cfg.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = logging.GetGlobalLogger()
	}
	m.logger = m.logger.WithField("contract", "mock")
	m.started = m.now()
	m.startHeight = cfg.StartHeight
	if m.startHeight == 0 {
		m.startHeight = m.seed.stakedAt + m.minStakePeriod
	}
	return m
}

// SetFailure makes every call to method fail with err until cleared with a nil err
func (m *MockContract) SetFailure(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// CallCount returns how many times method has been invoked
func (m *MockContract) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// AdvanceBlocks moves the block height forward
func (m *MockContract) AdvanceBlocks(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heightOffset += n
}

// BlockHeight returns the current block height
func (m *MockContract) BlockHeight() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height()
}

// SetRewardRate changes the protocol reward rate
func (m *MockContract) SetRewardRate(rate types.RewardRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewardRate = rate
}

// SetRewards changes the claimable rewards of an address
func (m *MockContract) SetRewards(address string, rewards types.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(address).rewards = rewards
}

// height must be called with the lock held
func (m *MockContract) height() int64 {
	h := m.startHeight + m.heightOffset
	if m.blockInterval > 0 {
		h += int64(m.now().Sub(m.started) / m.blockInterval)
	}
	return h
}

// account must be called with the lock held
func (m *MockContract) account(address string) *mockAccount {
	acc, ok := m.accounts[address]
	if !ok {
		seeded := m.seed
		acc = &seeded
		m.accounts[address] = acc
	}
	return acc
}

// begin waits out the configured latency, counts the call and returns an injected failure.
// On success the lock is held and the caller must unlock.
func (m *MockContract) begin(ctx context.Context, method string) error {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls[method]++
	if err := m.failures[method]; err != nil {
		m.mu.Unlock()
		return NewAdapterError("mock", method, err, nil)
	}
	return nil
}

// ValidateAddress accepts any non-empty address
func (m *MockContract) ValidateAddress(address string) bool {
	return address != ""
}

// GetStakeInfo returns nil when the address has nothing staked
func (m *MockContract) GetStakeInfo(ctx context.Context, address string) (*StakeInfo, error) {
	if err := m.begin(ctx, MethodGetStakeInfo); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	acc := m.account(address)
	if acc.staked == 0 {
		return nil, nil
	}
	return &StakeInfo{Amount: acc.staked, StakedAt: acc.stakedAt}, nil
}

// CalculateRewards returns the seeded or updated claimable rewards
func (m *MockContract) CalculateRewards(ctx context.Context, address string) (types.Amount, error) {
	if err := m.begin(ctx, MethodCalculateRewards); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.account(address).rewards, nil
}

// GetRewardRate returns the protocol reward rate
func (m *MockContract) GetRewardRate(ctx context.Context) (types.RewardRate, error) {
	if err := m.begin(ctx, MethodGetRewardRate); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.rewardRate, nil
}

// GetTotalStaked returns the protocol-wide stake, including writes applied so far
func (m *MockContract) GetTotalStaked(ctx context.Context) (types.Amount, error) {
	if err := m.begin(ctx, MethodGetTotalStaked); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.totalStaked, nil
}

// GetRewardPool returns what is left in the reward pool
func (m *MockContract) GetRewardPool(ctx context.Context) (types.Amount, error) {
	if err := m.begin(ctx, MethodGetRewardPool); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.rewardPool, nil
}

// GetMinStakePeriod returns the minimum stake period in blocks
func (m *MockContract) GetMinStakePeriod(ctx context.Context) (int64, error) {
	if err := m.begin(ctx, MethodGetMinStakePeriod); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.minStakePeriod, nil
}

// GetTokenBalance returns the address's unstaked balance
func (m *MockContract) GetTokenBalance(ctx context.Context, address string) (types.Amount, error) {
	if err := m.begin(ctx, MethodBalanceOf); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return m.account(address).balance, nil
}

// Stake moves balance into the stake and restarts the stake age
func (m *MockContract) Stake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error) {
	return m.write(ctx, session, MethodStake, amount, func(acc *mockAccount) error {
		if amount <= 0 || amount > acc.balance {
			return fmt.Errorf("insufficient balance")
		}
		acc.balance -= amount
		acc.staked += amount
		acc.stakedAt = m.height()
		m.totalStaked += amount
		return nil
	})
}

// Unstake returns stake to the balance once the minimum period has passed
func (m *MockContract) Unstake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error) {
	return m.write(ctx, session, MethodUnstake, amount, func(acc *mockAccount) error {
		if amount <= 0 || amount > acc.staked {
			return fmt.Errorf("insufficient stake")
		}
		if m.height() < acc.stakedAt+m.minStakePeriod {
			return ErrTooEarlyToUnstake
		}
		acc.staked -= amount
		acc.balance += amount
		m.totalStaked -= amount
		if acc.staked == 0 {
			acc.stakedAt = 0
		}
		return nil
	})
}

// ClaimRewards pays the claimable rewards out of the pool
func (m *MockContract) ClaimRewards(ctx context.Context, session wallet.Session) (*TxReceipt, error) {
	return m.write(ctx, session, MethodClaimRewards, 0, func(acc *mockAccount) error {
		if acc.rewards <= 0 {
			return fmt.Errorf("no rewards to claim")
		}
		if acc.rewards > m.rewardPool {
			return fmt.Errorf("reward pool exhausted")
		}
		acc.balance += acc.rewards
		m.rewardPool -= acc.rewards
		acc.rewards = 0
		return nil
	})
}

// write asks the wallet to confirm, then applies the state change.
// A failed apply reverts the whole call.
func (m *MockContract) write(ctx context.Context, session wallet.Session, method string, amount types.Amount, apply func(acc *mockAccount) error) (*TxReceipt, error) {
	if !session.CanSign() {
		return nil, NewAdapterError("mock", method, wallet.ErrNotConnected, nil)
	}

	txID, err := session.Wallet.SubmitCall(ctx, wallet.Call{
		Contract:     "mock-staking",
		FunctionName: method,
		Args:         []string{fmt.Sprintf("%d", amount)},
	})
	if err != nil {
		return nil, NewAdapterError("mock", method, err, map[string]interface{}{"address": session.Address})
	}

	if err := m.begin(ctx, method); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	if err := apply(m.account(session.Address)); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"method":  method,
			"address": session.Address,
			"reason":  err.Error(),
		}).Info("Mock contract call reverted")
		return nil, NewAdapterError("mock", method, err, map[string]interface{}{"address": session.Address})
	}

	m.logger.WithFields(map[string]interface{}{
		"method":  method,
		"address": session.Address,
		"amount":  int64(amount),
		"txId":    txID,
	}).Info("Mock contract call applied")

	return &TxReceipt{TxID: txID}, nil
}
