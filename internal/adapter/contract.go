package adapter

import (
	"context"
	"fmt"

	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// StakeInfo is the stake position of one address as reported by the contract
type StakeInfo struct {
	Amount   types.Amount `json:"amount"`
	StakedAt int64        `json:"stakedAt"` // Block height
}

// TxReceipt is returned once the wallet has confirmed a write
type TxReceipt struct {
	TxID string `json:"txId"`
}

// ContractReader defines the read-only calls of the staking contract
type ContractReader interface {
	// GetStakeInfo returns the address's stake position.
	// A nil result without error means the address has no stake.
	GetStakeInfo(ctx context.Context, address string) (*StakeInfo, error)

	// CalculateRewards returns the rewards the address can claim now
	CalculateRewards(ctx context.Context, address string) (types.Amount, error)

	// GetRewardRate returns the raw protocol reward rate
	GetRewardRate(ctx context.Context) (types.RewardRate, error)

	// GetTotalStaked returns the protocol-wide staked amount
	GetTotalStaked(ctx context.Context) (types.Amount, error)

	// GetRewardPool returns the remaining protocol reward budget
	GetRewardPool(ctx context.Context) (types.Amount, error)

	// GetMinStakePeriod returns the number of blocks a stake must age before unstaking
	GetMinStakePeriod(ctx context.Context) (int64, error)

	// GetTokenBalance returns the address's unstaked token balance
	GetTokenBalance(ctx context.Context, address string) (types.Amount, error)

	// ValidateAddress checks if address format is valid for this deployment
	ValidateAddress(address string) bool
}

// ContractWriter defines the state-changing calls of the staking contract.
// Each call resolves on wallet confirmation, not on ledger finality.
type ContractWriter interface {
	Stake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error)
	Unstake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error)
	ClaimRewards(ctx context.Context, session wallet.Session) (*TxReceipt, error)
}

// StakingContract is a full contract client
type StakingContract interface {
	ContractReader
	ContractWriter
}

// Contract method names, shared by the adapters and their logs
const (
	MethodGetStakeInfo      = "getStakeInfo"
	MethodCalculateRewards  = "calculateRewards"
	MethodGetRewardRate     = "getRewardRate"
	MethodGetTotalStaked    = "getTotalStaked"
	MethodGetRewardPool     = "getRewardPool"
	MethodGetMinStakePeriod = "getMinStakePeriod"
	MethodBalanceOf         = "balanceOf"
	MethodStake             = "stake"
	MethodUnstake           = "unstake"
	MethodClaimRewards      = "claimRewards"
)

// Common error types for contract adapters

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrUnexpectedResult indicates the contract returned a value of the wrong shape or range
	ErrUnexpectedResult = fmt.Errorf("unexpected contract result")

	// ErrProviderUnavailable indicates the node is unavailable
	ErrProviderUnavailable = fmt.Errorf("contract provider unavailable")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Network string
	Op      string // Contract method that failed (e.g., "getRewardRate")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("contract adapter error [%s:%s]: %v (details: %+v)", e.Network, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("contract adapter error [%s:%s]: %v", e.Network, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(network, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Network: network,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
