package adapter

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

var evmAddressPattern = regexp.MustCompile("^0x[a-fA-F0-9]{40}$")

// EVMStakingContract implements StakingContract against a staking contract on an EVM chain.
// Reads go through eth_call; writes are ABI-encoded and handed to the session's wallet.
type EVMStakingContract struct {
	network  string
	staking  common.Address
	token    common.Address
	caller   ethereum.ContractCaller
	simulate bool
	logger   *logging.Logger
}

// EVMContractConfig holds configuration for creating an EVMStakingContract
type EVMContractConfig struct {
	// Network names the deployment in logs and errors
	Network string

	// StakingAddress is the staking contract address. Required.
	StakingAddress string

	// TokenAddress is the ERC-20 token being staked. Required.
	TokenAddress string

	// Caller executes eth_call. *ethclient.Client and *RPCPool both satisfy it. Required.
	Caller ethereum.ContractCaller

	// Simulate dry-runs each write with eth_call from the user's address before
	// asking the wallet to confirm, so contract reverts surface without a prompt.
	Simulate bool

	Logger *logging.Logger
}

// NewEVMStakingContract creates a staking contract client
func NewEVMStakingContract(cfg *EVMContractConfig) (*EVMStakingContract, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if !evmAddressPattern.MatchString(cfg.StakingAddress) {
		return nil, fmt.Errorf("invalid staking contract address %q", cfg.StakingAddress)
	}
	if !evmAddressPattern.MatchString(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token contract address %q", cfg.TokenAddress)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &EVMStakingContract{
		network:  cfg.Network,
		staking:  common.HexToAddress(cfg.StakingAddress),
		token:    common.HexToAddress(cfg.TokenAddress),
		caller:   cfg.Caller,
		simulate: cfg.Simulate,
		logger:   logger.WithFields(map[string]interface{}{"network": cfg.Network, "contract": cfg.StakingAddress}),
	}, nil
}

// ValidateAddress checks if address format is valid for an EVM chain
func (c *EVMStakingContract) ValidateAddress(address string) bool {
	// 0x followed by 40 hex characters
	return evmAddressPattern.MatchString(address)
}

// GetStakeInfo returns the stake position; a zero position is reported as no stake
func (c *EVMStakingContract) GetStakeInfo(ctx context.Context, address string) (*StakeInfo, error) {
	user, err := c.address(MethodGetStakeInfo, address)
	if err != nil {
		return nil, err
	}

	out, err := c.call(ctx, StakingABI, c.staking, MethodGetStakeInfo, user)
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, c.unexpected(MethodGetStakeInfo, out)
	}

	amount, err := c.uint64Value(MethodGetStakeInfo, out[0])
	if err != nil {
		return nil, err
	}
	stakedAt, err := c.uint64Value(MethodGetStakeInfo, out[1])
	if err != nil {
		return nil, err
	}
	if amount == 0 && stakedAt == 0 {
		return nil, nil
	}

	return &StakeInfo{Amount: types.Amount(amount), StakedAt: stakedAt}, nil
}

// CalculateRewards returns the claimable rewards of an address
func (c *EVMStakingContract) CalculateRewards(ctx context.Context, address string) (types.Amount, error) {
	user, err := c.address(MethodCalculateRewards, address)
	if err != nil {
		return 0, err
	}
	v, err := c.callUint(ctx, StakingABI, c.staking, MethodCalculateRewards, user)
	return types.Amount(v), err
}

// GetRewardRate returns the raw reward rate
func (c *EVMStakingContract) GetRewardRate(ctx context.Context) (types.RewardRate, error) {
	v, err := c.callUint(ctx, StakingABI, c.staking, MethodGetRewardRate)
	return types.RewardRate(v), err
}

// GetTotalStaked returns the protocol-wide stake
func (c *EVMStakingContract) GetTotalStaked(ctx context.Context) (types.Amount, error) {
	v, err := c.callUint(ctx, StakingABI, c.staking, MethodGetTotalStaked)
	return types.Amount(v), err
}

// GetRewardPool returns the remaining reward pool
func (c *EVMStakingContract) GetRewardPool(ctx context.Context) (types.Amount, error) {
	v, err := c.callUint(ctx, StakingABI, c.staking, MethodGetRewardPool)
	return types.Amount(v), err
}

// GetMinStakePeriod returns the minimum stake age in blocks
func (c *EVMStakingContract) GetMinStakePeriod(ctx context.Context) (int64, error) {
	return c.callUint(ctx, StakingABI, c.staking, MethodGetMinStakePeriod)
}

// GetTokenBalance returns the ERC-20 balance of the staked token
func (c *EVMStakingContract) GetTokenBalance(ctx context.Context, address string) (types.Amount, error) {
	user, err := c.address(MethodBalanceOf, address)
	if err != nil {
		return 0, err
	}
	v, err := c.callUint(ctx, ERC20ABI, c.token, MethodBalanceOf, user)
	return types.Amount(v), err
}

// Stake submits a stake call
func (c *EVMStakingContract) Stake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error) {
	return c.submitAmount(ctx, session, MethodStake, amount)
}

// Unstake submits an unstake call
func (c *EVMStakingContract) Unstake(ctx context.Context, session wallet.Session, amount types.Amount) (*TxReceipt, error) {
	return c.submitAmount(ctx, session, MethodUnstake, amount)
}

// ClaimRewards submits a claim call
func (c *EVMStakingContract) ClaimRewards(ctx context.Context, session wallet.Session) (*TxReceipt, error) {
	return c.submit(ctx, session, MethodClaimRewards, nil)
}

func (c *EVMStakingContract) submitAmount(ctx context.Context, session wallet.Session, method string, amount types.Amount) (*TxReceipt, error) {
	if amount <= 0 {
		return nil, NewAdapterError(c.network, method, fmt.Errorf("amount must be positive"), map[string]interface{}{
			"amount": int64(amount),
		})
	}
	return c.submit(ctx, session, method, []interface{}{big.NewInt(int64(amount))}, strconv.FormatInt(int64(amount), 10))
}

func (c *EVMStakingContract) submit(ctx context.Context, session wallet.Session, method string, args []interface{}, rendered ...string) (*TxReceipt, error) {
	if !session.CanSign() {
		return nil, NewAdapterError(c.network, method, wallet.ErrNotConnected, nil)
	}
	from, err := c.address(method, session.Address)
	if err != nil {
		return nil, err
	}

	data, err := StakingABI.Pack(method, args...)
	if err != nil {
		return nil, NewAdapterError(c.network, method, fmt.Errorf("failed to pack call: %w", err), nil)
	}

	if c.simulate {
		if _, err := c.caller.CallContract(ctx, ethereum.CallMsg{From: from, To: &c.staking, Data: data}, nil); err != nil {
			c.logger.WithError(err).WithField("method", method).Warn("Write simulation reverted")
			return nil, NewAdapterError(c.network, method, err, map[string]interface{}{"simulated": true})
		}
	}

	txID, err := session.Wallet.SubmitCall(ctx, wallet.Call{
		Contract:     c.staking.Hex(),
		FunctionName: method,
		Data:         data,
		Args:         rendered,
	})
	if err != nil {
		return nil, NewAdapterError(c.network, method, err, map[string]interface{}{
			"address": session.Address,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"method":  method,
		"address": session.Address,
		"txId":    txID,
	}).Info("Contract call confirmed by wallet")

	return &TxReceipt{TxID: txID}, nil
}

func (c *EVMStakingContract) address(method, address string) (common.Address, error) {
	if !c.ValidateAddress(address) {
		return common.Address{}, NewAdapterError(c.network, method, ErrInvalidAddress, map[string]interface{}{
			"address": address,
		})
	}
	return common.HexToAddress(address), nil
}

func (c *EVMStakingContract) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, NewAdapterError(c.network, method, fmt.Errorf("failed to pack call: %w", err), nil)
	}

	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, NewAdapterError(c.network, method, err, nil)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, NewAdapterError(c.network, method, fmt.Errorf("%w: %v", ErrUnexpectedResult, err), nil)
	}
	return out, nil
}

func (c *EVMStakingContract) callUint(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) (int64, error) {
	out, err := c.call(ctx, contractABI, to, method, args...)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, c.unexpected(method, out)
	}
	return c.uint64Value(method, out[0])
}

// uint64Value narrows a uint256 result to int64; larger values cannot be valid amounts
func (c *EVMStakingContract) uint64Value(method string, v interface{}) (int64, error) {
	b, ok := v.(*big.Int)
	if !ok || b.Sign() < 0 || !b.IsInt64() {
		return 0, c.unexpected(method, v)
	}
	return b.Int64(), nil
}

func (c *EVMStakingContract) unexpected(method string, v interface{}) error {
	return NewAdapterError(c.network, method, ErrUnexpectedResult, map[string]interface{}{
		"value": fmt.Sprintf("%v", v),
	})
}
