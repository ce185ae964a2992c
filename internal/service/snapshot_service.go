// Package service holds the stake-state view model, the refresh scheduler
// and the action workflow built on top of the contract adapter.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sats-staker/internal/adapter"
	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/storage"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// FallbackPolicy decides what a refresh does when some reads fail
type FallbackPolicy string

const (
	// PolicyAllOrNothing fails the whole refresh on any read failure
	PolicyAllOrNothing FallbackPolicy = "all_or_nothing"
	// PolicyPerFieldDefault substitutes a default for each failed field
	PolicyPerFieldDefault FallbackPolicy = "per_field_default"
)

// ParseFallbackPolicy parses a policy name. Unknown names map to PolicyAllOrNothing.
func ParseFallbackPolicy(s string) FallbackPolicy {
	if FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) == PolicyPerFieldDefault {
		return PolicyPerFieldDefault
	}
	return PolicyAllOrNothing
}

// Snapshot field names, as listed in StakeSnapshot.DefaultedFields
const (
	FieldStakeInfo        = "stakeInfo"
	FieldAvailableRewards = "availableRewards"
	FieldRewardRate       = "rewardRate"
	FieldTotalStaked      = "totalStaked"
	FieldRewardPool       = "rewardPool"
	FieldMinStakePeriod   = "minStakePeriod"
	FieldWalletBalance    = "walletBalance"
)

// Defaults used by PolicyPerFieldDefault
const (
	DefaultRewardRate     types.RewardRate = 5
	DefaultMinStakePeriod int64            = 1440
)

// SnapshotServiceConfig holds configuration for the snapshot service
type SnapshotServiceConfig struct {
	Policy         FallbackPolicy
	Store          storage.SnapshotStore // Optional
	RefreshTimeout time.Duration         // Zero means the caller's deadline only
	Logger         *logging.Logger
	Now            func() time.Time
}

// SnapshotService reads the staking state of an address and keeps the latest view per address
type SnapshotService struct {
	reader  adapter.ContractReader
	store   storage.SnapshotStore
	policy  FallbackPolicy
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time

	seq     atomic.Uint64
	mu      sync.RWMutex
	entries map[string]*viewEntry
}

type viewEntry struct {
	view *StakeView
	seq  uint64
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(reader adapter.ContractReader, cfg SnapshotServiceConfig) *SnapshotService {
	if cfg.Policy == "" {
		cfg.Policy = PolicyAllOrNothing
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SnapshotService{
		reader:  reader,
		store:   cfg.Store,
		policy:  cfg.Policy,
		timeout: cfg.RefreshTimeout,
		logger:  cfg.Logger.WithField("component", "snapshot_service"),
		now:     cfg.Now,
		entries: make(map[string]*viewEntry),
	}
}

// Policy returns the configured fallback policy
func (s *SnapshotService) Policy() FallbackPolicy {
	return s.policy
}

// Refresh reads the full staking state for the session's address and publishes it.
// On failure the previous snapshot, if any, is returned marked stale together with the error.
// On a first load with nothing to fall back to, only the error is returned.
func (s *SnapshotService) Refresh(ctx context.Context, session wallet.Session) (*StakeView, error) {
	address := session.Address
	if !session.Connected() || !s.reader.ValidateAddress(address) {
		return nil, errors.NewDataUnavailableError(address, adapter.ErrInvalidAddress)
	}

	seq := s.seq.Add(1)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap, err := s.fetch(ctx, address)
	if err == nil {
		if verr := snap.Validate(); verr != nil {
			err = fmt.Errorf("inconsistent snapshot: %w", verr)
		}
	}
	if err != nil {
		return s.fail(ctx, address, seq, errors.NewDataUnavailableError(address, err))
	}

	return s.publish(ctx, snap, seq), nil
}

// Current returns the latest view for an address
func (s *SnapshotService) Current(address string) (*StakeView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[storage.GenerateSnapshotKey(address)]
	if !ok {
		return nil, false
	}
	return e.view, true
}

// publish replaces the address's view unless a newer refresh already landed
func (s *SnapshotService) publish(ctx context.Context, snap *types.StakeSnapshot, seq uint64) *StakeView {
	key := storage.GenerateSnapshotKey(snap.Address)
	view := &StakeView{Snapshot: snap, UpdatedAt: snap.FetchedAt}

	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.seq > seq {
		current := e.view
		s.mu.Unlock()
		s.logger.WithFields(map[string]interface{}{
			"address": snap.Address,
			"seq":     seq,
			"applied": e.seq,
		}).Debug("Dropping superseded refresh")
		return current
	}
	s.entries[key] = &viewEntry{view: view, seq: seq}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, snap); err != nil {
			s.logger.WithError(err).WithField("address", snap.Address).Warn("Failed to store snapshot")
		}
	}
	return view
}

// fail marks the previous view stale, falling back to the store for the previous snapshot
func (s *SnapshotService) fail(ctx context.Context, address string, seq uint64, cause error) (*StakeView, error) {
	key := storage.GenerateSnapshotKey(address)
	log := s.logger.WithError(cause).WithField("address", address)

	s.mu.RLock()
	_, known := s.entries[key]
	s.mu.RUnlock()

	var stored *types.StakeSnapshot
	if !known && s.store != nil {
		var err error
		stored, err = s.store.Load(context.WithoutCancel(ctx), address)
		if err != nil {
			log.WithField("store_error", err.Error()).Warn("Failed to load stored snapshot")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		if stored == nil {
			log.Warn("First load failed")
			return nil, cause
		}
		e = &viewEntry{view: &StakeView{Snapshot: stored, UpdatedAt: stored.FetchedAt}}
		s.entries[key] = e
	}
	if e.seq > seq {
		// A newer refresh already published
		return e.view, cause
	}

	stale := &StakeView{
		Snapshot:  e.view.Snapshot,
		Stale:     true,
		LastError: cause,
		UpdatedAt: e.view.UpdatedAt,
	}
	e.view = stale
	e.seq = seq
	log.Warn("Refresh failed, keeping previous snapshot")
	return stale, cause
}

type fieldRead struct {
	name     string
	read     func(ctx context.Context) error
	fallback func()
}

// fetch issues the seven reads concurrently and assembles a snapshot
func (s *SnapshotService) fetch(ctx context.Context, address string) (*types.StakeSnapshot, error) {
	snap := &types.StakeSnapshot{Address: address}
	r := s.reader

	// Each read writes a distinct field of snap
	reads := []fieldRead{
		{FieldStakeInfo, func(ctx context.Context) error {
			info, err := r.GetStakeInfo(ctx, address)
			if err != nil {
				return err
			}
			if info != nil {
				snap.StakedAmount = info.Amount
				snap.StakedAt = info.StakedAt
			}
			return nil
		}, func() { snap.StakedAmount, snap.StakedAt = 0, 0 }},
		{FieldAvailableRewards, func(ctx context.Context) (err error) {
			snap.AvailableRewards, err = r.CalculateRewards(ctx, address)
			return err
		}, func() { snap.AvailableRewards = 0 }},
		{FieldRewardRate, func(ctx context.Context) (err error) {
			snap.RewardRate, err = r.GetRewardRate(ctx)
			return err
		}, func() { snap.RewardRate = DefaultRewardRate }},
		{FieldTotalStaked, func(ctx context.Context) (err error) {
			snap.TotalStaked, err = r.GetTotalStaked(ctx)
			return err
		}, func() { snap.TotalStaked = 0 }},
		{FieldRewardPool, func(ctx context.Context) (err error) {
			snap.RewardPool, err = r.GetRewardPool(ctx)
			return err
		}, func() { snap.RewardPool = 0 }},
		{FieldMinStakePeriod, func(ctx context.Context) (err error) {
			snap.MinStakePeriod, err = r.GetMinStakePeriod(ctx)
			return err
		}, func() { snap.MinStakePeriod = DefaultMinStakePeriod }},
		{FieldWalletBalance, func(ctx context.Context) (err error) {
			snap.WalletBalance, err = r.GetTokenBalance(ctx, address)
			return err
		}, func() { snap.WalletBalance = 0 }},
	}

	if s.policy == PolicyAllOrNothing {
		g, gctx := errgroup.WithContext(ctx)
		for _, fr := range reads {
			g.Go(func() error {
				if err := fr.read(gctx); err != nil {
					return fmt.Errorf("%s: %w", fr.name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		errs := make([]error, len(reads))
		var g errgroup.Group
		for i, fr := range reads {
			g.Go(func() error {
				errs[i] = fr.read(ctx)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var failed int
		for i, fr := range reads {
			if errs[i] == nil {
				continue
			}
			failed++
			fr.fallback()
			snap.DefaultedFields = append(snap.DefaultedFields, fr.name)
			s.logger.WithError(errs[i]).WithFields(map[string]interface{}{
				"address": address,
				"field":   fr.name,
			}).Warn("Read failed, using default")
		}
		if failed == len(reads) {
			return nil, fmt.Errorf("all reads failed: %w", errs[0])
		}
	}

	snap.FetchedAt = s.now()
	return snap, nil
}
