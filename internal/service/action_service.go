package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sats-staker/internal/adapter"
	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/storage"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// ViewSource supplies the snapshot actions are validated against
type ViewSource interface {
	Current(address string) (*StakeView, bool)
	Refresh(ctx context.Context, session wallet.Session) (*StakeView, error)
}

// RefreshTrigger schedules a refresh after a confirmed write
type RefreshTrigger interface {
	TriggerAfter(address string, d time.Duration)
}

// ActionRecord is the observable state of one submitted action
type ActionRecord struct {
	ID          string             `json:"id"`
	Kind        types.ActionKind   `json:"kind"`
	Address     string             `json:"address"`
	Amount      types.Amount       `json:"amount"`
	Status      types.ActionStatus `json:"status"`
	TxID        string             `json:"txId,omitempty"`
	Err         error              `json:"-"`
	SubmittedAt time.Time          `json:"submittedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// Done reports whether the action has completed
func (r *ActionRecord) Done() bool {
	return r.Status != types.ActionPending
}

// DefaultActionRetention is how long completed actions stay queryable
const DefaultActionRetention = time.Hour

// ActionServiceConfig holds configuration for the action service
type ActionServiceConfig struct {
	SettleDelay      time.Duration
	MinPeriodMarkers []string
	Retention        time.Duration // Default: DefaultActionRetention
	Logger           *logging.Logger
	Now              func() time.Time
}

// ActionService validates and submits stake, unstake and claim actions
type ActionService struct {
	writer    adapter.ContractWriter
	views     ViewSource
	trigger   RefreshTrigger
	settle    time.Duration
	retention time.Duration
	markers   []string
	logger    *logging.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	actions  map[string]*action
	inFlight map[string]string // address key -> action id
}

type action struct {
	record ActionRecord
	done   chan struct{}
}

// NewActionService creates a new action service. Writes run under a context owned by the service.
func NewActionService(writer adapter.ContractWriter, views ViewSource, trigger RefreshTrigger, cfg ActionServiceConfig) *ActionService {
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultActionRetention
	}
	markers := make([]string, 0, len(cfg.MinPeriodMarkers))
	for _, m := range cfg.MinPeriodMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ActionService{
		writer:   writer,
		views:    views,
		trigger:  trigger,
		settle:    cfg.SettleDelay,
		retention: cfg.Retention,
		markers:   markers,
		logger:    cfg.Logger.WithField("component", "action_service"),
		now:       cfg.Now,
		ctx:       ctx,
		cancel:    cancel,
		actions:   make(map[string]*action),
		inFlight:  make(map[string]string),
	}
}

// Stake submits a stake of amount atomic units
func (s *ActionService) Stake(ctx context.Context, session wallet.Session, amount types.Amount) (*ActionRecord, error) {
	return s.Submit(ctx, session, types.ActionStake, amount)
}

// Unstake submits an unstake of amount atomic units
func (s *ActionService) Unstake(ctx context.Context, session wallet.Session, amount types.Amount) (*ActionRecord, error) {
	return s.Submit(ctx, session, types.ActionUnstake, amount)
}

// Claim submits a claim of all available rewards
func (s *ActionService) Claim(ctx context.Context, session wallet.Session) (*ActionRecord, error) {
	return s.Submit(ctx, session, types.ActionClaim, 0)
}

// Submit validates an action against the latest snapshot and starts the write in the background.
// The returned record is pending; use Await or Get to observe completion.
func (s *ActionService) Submit(ctx context.Context, session wallet.Session, kind types.ActionKind, amount types.Amount) (*ActionRecord, error) {
	if !session.CanSign() {
		return nil, errors.NewInvalidArgumentError("wallet", wallet.ErrNotConnected.Error())
	}
	key := storage.GenerateSnapshotKey(session.Address)

	if id, busy := s.pending(key); busy {
		return nil, errors.NewActionInProgressError(session.Address, id)
	}

	snap, err := s.snapshot(ctx, session)
	if err != nil {
		return nil, err
	}

	amount, err = validateAction(kind, amount, snap)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if id, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return nil, errors.NewActionInProgressError(session.Address, id)
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, errors.NewServiceUnavailableError("actions")
	}
	s.pruneLocked()
	a := &action{
		record: ActionRecord{
			ID:          uuid.New().String(),
			Kind:        kind,
			Address:     session.Address,
			Amount:      amount,
			Status:      types.ActionPending,
			SubmittedAt: s.now(),
		},
		done: make(chan struct{}),
	}
	s.actions[a.record.ID] = a
	s.inFlight[key] = a.record.ID
	record := a.record
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"action_id": record.ID,
		"kind":      kind,
		"address":   session.Address,
		"amount":    amount,
	}).Info("Action submitted")

	go s.execute(a, key, session)
	return &record, nil
}

// Get returns a copy of an action record
func (s *ActionService) Get(id string) (*ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	a, ok := s.actions[id]
	if !ok {
		return nil, errors.NewNotFoundError("action", id)
	}
	record := a.record
	return &record, nil
}

// Await blocks until the action completes or ctx is done
func (s *ActionService) Await(ctx context.Context, id string) (*ActionRecord, error) {
	s.mu.Lock()
	a, ok := s.actions[id]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError("action", id)
	}

	select {
	case <-a.done:
		return s.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the id of the address's outstanding action
func (s *ActionService) Pending(address string) (string, bool) {
	return s.pending(storage.GenerateSnapshotKey(address))
}

// Close cancels outstanding writes and waits for them to finish
func (s *ActionService) Close() {
	s.cancel()
	s.wg.Wait()
}

// pruneLocked drops completed actions past the retention window. Must be called with the lock held.
func (s *ActionService) pruneLocked() {
	cutoff := s.now().Add(-s.retention)
	for id, a := range s.actions {
		if a.record.CompletedAt != nil && a.record.CompletedAt.Before(cutoff) {
			delete(s.actions, id)
		}
	}
}

func (s *ActionService) pending(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inFlight[key]
	return id, ok
}

// snapshot returns the latest snapshot, refreshing when none is cached
func (s *ActionService) snapshot(ctx context.Context, session wallet.Session) (*types.StakeSnapshot, error) {
	if view, ok := s.views.Current(session.Address); ok && view.Snapshot != nil {
		return view.Snapshot, nil
	}
	view, err := s.views.Refresh(ctx, session)
	if view != nil && view.Snapshot != nil {
		return view.Snapshot, nil
	}
	if err == nil {
		err = errors.NewDataUnavailableError(session.Address, nil)
	}
	return nil, err
}

// validateAction checks an action against a snapshot and returns the effective amount
func validateAction(kind types.ActionKind, amount types.Amount, snap *types.StakeSnapshot) (types.Amount, error) {
	switch kind {
	case types.ActionStake:
		// A non-positive amount is not a stakeable balance either
		if amount <= 0 || amount > snap.WalletBalance {
			return 0, errors.NewInsufficientBalanceError(amount, snap.WalletBalance)
		}
		return amount, nil
	case types.ActionUnstake:
		if amount <= 0 || amount > snap.StakedAmount {
			return 0, errors.NewInsufficientStakeError(amount, snap.StakedAmount)
		}
		return amount, nil
	case types.ActionClaim:
		if snap.AvailableRewards <= 0 {
			return 0, errors.NewNoRewardsAvailableError()
		}
		return snap.AvailableRewards, nil
	default:
		return 0, errors.NewInvalidArgumentError("kind", "unknown action "+string(kind))
	}
}

func (s *ActionService) execute(a *action, key string, session wallet.Session) {
	defer s.wg.Done()

	var (
		receipt *adapter.TxReceipt
		err     error
	)
	switch a.record.Kind {
	case types.ActionStake:
		receipt, err = s.writer.Stake(s.ctx, session, a.record.Amount)
	case types.ActionUnstake:
		receipt, err = s.writer.Unstake(s.ctx, session, a.record.Amount)
	case types.ActionClaim:
		receipt, err = s.writer.ClaimRewards(s.ctx, session)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"action_id": a.record.ID,
		"kind":      a.record.Kind,
		"address":   a.record.Address,
	})
	if err != nil {
		log.WithError(err).Warn("Action failed")
	} else {
		if receipt != nil {
			log = log.WithField("tx_id", receipt.TxID)
		}
		log.Info("Action confirmed")
		// Queue the settle refresh before releasing waiters
		if s.trigger != nil {
			s.trigger.TriggerAfter(session.Address, s.settle)
		}
	}

	completed := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	a.record.CompletedAt = &completed
	if err != nil {
		a.record.Status = types.ActionFailed
		a.record.Err = s.classify(a.record.Kind, err)
	} else {
		a.record.Status = types.ActionSucceeded
		if receipt != nil {
			a.record.TxID = receipt.TxID
		}
	}
	delete(s.inFlight, key)
	close(a.done)
}

// classify maps a writer failure to the error shown to the user
func (s *ActionService) classify(kind types.ActionKind, err error) error {
	if kind == types.ActionUnstake {
		reason := strings.ToLower(err.Error())
		for _, m := range s.markers {
			if strings.Contains(reason, m) {
				return errors.NewMinPeriodNotElapsedError(err)
			}
		}
	}
	return errors.NewActionRejectedError(kind, err)
}
