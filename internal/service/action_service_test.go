package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sats-staker/internal/adapter"
	apperrors "github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

type recordedTrigger struct {
	address string
	delay   time.Duration
}

type fakeTrigger struct {
	mu       sync.Mutex
	triggers []recordedTrigger
}

func (f *fakeTrigger) TriggerAfter(address string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, recordedTrigger{address, d})
}

func (f *fakeTrigger) recorded() []recordedTrigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedTrigger(nil), f.triggers...)
}

// blockingWallet holds every call until released or cancelled
type blockingWallet struct {
	release chan struct{}
}

func (w *blockingWallet) SubmitCall(ctx context.Context, call wallet.Call) (string, error) {
	select {
	case <-w.release:
		return "0xfeed", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type actionFixture struct {
	mock    *adapter.MockContract
	views   *SnapshotService
	trigger *fakeTrigger
	svc     *ActionService
}

func newActionFixture(t *testing.T, mutate func(cfg *adapter.MockConfig)) *actionFixture {
	t.Helper()
	m := newTestMock(mutate)
	views := newTestSnapshotService(m, nil)
	trigger := &fakeTrigger{}
	svc := NewActionService(m, views, trigger, ActionServiceConfig{
		SettleDelay:      3 * time.Second,
		MinPeriodMarkers: []string{"Too early to unstake"},
		Logger:           logging.Nop(),
	})
	t.Cleanup(svc.Close)
	return &actionFixture{mock: m, views: views, trigger: trigger, svc: svc}
}

func await(t *testing.T, svc *ActionService, id string) *ActionRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	record, err := svc.Await(ctx, id)
	require.NoError(t, err)
	return record
}

func TestStakeSucceeds(t *testing.T) {
	f := newActionFixture(t, nil)
	session := wallet.NewSession(testAddress, wallet.NewDevWallet())

	record, err := f.svc.Stake(context.Background(), session, 10_000_000)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, types.ActionStake, record.Kind)
	assert.EqualValues(t, 10_000_000, record.Amount)

	done := await(t, f.svc, record.ID)
	assert.Equal(t, types.ActionSucceeded, done.Status)
	assert.True(t, done.Done())
	assert.NotEmpty(t, done.TxID)
	assert.NoError(t, done.Err)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, []recordedTrigger{{testAddress, 3 * time.Second}}, f.trigger.recorded())
	_, busy := f.svc.Pending(testAddress)
	assert.False(t, busy)

	balance, _ := f.mock.GetTokenBalance(context.Background(), testAddress)
	assert.EqualValues(t, 90_000_000, balance)
}

func TestClaimUsesAvailableRewards(t *testing.T) {
	f := newActionFixture(t, nil)
	session := wallet.NewSession(testAddress, wallet.NewDevWallet())

	record, err := f.svc.Claim(context.Background(), session)
	require.NoError(t, err)
	assert.EqualValues(t, 2_500_000, record.Amount)

	done := await(t, f.svc, record.ID)
	assert.Equal(t, types.ActionSucceeded, done.Status)
}

func TestActionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *adapter.MockConfig)
		kind   types.ActionKind
		amount types.Amount
		want   error
	}{
		{name: "stake zero", kind: types.ActionStake, amount: 0, want: apperrors.ErrInsufficientBalance},
		{name: "stake negative", kind: types.ActionStake, amount: -1, want: apperrors.ErrInsufficientBalance},
		{name: "stake above balance", kind: types.ActionStake, amount: 100_000_001, want: apperrors.ErrInsufficientBalance},
		{name: "unstake zero", kind: types.ActionUnstake, amount: 0, want: apperrors.ErrInsufficientStake},
		{name: "unstake negative", kind: types.ActionUnstake, amount: -5, want: apperrors.ErrInsufficientStake},
		{name: "unstake above stake", kind: types.ActionUnstake, amount: 50_000_001, want: apperrors.ErrInsufficientStake},
		{
			name:   "claim without rewards",
			mutate: func(cfg *adapter.MockConfig) { cfg.Rewards = 0 },
			kind:   types.ActionClaim,
			want:   apperrors.ErrNoRewardsAvailable,
		},
		{name: "unknown kind", kind: types.ActionKind("burn"), amount: 1, want: apperrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newActionFixture(t, tt.mutate)
			w := wallet.NewDevWallet()

			_, err := f.svc.Submit(context.Background(), wallet.NewSession(testAddress, w), tt.kind, tt.amount)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, w.Calls())
			assert.Zero(t, f.mock.CallCount(adapter.MethodStake))
			assert.Zero(t, f.mock.CallCount(adapter.MethodUnstake))
			assert.Zero(t, f.mock.CallCount(adapter.MethodClaimRewards))
		})
	}
}

func TestActionValidationBoundaries(t *testing.T) {
	f := newActionFixture(t, nil)
	session := wallet.NewSession(testAddress, wallet.NewDevWallet())

	// The full wallet balance is stakeable
	record, err := f.svc.Stake(context.Background(), session, 100_000_000)
	require.NoError(t, err)
	await(t, f.svc, record.ID)
}

func TestActionRequiresWallet(t *testing.T) {
	f := newActionFixture(t, nil)

	_, err := f.svc.Stake(context.Background(), wallet.NewSession(testAddress, nil), 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestActionValidatesAgainstCachedSnapshot(t *testing.T) {
	f := newActionFixture(t, nil)
	ctx := context.Background()

	_, err := f.views.Refresh(ctx, session())
	require.NoError(t, err)
	reads := f.mock.CallCount(adapter.MethodGetStakeInfo)

	record, err := f.svc.Unstake(ctx, wallet.NewSession(testAddress, wallet.NewDevWallet()), 1)
	require.NoError(t, err)
	await(t, f.svc, record.ID)
	assert.Equal(t, reads, f.mock.CallCount(adapter.MethodGetStakeInfo))
}

func TestActionDataUnavailable(t *testing.T) {
	f := newActionFixture(t, nil)
	f.mock.SetFailure(adapter.MethodGetRewardPool, assert.AnError)

	_, err := f.svc.Stake(context.Background(), wallet.NewSession(testAddress, wallet.NewDevWallet()), 1)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}

func TestUnstakeBeforeMinPeriodIsClassified(t *testing.T) {
	f := newActionFixture(t, func(cfg *adapter.MockConfig) { cfg.StartHeight = 1000 })

	record, err := f.svc.Unstake(context.Background(), wallet.NewSession(testAddress, wallet.NewDevWallet()), 10_000_000)
	require.NoError(t, err)

	done := await(t, f.svc, record.ID)
	assert.Equal(t, types.ActionFailed, done.Status)
	assert.ErrorIs(t, done.Err, apperrors.ErrMinPeriodNotElapsed)
	assert.Empty(t, f.trigger.recorded())

	msg := apperrors.Categorize(done.Err).Message
	assert.Contains(t, msg, "Minimum staking period")
}

func TestCancelledWalletIsRejected(t *testing.T) {
	f := newActionFixture(t, nil)
	w := wallet.NewDevWallet()
	w.RejectWith(wallet.ErrUserCancelled)

	record, err := f.svc.Stake(context.Background(), wallet.NewSession(testAddress, w), 1)
	require.NoError(t, err)

	done := await(t, f.svc, record.ID)
	assert.Equal(t, types.ActionFailed, done.Status)
	assert.ErrorIs(t, done.Err, apperrors.ErrActionRejected)
	assert.ErrorIs(t, done.Err, wallet.ErrUserCancelled)
	assert.False(t, apperrors.Is(done.Err, apperrors.ErrMinPeriodNotElapsed))
}

func TestOneActionPerAddress(t *testing.T) {
	f := newActionFixture(t, nil)
	w := &blockingWallet{release: make(chan struct{})}
	session := wallet.NewSession(testAddress, w)
	ctx := context.Background()

	first, err := f.svc.Stake(ctx, session, 1)
	require.NoError(t, err)

	id, busy := f.svc.Pending(testAddress)
	assert.True(t, busy)
	assert.Equal(t, first.ID, id)

	_, err = f.svc.Claim(ctx, session)
	assert.ErrorIs(t, err, apperrors.ErrActionInProgress)

	pending, err := f.svc.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionPending, pending.Status)

	close(w.release)
	done := await(t, f.svc, first.ID)
	assert.Equal(t, types.ActionSucceeded, done.Status)
	assert.Equal(t, "0xfeed", done.TxID)

	second, err := f.svc.Claim(ctx, session)
	require.NoError(t, err)
	await(t, f.svc, second.ID)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := newActionFixture(t, nil)
	w := &blockingWallet{release: make(chan struct{})}
	defer close(w.release)

	record, err := f.svc.Stake(context.Background(), wallet.NewSession(testAddress, w), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.svc.Await(ctx, record.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnknownAction(t *testing.T) {
	f := newActionFixture(t, nil)

	_, err := f.svc.Get("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCloseCancelsPendingWrites(t *testing.T) {
	f := newActionFixture(t, nil)
	w := &blockingWallet{release: make(chan struct{})}

	record, err := f.svc.Stake(context.Background(), wallet.NewSession(testAddress, w), 1)
	require.NoError(t, err)

	f.svc.Close()

	done, err := f.svc.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionFailed, done.Status)
	assert.ErrorIs(t, done.Err, apperrors.ErrActionRejected)

	_, err = f.svc.Stake(context.Background(), wallet.NewSession(testAddress, wallet.NewDevWallet()), 1)
	assert.Error(t, err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCompletedActionsExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newTestMock(nil)
	svc := NewActionService(m, newTestSnapshotService(m, nil), &fakeTrigger{}, ActionServiceConfig{
		Retention: 10 * time.Minute,
		Logger:    logging.Nop(),
		Now:       clock.Now,
	})
	t.Cleanup(svc.Close)
	session := wallet.NewSession(testAddress, wallet.NewDevWallet())

	first, err := svc.Stake(context.Background(), session, 1_000_000)
	require.NoError(t, err)
	await(t, svc, first.ID)

	clock.Advance(5 * time.Minute)
	_, err = svc.Get(first.ID)
	require.NoError(t, err, "still inside the retention window")

	second, err := svc.Stake(context.Background(), session, 1_000_000)
	require.NoError(t, err)
	await(t, svc, second.ID)

	clock.Advance(6 * time.Minute)
	_, err = svc.Get(first.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.Get(second.ID)
	assert.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = svc.Get(second.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
