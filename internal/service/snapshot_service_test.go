package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sats-staker/internal/adapter"
	apperrors "github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/storage"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

const testAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

func newTestMock(mutate func(cfg *adapter.MockConfig)) *adapter.MockContract {
	cfg := adapter.DefaultMockConfig()
	cfg.BlockInterval = 0
	cfg.Logger = logging.Nop()
	if mutate != nil {
		mutate(cfg)
	}
	return adapter.NewMockContract(cfg)
}

func newTestSnapshotService(reader adapter.ContractReader, mutate func(cfg *SnapshotServiceConfig)) *SnapshotService {
	cfg := SnapshotServiceConfig{
		Logger: logging.Nop(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewSnapshotService(reader, cfg)
}

func session() wallet.Session {
	return wallet.NewSession(testAddress, nil)
}

func TestRefreshAssemblesSnapshot(t *testing.T) {
	svc := newTestSnapshotService(newTestMock(nil), nil)

	view, err := svc.Refresh(context.Background(), session())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.False(t, view.Stale)
	assert.NoError(t, view.LastError)

	snap := view.Snapshot
	assert.Equal(t, testAddress, snap.Address)
	assert.EqualValues(t, 50_000_000, snap.StakedAmount)
	assert.EqualValues(t, 1000, snap.StakedAt)
	assert.EqualValues(t, 2_500_000, snap.AvailableRewards)
	assert.EqualValues(t, 100_000_000, snap.WalletBalance)
	assert.EqualValues(t, 50, snap.RewardRate)
	assert.EqualValues(t, 500_000_000_000, snap.TotalStaked)
	assert.EqualValues(t, 100_000_000_000, snap.RewardPool)
	assert.EqualValues(t, 1440, snap.MinStakePeriod)
	assert.Empty(t, snap.DefaultedFields)

	current, ok := svc.Current(testAddress)
	require.True(t, ok)
	assert.Same(t, view, current)
}

func TestRefreshRejectsMissingAddress(t *testing.T) {
	m := newTestMock(nil)
	svc := newTestSnapshotService(m, nil)

	view, err := svc.Refresh(context.Background(), wallet.NewSession("  ", nil))
	assert.Nil(t, view)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	assert.Zero(t, m.CallCount(adapter.MethodGetStakeInfo))
	assert.Zero(t, m.CallCount(adapter.MethodGetRewardRate))
}

func TestRefreshNoStake(t *testing.T) {
	m := newTestMock(func(cfg *adapter.MockConfig) { cfg.StakedAmount = 0; cfg.StakedAt = 0 })
	svc := newTestSnapshotService(m, nil)

	view, err := svc.Refresh(context.Background(), session())
	require.NoError(t, err)
	assert.Zero(t, view.Snapshot.StakedAmount)
	assert.Zero(t, view.Snapshot.StakedAt)
}

func TestRefreshFirstLoadFailure(t *testing.T) {
	m := newTestMock(nil)
	m.SetFailure(adapter.MethodGetRewardRate, errors.New("node down"))
	svc := newTestSnapshotService(m, nil)

	view, err := svc.Refresh(context.Background(), session())
	assert.Nil(t, view)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)

	_, ok := svc.Current(testAddress)
	assert.False(t, ok)
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	m := newTestMock(nil)
	svc := newTestSnapshotService(m, nil)
	ctx := context.Background()

	first, err := svc.Refresh(ctx, session())
	require.NoError(t, err)

	m.SetFailure(adapter.MethodGetTotalStaked, errors.New("node down"))
	m.SetRewards(testAddress, 9_999)

	view, err := svc.Refresh(ctx, session())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	require.NotNil(t, view)
	assert.True(t, view.Stale)
	assert.Same(t, first.Snapshot, view.Snapshot)
	assert.EqualValues(t, 2_500_000, view.Snapshot.AvailableRewards)
	assert.ErrorIs(t, view.LastError, apperrors.ErrDataUnavailable)

	current, _ := svc.Current(testAddress)
	assert.True(t, current.Stale)

	m.SetFailure(adapter.MethodGetTotalStaked, nil)
	view, err = svc.Refresh(ctx, session())
	require.NoError(t, err)
	assert.False(t, view.Stale)
	assert.EqualValues(t, 9_999, view.Snapshot.AvailableRewards)
}

func TestRefreshPerFieldDefault(t *testing.T) {
	m := newTestMock(nil)
	m.SetFailure(adapter.MethodGetRewardRate, errors.New("node down"))
	m.SetFailure(adapter.MethodGetMinStakePeriod, errors.New("node down"))
	svc := newTestSnapshotService(m, func(cfg *SnapshotServiceConfig) { cfg.Policy = PolicyPerFieldDefault })

	view, err := svc.Refresh(context.Background(), session())
	require.NoError(t, err)
	assert.False(t, view.Stale)

	snap := view.Snapshot
	assert.Equal(t, DefaultRewardRate, snap.RewardRate)
	assert.Equal(t, DefaultMinStakePeriod, snap.MinStakePeriod)
	assert.EqualValues(t, 50_000_000, snap.StakedAmount)
	assert.ElementsMatch(t, []string{FieldRewardRate, FieldMinStakePeriod}, snap.DefaultedFields)
	assert.True(t, snap.IsDefaulted(FieldRewardRate))
	assert.False(t, snap.IsDefaulted(FieldTotalStaked))
}

func TestRefreshPerFieldDefaultStakeInfo(t *testing.T) {
	m := newTestMock(nil)
	m.SetFailure(adapter.MethodGetStakeInfo, errors.New("node down"))
	svc := newTestSnapshotService(m, func(cfg *SnapshotServiceConfig) { cfg.Policy = PolicyPerFieldDefault })

	view, err := svc.Refresh(context.Background(), session())
	require.NoError(t, err)
	assert.Zero(t, view.Snapshot.StakedAmount)
	assert.Zero(t, view.Snapshot.StakedAt)
	assert.Equal(t, []string{FieldStakeInfo}, view.Snapshot.DefaultedFields)
}

func TestRefreshPerFieldDefaultAllFailed(t *testing.T) {
	m := newTestMock(nil)
	for _, method := range []string{
		adapter.MethodGetStakeInfo, adapter.MethodCalculateRewards, adapter.MethodGetRewardRate,
		adapter.MethodGetTotalStaked, adapter.MethodGetRewardPool, adapter.MethodGetMinStakePeriod,
		adapter.MethodBalanceOf,
	} {
		m.SetFailure(method, errors.New("node down"))
	}
	svc := newTestSnapshotService(m, func(cfg *SnapshotServiceConfig) { cfg.Policy = PolicyPerFieldDefault })

	view, err := svc.Refresh(context.Background(), session())
	assert.Nil(t, view)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}

func TestRefreshRejectsInconsistentSnapshot(t *testing.T) {
	m := newTestMock(func(cfg *adapter.MockConfig) { cfg.TotalStaked = 1 })
	svc := newTestSnapshotService(m, nil)

	view, err := svc.Refresh(context.Background(), session())
	assert.Nil(t, view)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "exceeds totalStaked")
}

// gatedReader blocks the first GetTotalStaked call until released
type gatedReader struct {
	*adapter.MockContract
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReader) GetTotalStaked(ctx context.Context) (types.Amount, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
		return 600_000_000_000, nil
	}
	return g.MockContract.GetTotalStaked(ctx)
}

func TestRefreshDropsSupersededResult(t *testing.T) {
	g := &gatedReader{
		MockContract: newTestMock(nil),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := newTestSnapshotService(g, nil)
	ctx := context.Background()

	type result struct {
		view *StakeView
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		v, err := svc.Refresh(ctx, session())
		slow <- result{v, err}
	}()
	<-g.entered

	fast, err := svc.Refresh(ctx, session())
	require.NoError(t, err)
	assert.EqualValues(t, 500_000_000_000, fast.Snapshot.TotalStaked)

	close(g.release)
	r := <-slow
	require.NoError(t, r.err)
	assert.Same(t, fast, r.view)

	current, _ := svc.Current(testAddress)
	assert.EqualValues(t, 500_000_000_000, current.Snapshot.TotalStaked)
}

func TestRefreshTimeout(t *testing.T) {
	m := newTestMock(func(cfg *adapter.MockConfig) { cfg.Latency = time.Second })
	svc := newTestSnapshotService(m, func(cfg *SnapshotServiceConfig) { cfg.RefreshTimeout = 10 * time.Millisecond })

	start := time.Now()
	_, err := svc.Refresh(context.Background(), session())
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRefreshWritesThroughAndWarmStarts(t *testing.T) {
	store := storage.NewMemorySnapshotStore()
	ctx := context.Background()

	svc := newTestSnapshotService(newTestMock(nil), func(cfg *SnapshotServiceConfig) { cfg.Store = store })
	_, err := svc.Refresh(ctx, session())
	require.NoError(t, err)

	stored, err := store.Load(ctx, testAddress)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.EqualValues(t, 50_000_000, stored.StakedAmount)

	// A restarted service with a failing node falls back to the stored snapshot
	failing := newTestMock(nil)
	failing.SetFailure(adapter.MethodGetRewardPool, errors.New("node down"))
	restarted := newTestSnapshotService(failing, func(cfg *SnapshotServiceConfig) { cfg.Store = store })

	view, err := restarted.Refresh(ctx, session())
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	require.NotNil(t, view)
	assert.True(t, view.Stale)
	assert.EqualValues(t, 50_000_000, view.Snapshot.StakedAmount)
}

func TestRefreshWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := storage.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })
	store := storage.NewRedisSnapshotStore(cache, time.Hour)

	svc := newTestSnapshotService(newTestMock(nil), func(cfg *SnapshotServiceConfig) { cfg.Store = store })
	_, err := svc.Refresh(context.Background(), session())
	require.NoError(t, err)
	assert.True(t, mr.Exists(storage.GenerateSnapshotKey(testAddress)))

	// Store outages do not fail the refresh
	mr.Close()
	_, err = svc.Refresh(context.Background(), session())
	assert.NoError(t, err)
}

func TestParseFallbackPolicy(t *testing.T) {
	assert.Equal(t, PolicyPerFieldDefault, ParseFallbackPolicy(" PER_FIELD_DEFAULT "))
	assert.Equal(t, PolicyAllOrNothing, ParseFallbackPolicy("all_or_nothing"))
	assert.Equal(t, PolicyAllOrNothing, ParseFallbackPolicy("whatever"))

	svc := NewSnapshotService(newTestMock(nil), SnapshotServiceConfig{Logger: logging.Nop()})
	assert.Equal(t, PolicyAllOrNothing, svc.Policy())
}
