package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/sats-staker/internal/types"
)

func TestDeriveDemoSnapshot(t *testing.T) {
	snap := &types.StakeSnapshot{
		StakedAmount:   50_000_000,
		StakedAt:       1000,
		RewardRate:     50,
		TotalStaked:    500_000_000_000,
		MinStakePeriod: 1440,
	}

	d := Derive(snap)
	assert.InDelta(t, 0.01, d.StakePercentage, 1e-12)
	assert.InDelta(t, 5.0, d.EstimatedAPY, 1e-12)
	assert.EqualValues(t, 499_950_000_000, d.OthersStaked)
	assert.EqualValues(t, 10, d.MinStakePeriodDays)
	assert.EqualValues(t, 2440, d.UnlockHeight)
}

func TestDeriveEdgeCases(t *testing.T) {
	assert.Equal(t, Derived{}, Derive(nil))
	var view *StakeView
	assert.Equal(t, Derived{}, view.Derived())

	assert.Zero(t, StakePercentage(10, 0))
	assert.Zero(t, StakePercentage(0, 10))
	assert.Equal(t, 100.0, StakePercentage(10, 10))
	assert.Zero(t, OthersStaked(10, 5))
	assert.Zero(t, MinStakePeriodDays(0))
	assert.EqualValues(t, 1, MinStakePeriodDays(100))

	d := Derive(&types.StakeSnapshot{TotalStaked: 10, MinStakePeriod: 1440})
	assert.Zero(t, d.UnlockHeight)
}

func TestStakePercentageBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("stake percentage stays within [0, 100]", prop.ForAll(
		func(staked, total int64) bool {
			pct := StakePercentage(types.Amount(staked), types.Amount(total))
			return pct >= 0 && pct <= 100
		},
		gen.Int64Range(-1_000_000, 1_000_000_000_000),
		gen.Int64Range(-1_000_000, 1_000_000_000_000),
	))

	properties.Property("own and others' stake add up to the total", prop.ForAll(
		func(staked, extra int64) bool {
			total := types.Amount(staked + extra)
			return OthersStaked(types.Amount(staked), total)+types.Amount(staked) == total
		},
		gen.Int64Range(0, 1_000_000_000_000),
		gen.Int64Range(0, 1_000_000_000_000),
	))

	properties.TestingRun(t)
}
