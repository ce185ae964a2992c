package service

import (
	"math"
	"time"

	"github.com/sats-staker/internal/types"
)

// BlocksPerDay is the approximate number of blocks mined per day
const BlocksPerDay = 144

// StakeView is what consumers observe for one address: the latest good snapshot
// plus whether it is stale. Views are immutable once published.
type StakeView struct {
	Snapshot  *types.StakeSnapshot
	Stale     bool
	LastError error
	UpdatedAt time.Time
}

// Derived returns the values computed from the view's snapshot
func (v *StakeView) Derived() Derived {
	if v == nil {
		return Derived{}
	}
	return Derive(v.Snapshot)
}

// Derived holds display values computed from a snapshot. They are never stored.
type Derived struct {
	StakePercentage    float64      `json:"stakePercentage"`
	EstimatedAPY       float64      `json:"estimatedApy"`
	OthersStaked       types.Amount `json:"othersStaked"`
	MinStakePeriodDays int64        `json:"minStakePeriodDays"`
	UnlockHeight       int64        `json:"unlockHeight"`
}

// Derive computes the display values for a snapshot
func Derive(snap *types.StakeSnapshot) Derived {
	if snap == nil {
		return Derived{}
	}
	d := Derived{
		StakePercentage:    StakePercentage(snap.StakedAmount, snap.TotalStaked),
		EstimatedAPY:       snap.RewardRate.Percent(),
		OthersStaked:       OthersStaked(snap.StakedAmount, snap.TotalStaked),
		MinStakePeriodDays: MinStakePeriodDays(snap.MinStakePeriod),
	}
	if snap.StakedAmount > 0 {
		d.UnlockHeight = snap.StakedAt + snap.MinStakePeriod
	}
	return d
}

// StakePercentage is the address's share of the protocol total, in [0, 100]
func StakePercentage(staked, total types.Amount) float64 {
	if total <= 0 || staked <= 0 {
		return 0
	}
	pct := float64(staked) / float64(total) * 100
	return math.Min(pct, 100)
}

// OthersStaked is the part of the protocol total held by other stakers
func OthersStaked(staked, total types.Amount) types.Amount {
	if others := total - staked; others > 0 {
		return others
	}
	return 0
}

// MinStakePeriodDays converts a block count to whole days
func MinStakePeriodDays(blocks int64) int64 {
	if blocks <= 0 {
		return 0
	}
	return int64(math.Round(float64(blocks) / BlocksPerDay))
}
