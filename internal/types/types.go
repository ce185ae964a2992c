// Package types provides common type definitions for the sats-staker system.
package types

import (
	"fmt"
	"time"
)

// AtomicUnitsPerDisplayUnit is the number of atomic units in one display unit (satoshi to BTC).
const AtomicUnitsPerDisplayUnit = 100_000_000

// Amount is a count of atomic units of the staked asset.
// Negative values only ever appear as rejected user input.
type Amount int64

// Display converts the amount to display units as a float.
// Use the units package when the result must be exact.
func (a Amount) Display() float64 {
	return float64(a) / AtomicUnitsPerDisplayUnit
}

// RewardRate is the raw rate reported by the staking contract.
type RewardRate int64

// RewardRateDivisor converts a raw RewardRate into an annual percentage.
const RewardRateDivisor = 10

// Percent returns the annual percentage represented by the raw rate (50 -> 5.0%).
func (r RewardRate) Percent() float64 {
	return float64(r) / RewardRateDivisor
}

// StakeSnapshot is an immutable point-in-time view of one address's staking state.
// A refresh builds a new value; published snapshots are never modified.
type StakeSnapshot struct {
	Address          string     `json:"address"`
	StakedAmount     Amount     `json:"stakedAmount"`
	StakedAt         int64      `json:"stakedAt"` // Block height at which the stake began
	AvailableRewards Amount     `json:"availableRewards"`
	WalletBalance    Amount     `json:"walletBalance"` // Stakeable balance not yet staked
	RewardRate       RewardRate `json:"rewardRate"`
	TotalStaked      Amount     `json:"totalStaked"`    // Protocol-wide
	RewardPool       Amount     `json:"rewardPool"`     // Protocol-wide remaining budget
	MinStakePeriod   int64      `json:"minStakePeriod"` // Blocks
	FetchedAt        time.Time  `json:"fetchedAt"`
	DefaultedFields  []string   `json:"defaultedFields,omitempty"` // Fields that fell back to a default value
}

// Validate checks the snapshot invariants.
func (s *StakeSnapshot) Validate() error {
	amounts := []struct {
		name  string
		value Amount
	}{
		{"stakedAmount", s.StakedAmount},
		{"availableRewards", s.AvailableRewards},
		{"walletBalance", s.WalletBalance},
		{"totalStaked", s.TotalStaked},
		{"rewardPool", s.RewardPool},
	}
	for _, a := range amounts {
		if a.value < 0 {
			return fmt.Errorf("%s is negative: %d", a.name, a.value)
		}
	}
	if s.RewardRate < 0 {
		return fmt.Errorf("rewardRate is negative: %d", s.RewardRate)
	}
	if s.MinStakePeriod < 0 {
		return fmt.Errorf("minStakePeriod is negative: %d", s.MinStakePeriod)
	}
	if s.StakedAmount > s.TotalStaked {
		return fmt.Errorf("stakedAmount %d exceeds totalStaked %d", s.StakedAmount, s.TotalStaked)
	}
	return nil
}

// IsDefaulted reports whether the named field fell back to its default value.
func (s *StakeSnapshot) IsDefaulted(field string) bool {
	for _, f := range s.DefaultedFields {
		if f == field {
			return true
		}
	}
	return false
}

// PeriodUnit is the step size of a projection horizon
type PeriodUnit string

const (
	// PeriodDay steps one day per point
	PeriodDay PeriodUnit = "day"
	// PeriodMonth steps one 30-day month per point
	PeriodMonth PeriodUnit = "month"
)

// Valid reports whether the unit is supported
func (u PeriodUnit) Valid() bool {
	return u == PeriodDay || u == PeriodMonth
}

// Horizon is a projection window
type Horizon struct {
	Name  string     `json:"name,omitempty"`
	Unit  PeriodUnit `json:"unit"`
	Count int        `json:"count"`
}

var (
	// HorizonWeek projects seven daily points past day 0
	HorizonWeek = Horizon{Name: "week", Unit: PeriodDay, Count: 7}
	// HorizonMonth projects thirty daily points past day 0
	HorizonMonth = Horizon{Name: "month", Unit: PeriodDay, Count: 30}
	// HorizonYear projects twelve monthly points past month 0
	HorizonYear = Horizon{Name: "year", Unit: PeriodMonth, Count: 12}
)

// DefaultHorizons are the horizons shown on the dashboard.
func DefaultHorizons() []Horizon {
	return []Horizon{HorizonWeek, HorizonMonth, HorizonYear}
}

// HorizonByName looks up one of the default horizons.
func HorizonByName(name string) (Horizon, bool) {
	for _, h := range DefaultHorizons() {
		if h.Name == name {
			return h, true
		}
	}
	return Horizon{}, false
}

// ProjectionPoint is one point of a projected time series
type ProjectionPoint struct {
	PeriodIndex        int     `json:"periodIndex"`
	ProjectedBalance   float64 `json:"projectedBalance"`
	PeriodEarnings     float64 `json:"periodEarnings"`
	CumulativeEarnings float64 `json:"cumulativeEarnings"`
}

// ProjectionSeries is the projected balance over one horizon.
// An empty Points slice means nothing is staked.
type ProjectionSeries struct {
	Horizon           Horizon           `json:"horizon"`
	Principal         float64           `json:"principal"` // Display units
	AnnualRatePercent float64           `json:"annualRatePercent"`
	Points            []ProjectionPoint `json:"points"`
}

// Final returns the last point of the series.
func (s *ProjectionSeries) Final() (ProjectionPoint, bool) {
	if len(s.Points) == 0 {
		return ProjectionPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// ProjectedBalance returns the balance at the end of the horizon, or 0 for an empty series.
func (s *ProjectionSeries) ProjectedBalance() float64 {
	p, _ := s.Final()
	return p.ProjectedBalance
}

// ProjectedEarnings returns the cumulative earnings at the end of the horizon, or 0 for an empty series.
func (s *ProjectionSeries) ProjectedEarnings() float64 {
	p, _ := s.Final()
	return p.CumulativeEarnings
}

// ActionKind identifies a user-initiated contract write
type ActionKind string

const (
	// ActionStake moves wallet balance into the stake
	ActionStake ActionKind = "stake"
	// ActionUnstake moves stake back to the wallet
	ActionUnstake ActionKind = "unstake"
	// ActionClaim claims accrued rewards
	ActionClaim ActionKind = "claim"
)

// ActionStatus is the lifecycle state of a submitted action
type ActionStatus string

const (
	// ActionPending is waiting for the wallet to confirm
	ActionPending ActionStatus = "pending"
	// ActionSucceeded was confirmed by the wallet
	ActionSucceeded ActionStatus = "succeeded"
	// ActionFailed was rejected, cancelled or failed validation at the contract
	ActionFailed ActionStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
