// Package projection computes compound-interest reward projections.
//
// Every horizon compounds a daily rate derived from the annual rate
// (annual / 365 / 100). A month is treated as 30 days, so a 30-day series
// and a monthly series built from the same inputs agree at day 30 / month 1.
package projection

import (
	"fmt"
	"math"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/types"
)

const (
	// DaysPerYear is the compounding basis of the annual rate
	DaysPerYear = 365
	// DaysPerMonth is the length of a projected month
	DaysPerMonth = 30
	// MaxProjectionDays bounds the span of one horizon (100 years)
	MaxProjectionDays = 100 * DaysPerYear
)

// DailyRate converts an annual percentage into the per-day growth rate
func DailyRate(annualRatePercent float64) float64 {
	return annualRatePercent / DaysPerYear / 100
}

// DaysPerPeriod returns the number of days one step of the unit spans
func DaysPerPeriod(unit types.PeriodUnit) int {
	if unit == types.PeriodMonth {
		return DaysPerMonth
	}
	return 1
}

// PeriodRate returns the effective growth rate of one period of the unit
func PeriodRate(annualRatePercent float64, unit types.PeriodUnit) float64 {
	return math.Pow(1+DailyRate(annualRatePercent), float64(DaysPerPeriod(unit))) - 1
}

// Project builds the projected balance series for one horizon.
// A zero stake yields a series with no points.
func Project(stakedAtomic types.Amount, annualRatePercent float64, h types.Horizon) (*types.ProjectionSeries, error) {
	if err := validate(stakedAtomic, annualRatePercent, h); err != nil {
		return nil, err
	}

	principal := stakedAtomic.Display()
	series := &types.ProjectionSeries{
		Horizon:           h,
		Principal:         principal,
		AnnualRatePercent: annualRatePercent,
		Points:            []types.ProjectionPoint{},
	}
	if stakedAtomic == 0 {
		return series, nil
	}

	growth := 1 + DailyRate(annualRatePercent)
	days := DaysPerPeriod(h.Unit)
	if final := principal * math.Pow(growth, float64(days*h.Count)); math.IsInf(final, 0) || math.IsNaN(final) {
		return nil, errors.NewInvalidArgumentError("horizon", "projected balance overflows")
	}

	series.Points = make([]types.ProjectionPoint, 0, h.Count+1)
	previous := principal
	for i := 0; i <= h.Count; i++ {
		// Exponentiate from the principal at every index so long series do not drift
		balance := principal * math.Pow(growth, float64(days*i))
		point := types.ProjectionPoint{
			PeriodIndex:        i,
			ProjectedBalance:   balance,
			CumulativeEarnings: balance - principal,
		}
		if i > 0 {
			point.PeriodEarnings = balance - previous
		}
		series.Points = append(series.Points, point)
		previous = balance
	}

	return series, nil
}

// ProjectHorizons projects the same stake over several horizons.
// With no horizons given it uses the dashboard defaults (week, month, year).
func ProjectHorizons(stakedAtomic types.Amount, annualRatePercent float64, horizons ...types.Horizon) ([]*types.ProjectionSeries, error) {
	if len(horizons) == 0 {
		horizons = types.DefaultHorizons()
	}

	out := make([]*types.ProjectionSeries, 0, len(horizons))
	for _, h := range horizons {
		s, err := Project(stakedAtomic, annualRatePercent, h)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ProjectSnapshot projects a snapshot's stake at the snapshot's reward rate
func ProjectSnapshot(snap *types.StakeSnapshot, horizons ...types.Horizon) ([]*types.ProjectionSeries, error) {
	if snap == nil {
		return nil, errors.NewInvalidArgumentError("snapshot", "must not be nil")
	}
	return ProjectHorizons(snap.StakedAmount, snap.RewardRate.Percent(), horizons...)
}

// EstimateRewards returns the earnings on principal (display units) after the given number of days
func EstimateRewards(principal, annualRatePercent float64, days int) (float64, error) {
	if err := checkFinite("principal", principal); err != nil {
		return 0, err
	}
	if err := checkFinite("annualRatePercent", annualRatePercent); err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, errors.NewInvalidArgumentError("days", "must not be negative")
	}
	return principal*math.Pow(1+DailyRate(annualRatePercent), float64(days)) - principal, nil
}

func validate(stakedAtomic types.Amount, annualRatePercent float64, h types.Horizon) error {
	if stakedAtomic < 0 {
		return errors.NewInvalidArgumentError("stakedAmount", "must not be negative")
	}
	if err := checkFinite("annualRatePercent", annualRatePercent); err != nil {
		return err
	}
	if !h.Unit.Valid() {
		return errors.NewInvalidArgumentError("unit", "must be day or month")
	}
	if h.Count <= 0 {
		return errors.NewInvalidArgumentError("count", "must be positive")
	}
	if h.Count > MaxProjectionDays/DaysPerPeriod(h.Unit) {
		return errors.NewInvalidArgumentError("count", fmt.Sprintf("must span at most %d days", MaxProjectionDays))
	}
	return nil
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewInvalidArgumentError(name, "must be finite")
	}
	if v < 0 {
		return errors.NewInvalidArgumentError(name, "must not be negative")
	}
	return nil
}
