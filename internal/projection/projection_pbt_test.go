package projection

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sats-staker/internal/types"
)

func genUnit() gopter.Gen {
	return gen.OneConstOf(types.PeriodDay, types.PeriodMonth)
}

func TestProjectionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("zero stake projects nothing", prop.ForAll(
		func(rate float64, unit types.PeriodUnit, count int) bool {
			s, err := Project(0, rate, types.Horizon{Unit: unit, Count: count})
			return err == nil && len(s.Points) == 0
		},
		gen.Float64Range(0, 1000),
		genUnit(),
		gen.IntRange(1, 400),
	))

	properties.Property("zero rate keeps the principal", prop.ForAll(
		func(staked int64, unit types.PeriodUnit, count int) bool {
			s, err := Project(types.Amount(staked), 0, types.Horizon{Unit: unit, Count: count})
			if err != nil || len(s.Points) != count+1 {
				return false
			}
			for _, p := range s.Points {
				if p.ProjectedBalance != s.Principal || p.PeriodEarnings != 0 || p.CumulativeEarnings != 0 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1_000_000_000_000_000),
		genUnit(),
		gen.IntRange(1, 400),
	))

	properties.Property("balance strictly increases with a positive rate", prop.ForAll(
		func(staked int64, rate float64, unit types.PeriodUnit, count int) bool {
			s, err := Project(types.Amount(staked), rate, types.Horizon{Unit: unit, Count: count})
			if err != nil {
				return false
			}
			for i := 1; i < len(s.Points); i++ {
				if !(s.Points[i].ProjectedBalance > s.Points[i-1].ProjectedBalance) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1_000_000_000_000_000),
		gen.Float64Range(0.01, 100),
		genUnit(),
		gen.IntRange(1, 400),
	))

	properties.Property("period earnings sum to cumulative earnings", prop.ForAll(
		func(staked int64, rate float64, unit types.PeriodUnit, count int) bool {
			s, err := Project(types.Amount(staked), rate, types.Horizon{Unit: unit, Count: count})
			if err != nil {
				return false
			}
			sum := 0.0
			for _, p := range s.Points[1:] {
				sum += p.PeriodEarnings
			}
			cumulative := s.Points[len(s.Points)-1].CumulativeEarnings
			return math.Abs(sum-cumulative) <= 1e-9*math.Abs(cumulative)
		},
		gen.Int64Range(1, 1_000_000_000_000_000),
		gen.Float64Range(0.1, 100),
		genUnit(),
		gen.IntRange(1, 400),
	))

	properties.Property("monthly points match every thirtieth daily point", prop.ForAll(
		func(staked int64, rate float64, months int) bool {
			daily, err := Project(types.Amount(staked), rate, types.Horizon{Unit: types.PeriodDay, Count: months * DaysPerMonth})
			if err != nil {
				return false
			}
			monthly, err := Project(types.Amount(staked), rate, types.Horizon{Unit: types.PeriodMonth, Count: months})
			if err != nil {
				return false
			}
			for m, p := range monthly.Points {
				d := daily.Points[m*DaysPerMonth].ProjectedBalance
				if math.Abs(d-p.ProjectedBalance) > 1e-12*math.Max(1, d) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1_000_000_000_000),
		gen.Float64Range(0, 100),
		gen.IntRange(1, 24),
	))

	properties.TestingRun(t)
}
