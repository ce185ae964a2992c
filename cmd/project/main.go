// Package main prints a staking projection table.
//
// Usage:
//
//	project --amount 0.5 --rate 5 --horizon month
//	project --amount 10 --rate 12.5 --unit month --count 24
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/sats-staker/internal/projection"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/units"
)

func main() {
	amount := flag.StringP("amount", "a", "", "Staked amount in display units (required)")
	rate := flag.Float64P("rate", "r", 0, "Annual reward rate in percent")
	horizon := flag.String("horizon", "", "Named horizon: week, month or year")
	unit := flag.StringP("unit", "u", string(types.PeriodDay), "Period unit: day or month")
	count := flag.IntP("count", "n", types.HorizonWeek.Count, "Number of periods")
	flag.Parse()

	if *amount == "" {
		fmt.Fprintln(os.Stderr, "Error: --amount is required")
		flag.Usage()
		os.Exit(2)
	}

	staked, err := units.ParseDisplay(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	h := types.Horizon{Unit: types.PeriodUnit(strings.ToLower(*unit)), Count: *count}
	if *horizon != "" {
		named, ok := types.HorizonByName(strings.ToLower(*horizon))
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown horizon %q\n", *horizon)
			os.Exit(2)
		}
		h = named
	}

	series, err := projection.Project(staked, *rate, h)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Principal: %s  Rate: %s%%  Horizon: %d %s(s)\n\n",
		units.FormatDisplay(staked, units.DisplayDecimals), units.FormatFloat(*rate, 2), h.Count, h.Unit)

	if len(series.Points) == 0 {
		fmt.Println("Nothing staked, no projection.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tBalance\tEarned\tCumulative\t\n", strings.ToUpper(string(h.Unit)))
	for _, p := range series.Points {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n",
			p.PeriodIndex,
			units.FormatFloat(p.ProjectedBalance, units.DisplayDecimals),
			units.FormatFloat(p.PeriodEarnings, units.DisplayDecimals),
			units.FormatFloat(p.CumulativeEarnings, units.DisplayDecimals),
		)
	}
	_ = w.Flush()
}
