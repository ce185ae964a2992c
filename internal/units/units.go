// Package units converts between atomic amounts and display strings.
// Only the presentation edge deals in display units; everything else stays in atomic units.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sats-staker/internal/types"
)

// DisplayDecimals is the number of fractional digits of one display unit
const DisplayDecimals = 8

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// ParseDisplay parses a display-unit string such as "0.5" into atomic units.
// Inputs with more than eight fractional digits are rejected rather than rounded.
func ParseDisplay(s string) (types.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	atomic := d.Shift(DisplayDecimals)
	if !atomic.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, DisplayDecimals)
	}
	if atomic.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}

	return types.Amount(atomic.IntPart()), nil
}

// ToDisplay converts atomic units to an exact display-unit decimal
func ToDisplay(a types.Amount) decimal.Decimal {
	return decimal.New(int64(a), -DisplayDecimals)
}

// FormatDisplay renders an amount in display units with a fixed number of decimals
func FormatDisplay(a types.Amount, places int32) string {
	return ToDisplay(a).StringFixed(places)
}

// FormatFloat renders a projected display-unit value with a fixed number of decimals
func FormatFloat(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		// decimal cannot represent these
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
