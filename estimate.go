package creditsync

import (
	"fmt"
	"math"
)

// CostTable maps a feature name to its per-unit credit cost.
type CostTable map[string]int64

// Estimate returns the credit cost of running feature over units items
// (keywords to check, reviews to answer, ...). Units below one count as one.
func (t CostTable) Estimate(feature string, units int64) (int64, error) {
	perUnit, ok := t[feature]
	if !ok {
		return 0, fmt.Errorf("creditsync: no cost configured for feature %q", feature)
	}
	if units < 1 {
		units = 1
	}
	if perUnit > 0 && units > math.MaxInt64/perUnit {
		return 0, fmt.Errorf("%w: cost of %q over %d units overflows", ErrInvalidConfig, feature, units)
	}
	return perUnit * units, nil
}
