package farming

import (
	"errors"
	"fmt"
)

var (
	errEmptySchedule = errors.New("farming schedule: at least one period required")
)

// Schedule is the fixed, ordered emission plan for the farm. It is set once at
// construction and never mutated afterwards; total emission is bounded by the
// sum of rate*length over all periods.
type Schedule struct {
	periods []SchedulePeriod
}

// NewSchedule validates and deep-copies the supplied periods.
func NewSchedule(periods []SchedulePeriod) (*Schedule, error) {
	if len(periods) == 0 {
		return nil, errEmptySchedule
	}
	cloned := make([]SchedulePeriod, 0, len(periods))
	for i, p := range periods {
		if p.LengthTicks == 0 {
			return nil, fmt.Errorf("farming schedule: period %d has zero length", i)
		}
		if p.StakingRatePerTick == nil || p.StakingRatePerTick.Sign() < 0 {
			return nil, fmt.Errorf("farming schedule: period %d staking rate must be non-negative", i)
		}
		if p.OthersRatePerTick == nil || p.OthersRatePerTick.Sign() < 0 {
			return nil, fmt.Errorf("farming schedule: period %d others rate must be non-negative", i)
		}
		cloned = append(cloned, p.Clone())
	}
	return &Schedule{periods: cloned}, nil
}

// Len reports the number of periods.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.periods)
}

// Period returns a copy of period i. It panics on an out-of-range index the
// same way a slice access would; the engine only ever advances the cursor
// within bounds.
func (s *Schedule) Period(i uint64) SchedulePeriod {
	return s.periods[i].Clone()
}

// TotalLengthTicks sums each period's length, i.e. the number of ticks between
// the start tick and schedule exhaustion.
func (s *Schedule) TotalLengthTicks() uint64 {
	var total uint64
	for _, p := range s.periods {
		total += p.LengthTicks
	}
	return total
}
