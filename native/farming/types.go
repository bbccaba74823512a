package farming

import "math/big"

// SchedulePeriod fixes the emission rates applied while the period is active.
// Rates are denominated in reward token base units per tick.
type SchedulePeriod struct {
	StakingRatePerTick *big.Int
	OthersRatePerTick  *big.Int
	LengthTicks        uint64
}

// Clone returns a deep copy of the period.
func (p SchedulePeriod) Clone() SchedulePeriod {
	return SchedulePeriod{
		StakingRatePerTick: copyBigInt(p.StakingRatePerTick),
		OthersRatePerTick:  copyBigInt(p.OthersRatePerTick),
		LengthTicks:        p.LengthTicks,
	}
}

// PoolState captures the global accumulator accounting for the farm. AccIndex is
// the cumulative reward earned per staked unit, scaled by AccPrecision. It never
// decreases. CurrentPeriod and PeriodEndTick form the schedule cursor; once the
// cursor sits on the final period and PeriodEndTick has passed, the pool is
// exhausted and no further rewards accrue.
type PoolState struct {
	AccIndex          *big.Int
	CurrentPeriod     uint64
	PeriodEndTick     uint64
	LastUpdateTick    uint64
	ActiveStakingRate *big.Int
	ActiveOthersRate  *big.Int
	TotalStaked       *big.Int
}

// Clone returns a deep copy of the pool state.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	return &PoolState{
		AccIndex:          copyBigInt(p.AccIndex),
		CurrentPeriod:     p.CurrentPeriod,
		PeriodEndTick:     p.PeriodEndTick,
		LastUpdateTick:    p.LastUpdateTick,
		ActiveStakingRate: copyBigInt(p.ActiveStakingRate),
		ActiveOthersRate:  copyBigInt(p.ActiveOthersRate),
		TotalStaked:       copyBigInt(p.TotalStaked),
	}
}

// UserPosition maintains the farm position for an individual participant.
// RewardDebt snapshots StakedAmount*AccIndex/AccPrecision at the last mutation,
// so the pending reward is always derivable as a pure difference.
type UserPosition struct {
	StakedAmount *big.Int
	RewardDebt   *big.Int
}

// Clone returns a deep copy of the position.
func (u *UserPosition) Clone() *UserPosition {
	if u == nil {
		return nil
	}
	return &UserPosition{
		StakedAmount: copyBigInt(u.StakedAmount),
		RewardDebt:   copyBigInt(u.RewardDebt),
	}
}

// StoredPosition pairs a position with its owner for snapshots and queries.
type StoredPosition struct {
	Address      [20]byte
	StakedAmount *big.Int
	RewardDebt   *big.Int
}

// FarmState bundles everything the engine needs to rebuild itself after a
// restart. Positions are sorted by address so encodings are deterministic.
type FarmState struct {
	Pool      *PoolState
	Positions []StoredPosition
}
