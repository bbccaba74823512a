package farming

import (
	"math/big"
	"testing"
)

func TestNewScheduleValidation(t *testing.T) {
	if _, err := NewSchedule(nil); err == nil {
		t.Fatalf("expected error for empty schedule")
	}
	if _, err := NewSchedule([]SchedulePeriod{
		{StakingRatePerTick: big.NewInt(1), OthersRatePerTick: big.NewInt(1), LengthTicks: 0},
	}); err == nil {
		t.Fatalf("expected error for zero-length period")
	}
	if _, err := NewSchedule([]SchedulePeriod{
		{StakingRatePerTick: nil, OthersRatePerTick: big.NewInt(1), LengthTicks: 10},
	}); err == nil {
		t.Fatalf("expected error for nil staking rate")
	}
	if _, err := NewSchedule([]SchedulePeriod{
		{StakingRatePerTick: big.NewInt(1), OthersRatePerTick: big.NewInt(-1), LengthTicks: 10},
	}); err == nil {
		t.Fatalf("expected error for negative others rate")
	}

	// A zero rate is a valid idle period.
	schedule, err := NewSchedule([]SchedulePeriod{
		{StakingRatePerTick: big.NewInt(0), OthersRatePerTick: big.NewInt(0), LengthTicks: 10},
	})
	if err != nil {
		t.Fatalf("zero-rate period must validate: %v", err)
	}
	if schedule.Len() != 1 {
		t.Fatalf("expected one period, got %d", schedule.Len())
	}
}

func TestScheduleCopiesInput(t *testing.T) {
	rate := big.NewInt(500)
	periods := []SchedulePeriod{
		{StakingRatePerTick: rate, OthersRatePerTick: big.NewInt(100), LengthTicks: 10},
	}
	schedule, err := NewSchedule(periods)
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}

	rate.SetInt64(9999)
	if got := schedule.Period(0).StakingRatePerTick; got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("schedule aliased caller's rate: %s", got)
	}

	returned := schedule.Period(0)
	returned.StakingRatePerTick.SetInt64(1)
	if got := schedule.Period(0).StakingRatePerTick; got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("Period returned an aliased rate: %s", got)
	}
}

func TestScheduleTotalLength(t *testing.T) {
	schedule := twoPeriodSchedule(t)
	if got := schedule.TotalLengthTicks(); got != 120 {
		t.Fatalf("expected total length 120, got %d", got)
	}
}
