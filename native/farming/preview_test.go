package farming

import (
	"math/big"
	"testing"
)

func TestPendingPreviewMatchesRefresh(t *testing.T) {
	schedule := twoPeriodSchedule(t)
	alice := makeAddr(0x01)
	bob := makeAddr(0x02)

	for _, now := range []uint64{2, 11, 101, 110, 121, 300} {
		previewed, _, _, _ := newTestEngine(t, schedule, 1)
		refreshed, _, _, _ := newTestEngine(t, schedule, 1)
		for _, engine := range []*Engine{previewed, refreshed} {
			mustDeposit(t, engine, alice, 100, 1)
			mustDeposit(t, engine, bob, 300, 1)
		}

		want := previewed.PendingReward(alice, now)
		if err := refreshed.Refresh(now); err != nil {
			t.Fatalf("refresh at %d: %v", now, err)
		}
		got := refreshed.PendingReward(alice, now)
		if want.Cmp(got) != 0 {
			t.Fatalf("tick %d: preview %s, post-refresh pending %s", now, want, got)
		}
	}
}

func TestPendingPreviewDoesNotMutate(t *testing.T) {
	engine, _, issuer, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	before := engine.Pool()
	for i := 0; i < 3; i++ {
		if pending := engine.PendingReward(alice, 150); pending.Sign() <= 0 {
			t.Fatalf("expected positive preview, got %s", pending)
		}
	}
	after := engine.Pool()
	if after.AccIndex.Cmp(before.AccIndex) != 0 || after.LastUpdateTick != before.LastUpdateTick ||
		after.CurrentPeriod != before.CurrentPeriod {
		t.Fatalf("preview mutated the pool: before %+v after %+v", before, after)
	}
	if issuer.attempts != 0 {
		t.Fatalf("preview must not mint, got %d attempts", issuer.attempts)
	}
}

func TestPendingPreviewUnknownUser(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	if pending := engine.PendingReward(makeAddr(0x7F), 50); pending.Sign() != 0 {
		t.Fatalf("expected zero pending for unknown user, got %s", pending)
	}
}

func TestPendingPreviewSplitsProRata(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	bob := makeAddr(0x02)
	mustDeposit(t, engine, alice, 100, 1)
	mustDeposit(t, engine, bob, 300, 1)

	// 10 ticks at rate 1000 split 1:3 across a 400 pool.
	if pending := engine.PendingReward(alice, 11); pending.Cmp(big.NewInt(2_500)) != 0 {
		t.Fatalf("expected alice pending 2500, got %s", pending)
	}
	if pending := engine.PendingReward(bob, 11); pending.Cmp(big.NewInt(7_500)) != 0 {
		t.Fatalf("expected bob pending 7500, got %s", pending)
	}
}
