package farming

import (
	"errors"
	"math/big"
	"testing"

	"stakefarm/core/events"
	"stakefarm/core/types"
	nativecommon "stakefarm/native/common"
)

type mockCustody struct {
	pulled   *big.Int
	paid     *big.Int
	failPull bool
	failPay  bool
	onPull   func()
}

func newMockCustody() *mockCustody {
	return &mockCustody{pulled: big.NewInt(0), paid: big.NewInt(0)}
}

func (m *mockCustody) TransferFrom(_, _ [20]byte, amount *big.Int) error {
	if m.onPull != nil {
		m.onPull()
	}
	if m.failPull {
		return errors.New("custody rejected transferFrom")
	}
	m.pulled.Add(m.pulled, amount)
	return nil
}

func (m *mockCustody) Transfer(_ [20]byte, amount *big.Int) error {
	if m.failPay {
		return errors.New("custody rejected transfer")
	}
	m.paid.Add(m.paid, amount)
	return nil
}

type mockIssuer struct {
	minted    map[[20]byte]*big.Int
	refuseFor map[[20]byte]bool
	attempts  int
}

func newMockIssuer() *mockIssuer {
	return &mockIssuer{minted: make(map[[20]byte]*big.Int), refuseFor: make(map[[20]byte]bool)}
}

func (m *mockIssuer) Mint(recipient [20]byte, amount *big.Int) error {
	m.attempts++
	if m.refuseFor[recipient] {
		return errors.New("supply cap reached")
	}
	total, ok := m.minted[recipient]
	if !ok {
		total = big.NewInt(0)
		m.minted[recipient] = total
	}
	total.Add(total, amount)
	return nil
}

func (m *mockIssuer) mintedFor(addr [20]byte) *big.Int {
	if total, ok := m.minted[addr]; ok {
		return total
	}
	return big.NewInt(0)
}

type capturingEmitter struct {
	captured []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	raw, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	c.captured = append(c.captured, raw.Event())
}

func (c *capturingEmitter) ofType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range c.captured {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func makeAddr(suffix byte) [20]byte {
	var addr [20]byte
	addr[19] = suffix
	return addr
}

var (
	moduleAddr = makeAddr(0xAA)
	othersAddr = makeAddr(0xBB)
)

func twoPeriodSchedule(t *testing.T) *Schedule {
	t.Helper()
	schedule, err := NewSchedule([]SchedulePeriod{
		{StakingRatePerTick: big.NewInt(1000), OthersRatePerTick: big.NewInt(8000), LengthTicks: 100},
		{StakingRatePerTick: big.NewInt(2000), OthersRatePerTick: big.NewInt(3000), LengthTicks: 20},
	})
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}
	return schedule
}

func newTestEngine(t *testing.T, schedule *Schedule, startTick uint64) (*Engine, *mockCustody, *mockIssuer, *capturingEmitter) {
	t.Helper()
	engine, err := NewEngine(schedule, startTick)
	if err != nil {
		t.Fatalf("construct engine: %v", err)
	}
	custody := newMockCustody()
	issuer := newMockIssuer()
	emitter := &capturingEmitter{}
	engine.SetCustody(custody)
	engine.SetIssuer(issuer)
	engine.SetModuleAddress(moduleAddr)
	engine.SetOthersAddress(othersAddr)
	engine.SetEmitter(emitter)
	return engine, custody, issuer, emitter
}

func mustDeposit(t *testing.T, engine *Engine, user [20]byte, amount int64, now uint64) *big.Int {
	t.Helper()
	pending, err := engine.Deposit(user, big.NewInt(amount), now)
	if err != nil {
		t.Fatalf("deposit %d at tick %d: %v", amount, now, err)
	}
	return pending
}

func TestDepositScenarioAcrossPeriods(t *testing.T) {
	engine, custody, issuer, emitter := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)

	mustDeposit(t, engine, alice, 100, 1)
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected totalStaked 100, got %s", total)
	}

	// 10 ticks inside period 0 at rate 1000, with the whole pool owned by
	// alice: 10_000 pending.
	if pending := engine.PendingReward(alice, 11); pending.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected pending 10000 at tick 11, got %s", pending)
	}

	pending := mustDeposit(t, engine, alice, 100, 11)
	if pending.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected realised pending 10000, got %s", pending)
	}
	pos := engine.Position(alice)
	if pos.StakedAmount.Cmp(big.NewInt(10_200)) != 0 {
		t.Fatalf("expected stake 10200 after auto-compound, got %s", pos.StakedAmount)
	}
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(10_200)) != 0 {
		t.Fatalf("expected totalStaked 10200, got %s", total)
	}
	// The index moved to 10_000 * precision / 100, so the refreshed debt is
	// 10_200 * 100.
	if pos.RewardDebt.Cmp(big.NewInt(1_020_000)) != 0 {
		t.Fatalf("expected reward debt 1020000, got %s", pos.RewardDebt)
	}
	if custody.pulled.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 pulled into custody, got %s", custody.pulled)
	}
	if minted := issuer.mintedFor(moduleAddr); minted.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected 10000 staking reward minted, got %s", minted)
	}
	if minted := issuer.mintedFor(othersAddr); minted.Cmp(big.NewInt(80_000)) != 0 {
		t.Fatalf("expected 80000 others reward minted, got %s", minted)
	}

	// Tick 150 crosses the period boundary at 101: 90 ticks at rate 1000,
	// then 20 ticks of period 1 at rate 2000, clipped at boundary 121.
	if err := engine.Refresh(150); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	pool := engine.Pool()
	if pool.CurrentPeriod != 1 || pool.PeriodEndTick != 121 || pool.LastUpdateTick != 150 {
		t.Fatalf("unexpected cursor after refresh: %+v", pool)
	}
	if pool.ActiveStakingRate.Cmp(big.NewInt(2000)) != 0 || pool.ActiveOthersRate.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("expected period 1 rates active, got %s/%s", pool.ActiveStakingRate, pool.ActiveOthersRate)
	}
	if minted := issuer.mintedFor(moduleAddr); minted.Cmp(big.NewInt(10_000+90_000+40_000)) != 0 {
		t.Fatalf("expected cumulative staking mint 140000, got %s", minted)
	}
	if minted := issuer.mintedFor(othersAddr); minted.Cmp(big.NewInt(80_000+720_000+60_000)) != 0 {
		t.Fatalf("expected cumulative others mint 860000, got %s", minted)
	}

	advances := emitter.ofType(EventTypePeriodAdvanced)
	if len(advances) != 1 {
		t.Fatalf("expected one period advancement event, got %d", len(advances))
	}
	attrs := advances[0].Attributes
	if attrs["period"] != "1" || attrs["boundaryTick"] != "101" ||
		attrs["stakingRate"] != "2000" || attrs["othersRate"] != "3000" {
		t.Fatalf("unexpected period advancement attributes: %v", attrs)
	}
}

func TestRefreshNoOpWhenTickNotAdvanced(t *testing.T) {
	engine, _, issuer, _ := newTestEngine(t, twoPeriodSchedule(t), 10)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 50, 10)

	before := engine.Pool()
	if err := engine.Refresh(10); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := engine.Refresh(5); err != nil {
		t.Fatalf("refresh with stale tick: %v", err)
	}
	after := engine.Pool()
	if after.AccIndex.Cmp(before.AccIndex) != 0 || after.LastUpdateTick != before.LastUpdateTick {
		t.Fatalf("expected pool unchanged, before %+v after %+v", before, after)
	}
	if issuer.attempts != 0 {
		t.Fatalf("expected no issuance attempts, got %d", issuer.attempts)
	}
}

func TestIdlePoolForfeitsElapsedTime(t *testing.T) {
	engine, _, issuer, _ := newTestEngine(t, twoPeriodSchedule(t), 1)

	if err := engine.Refresh(50); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	pool := engine.Pool()
	if pool.LastUpdateTick != 50 {
		t.Fatalf("expected lastUpdateTick 50, got %d", pool.LastUpdateTick)
	}
	if pool.AccIndex.Sign() != 0 {
		t.Fatalf("expected accIndex unchanged, got %s", pool.AccIndex)
	}
	if issuer.attempts != 0 {
		t.Fatalf("expected no issuance for empty pool, got %d attempts", issuer.attempts)
	}
}

func TestScheduleExhaustionHaltsAccrual(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	// Past the final boundary at 121; everything beyond earns nothing.
	if err := engine.Refresh(500); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	frozen := engine.Pool().AccIndex

	if err := engine.Refresh(1000); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	pool := engine.Pool()
	if pool.AccIndex.Cmp(frozen) != 0 {
		t.Fatalf("accIndex moved after exhaustion: %s -> %s", frozen, pool.AccIndex)
	}
	if pool.LastUpdateTick != 1000 {
		t.Fatalf("expected lastUpdateTick 1000, got %d", pool.LastUpdateTick)
	}
	if pending := engine.PendingReward(alice, 2000); pending.Cmp(engine.PendingReward(alice, 1000)) != 0 {
		t.Fatalf("pending kept growing after exhaustion")
	}
}

func TestAccumulatorMonotonic(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 250, 1)

	prev := big.NewInt(0)
	for _, now := range []uint64{3, 3, 17, 40, 101, 102, 119, 121, 130, 400} {
		if err := engine.Refresh(now); err != nil {
			t.Fatalf("refresh at %d: %v", now, err)
		}
		index := engine.Pool().AccIndex
		if index.Cmp(prev) < 0 {
			t.Fatalf("accIndex decreased at tick %d: %s -> %s", now, prev, index)
		}
		prev = index
	}
}

func TestTotalStakedConservation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	bob := makeAddr(0x02)
	carol := makeAddr(0x03)

	mustDeposit(t, engine, alice, 100, 1)
	mustDeposit(t, engine, bob, 300, 5)
	mustDeposit(t, engine, carol, 50, 20)
	if _, err := engine.HarvestAndCompound(bob, 60); err != nil {
		t.Fatalf("compound: %v", err)
	}
	if _, err := engine.Withdraw(alice, big.NewInt(40), 80); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustDeposit(t, engine, carol, 10, 110)
	if _, err := engine.WithdrawAll(bob, 130); err != nil {
		t.Fatalf("withdrawAll: %v", err)
	}

	sum := big.NewInt(0)
	for _, user := range [][20]byte{alice, bob, carol} {
		sum.Add(sum, engine.Position(user).StakedAmount)
	}
	if total := engine.TotalStaked(); total.Cmp(sum) != 0 {
		t.Fatalf("conservation violated: totalStaked %s, position sum %s", total, sum)
	}
}

func TestWithdrawCompoundsPendingIntoRemainingStake(t *testing.T) {
	engine, custody, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	// 10 ticks elapse: 10_000 pending. Withdrawing 30 pays out principal only
	// and folds the pending into the remaining stake.
	pending, err := engine.Withdraw(alice, big.NewInt(30), 11)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if pending.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected pending 10000, got %s", pending)
	}
	if custody.paid.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected payout 30, got %s", custody.paid)
	}
	pos := engine.Position(alice)
	if pos.StakedAmount.Cmp(big.NewInt(100+10_000-30)) != 0 {
		t.Fatalf("expected stake 10070, got %s", pos.StakedAmount)
	}
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(10_070)) != 0 {
		t.Fatalf("expected totalStaked 10070, got %s", total)
	}
}

func TestWithdrawRejectsExcessAmount(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	if _, err := engine.Withdraw(alice, big.NewInt(101), 5); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := engine.Withdraw(alice, big.NewInt(0), 5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Withdraw(makeAddr(0x09), big.NewInt(1), 5); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake for unknown user, got %v", err)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)

	if _, err := engine.Deposit(alice, big.NewInt(0), 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := engine.Deposit(alice, big.NewInt(-5), 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := engine.Deposit(alice, nil, 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestWithdrawAllZeroesPosition(t *testing.T) {
	engine, custody, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	bob := makeAddr(0x02)
	mustDeposit(t, engine, alice, 100, 1)
	mustDeposit(t, engine, bob, 100, 1)

	// At tick 11 each owns half of the 20_000 reward minted for 10 ticks.
	payout, err := engine.WithdrawAll(alice, 11)
	if err != nil {
		t.Fatalf("withdrawAll: %v", err)
	}
	if payout.Cmp(big.NewInt(100+5_000)) != 0 {
		t.Fatalf("expected payout 5100, got %s", payout)
	}
	if custody.paid.Cmp(payout) != 0 {
		t.Fatalf("expected custody payout %s, got %s", payout, custody.paid)
	}

	pos := engine.Position(alice)
	if pos.StakedAmount.Sign() != 0 || pos.RewardDebt.Sign() != 0 {
		t.Fatalf("expected zeroed position, got %+v", pos)
	}
	if pending := engine.PendingReward(alice, 50); pending.Sign() != 0 {
		t.Fatalf("expected zero pending after withdrawAll, got %s", pending)
	}
	// TotalStaked drops by the pre-withdrawal stake only: the pending reward
	// was never part of it.
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected totalStaked 100, got %s", total)
	}
	if _, err := engine.WithdrawAll(alice, 12); !errors.Is(err, ErrNoStake) {
		t.Fatalf("expected ErrNoStake on second withdrawAll, got %v", err)
	}
}

func TestCompoundFoldsPendingWithoutTransfers(t *testing.T) {
	engine, custody, _, emitter := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	pending, err := engine.HarvestAndCompound(alice, 11)
	if err != nil {
		t.Fatalf("compound: %v", err)
	}
	if pending.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected pending 10000, got %s", pending)
	}
	if custody.paid.Sign() != 0 {
		t.Fatalf("compound must not move tokens, paid %s", custody.paid)
	}
	pos := engine.Position(alice)
	if pos.StakedAmount.Cmp(big.NewInt(10_100)) != 0 {
		t.Fatalf("expected stake 10100, got %s", pos.StakedAmount)
	}
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(10_100)) != 0 {
		t.Fatalf("expected totalStaked 10100, got %s", total)
	}

	// A second compound with no elapsed ticks is a no-op.
	pending, err = engine.HarvestAndCompound(alice, 11)
	if err != nil {
		t.Fatalf("second compound: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("expected zero pending, got %s", pending)
	}
	if got := len(emitter.ofType(EventTypeCompounded)); got != 1 {
		t.Fatalf("expected one compound event, got %d", got)
	}
}

func TestIssuanceRefusalFreezesIndexButNotCursor(t *testing.T) {
	engine, _, issuer, emitter := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	// Refuse only the staking stream: the index must freeze while the others
	// stream is still attempted and succeeds.
	issuer.refuseFor[moduleAddr] = true
	if err := engine.Refresh(11); err != nil {
		t.Fatalf("refresh must absorb issuance refusal, got %v", err)
	}
	pool := engine.Pool()
	if pool.AccIndex.Sign() != 0 {
		t.Fatalf("expected frozen accIndex, got %s", pool.AccIndex)
	}
	if pool.LastUpdateTick != 11 {
		t.Fatalf("expected lastUpdateTick 11, got %d", pool.LastUpdateTick)
	}
	if minted := issuer.mintedFor(othersAddr); minted.Cmp(big.NewInt(80_000)) != 0 {
		t.Fatalf("others stream must still mint 80000, got %s", minted)
	}
	refusals := emitter.ofType(EventTypeIssuanceRefused)
	if len(refusals) != 1 || refusals[0].Attributes["stream"] != "staking" {
		t.Fatalf("expected one staking refusal event, got %v", refusals)
	}
	if pending := engine.PendingReward(alice, 11); pending.Sign() != 0 {
		t.Fatalf("expected zero realised pending after refusal, got %s", pending)
	}

	// Once issuance resumes, only the new interval accrues.
	issuer.refuseFor[moduleAddr] = false
	if err := engine.Refresh(21); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pending := engine.PendingReward(alice, 21); pending.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected 10000 pending for resumed interval, got %s", pending)
	}
}

func TestTransferFailureAbortsOperation(t *testing.T) {
	engine, custody, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)
	mustDeposit(t, engine, alice, 100, 1)

	custody.failPull = true
	if _, err := engine.Deposit(alice, big.NewInt(50), 11); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	pos := engine.Position(alice)
	if pos.StakedAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected stake unchanged at 100, got %s", pos.StakedAmount)
	}
	if total := engine.TotalStaked(); total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected totalStaked unchanged at 100, got %s", total)
	}

	custody.failPull = false
	custody.failPay = true
	if _, err := engine.Withdraw(alice, big.NewInt(10), 12); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on withdraw, got %v", err)
	}
	if _, err := engine.WithdrawAll(alice, 13); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on withdrawAll, got %v", err)
	}
	if pos := engine.Position(alice); pos.StakedAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected stake unchanged at 100, got %s", pos.StakedAmount)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	engine, custody, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)

	var nested error
	nestedCalled := false
	custody.onPull = func() {
		if nestedCalled {
			return
		}
		nestedCalled = true
		_, nested = engine.Deposit(alice, big.NewInt(10), 1)
	}

	if _, err := engine.Deposit(alice, big.NewInt(100), 1); err != nil {
		t.Fatalf("outer deposit failed: %v", err)
	}
	if !nestedCalled {
		t.Fatalf("custody callback never ran")
	}
	if !errors.Is(nested, nativecommon.ErrReentrancy) {
		t.Fatalf("expected nested ErrReentrancy, got %v", nested)
	}
	// Only the outer deposit committed.
	if pos := engine.Position(alice); pos.StakedAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected stake 100, got %s", pos.StakedAmount)
	}
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	return s.modules[module]
}

func TestPauseGuardBlocksMutation(t *testing.T) {
	engine, custody, _, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	engine.SetPauses(stubPauseView{modules: map[string]bool{"farming": true}})
	alice := makeAddr(0x01)

	if _, err := engine.Deposit(alice, big.NewInt(100), 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if custody.pulled.Sign() != 0 {
		t.Fatalf("expected no custody movement, got %s", custody.pulled)
	}
	if err := engine.Refresh(10); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on refresh, got %v", err)
	}
}

func TestEmptyGapThenDepositAccruesFromNextRefresh(t *testing.T) {
	engine, _, issuer, _ := newTestEngine(t, twoPeriodSchedule(t), 1)
	alice := makeAddr(0x01)

	// Pool sits empty across most of period 0; that elapsed time earns
	// nothing for anyone.
	if err := engine.Refresh(90); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	mustDeposit(t, engine, alice, 100, 95)
	if issuer.attempts != 0 {
		t.Fatalf("expected no issuance before first staked interval, got %d", issuer.attempts)
	}

	if err := engine.Refresh(100); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// 5 ticks at rate 1000 for the sole staker.
	if pending := engine.PendingReward(alice, 100); pending.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("expected pending 5000, got %s", pending)
	}
}
