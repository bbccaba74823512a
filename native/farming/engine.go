package farming

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"stakefarm/core/events"
	"stakefarm/core/types"
	nativecommon "stakefarm/native/common"
)

const moduleName = "farming"

// TokenCustody moves the staked token between participant accounts and the farm
// module account. Any error aborts the in-progress operation with no state
// change.
type TokenCustody interface {
	TransferFrom(from, to [20]byte, amount *big.Int) error
	Transfer(to [20]byte, amount *big.Int) error
}

// RewardIssuer mints newly issued reward tokens. It may refuse, e.g. when a
// supply cap is reached; refusal is absorbed as zero accrual for the interval
// rather than surfaced to callers.
type RewardIssuer interface {
	Mint(recipient [20]byte, amount *big.Int) error
}

// Engine owns the pool accumulator and the per-user position ledger. All
// mutating entry points refresh the accumulator to the caller-supplied tick
// before touching positions, and are serialised by a non-reentrant guard
// because custody and issuance calls happen mid-operation.
type Engine struct {
	guard nativecommon.EntryGuard
	mu    sync.RWMutex

	schedule  *Schedule
	pool      *PoolState
	positions map[[20]byte]*UserPosition

	custody       TokenCustody
	issuer        RewardIssuer
	moduleAddress [20]byte
	othersAddress [20]byte

	emitter events.Emitter
	logger  *slog.Logger
	pauses  nativecommon.PauseView
}

// NewEngine constructs an engine with the cursor parked at the start of the
// schedule's first period. No rewards accrue for ticks before startTick.
func NewEngine(schedule *Schedule, startTick uint64) (*Engine, error) {
	if schedule == nil || schedule.Len() == 0 {
		return nil, ErrNilSchedule
	}
	first := schedule.Period(0)
	return &Engine{
		schedule: schedule,
		pool: &PoolState{
			AccIndex:          big.NewInt(0),
			CurrentPeriod:     0,
			PeriodEndTick:     startTick + first.LengthTicks,
			LastUpdateTick:    startTick,
			ActiveStakingRate: copyBigInt(first.StakingRatePerTick),
			ActiveOthersRate:  copyBigInt(first.OthersRatePerTick),
			TotalStaked:       big.NewInt(0),
		},
		positions: make(map[[20]byte]*UserPosition),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
	}, nil
}

// SetCustody wires the staked-token custody collaborator.
func (e *Engine) SetCustody(c TokenCustody) { e.custody = c }

// SetIssuer wires the reward issuance authority.
func (e *Engine) SetIssuer(i RewardIssuer) { e.issuer = i }

// SetModuleAddress configures the custody account that holds staked tokens.
func (e *Engine) SetModuleAddress(addr [20]byte) { e.moduleAddress = addr }

// SetOthersAddress configures the beneficiary of the parallel reward stream.
func (e *Engine) SetOthersAddress(addr [20]byte) { e.othersAddress = addr }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// SetPauses wires the administrative pause switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) emit(evt *types.Event) {
	if evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

// enter claims the reentrancy guard and checks the pause switch. Callers must
// defer e.guard.Exit() after a nil return.
func (e *Engine) enter() error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		e.guard.Exit()
		return err
	}
	return nil
}

// catchUp carries the projected schedule cursor and the reward sums produced by
// advancing from LastUpdateTick to some later tick. Refresh commits it; the
// preview path discards it.
type catchUp struct {
	stakingReward *big.Int
	othersReward  *big.Int
	currentPeriod uint64
	periodEndTick uint64
	stakingRate   *big.Int
	othersRate    *big.Int
	crossed       []periodChange
}

type periodChange struct {
	period       uint64
	boundaryTick uint64
	stakingRate  *big.Int
	othersRate   *big.Int
}

// computeCatchUp walks the schedule from the pool's last update to now,
// clipping each interval against the active period boundary and switching
// rates at every boundary crossed. Elapsed time beyond the final period's
// boundary earns nothing. Callers hold at least a read lock.
func (e *Engine) computeCatchUp(now uint64) *catchUp {
	cu := &catchUp{
		stakingReward: big.NewInt(0),
		othersReward:  big.NewInt(0),
		currentPeriod: e.pool.CurrentPeriod,
		periodEndTick: e.pool.PeriodEndTick,
		stakingRate:   copyBigInt(e.pool.ActiveStakingRate),
		othersRate:    copyBigInt(e.pool.ActiveOthersRate),
	}
	ticks := mult(e.pool.LastUpdateTick, now, cu.periodEndTick)
	cu.stakingReward.Add(cu.stakingReward, tickReward(ticks, cu.stakingRate))
	cu.othersReward.Add(cu.othersReward, tickReward(ticks, cu.othersRate))

	last := uint64(e.schedule.Len() - 1)
	for now > cu.periodEndTick && cu.currentPeriod < last {
		cu.currentPeriod++
		next := e.schedule.Period(cu.currentPeriod)
		cu.stakingRate = next.StakingRatePerTick
		cu.othersRate = next.OthersRatePerTick
		prevEnd := cu.periodEndTick
		cu.periodEndTick += next.LengthTicks
		cu.crossed = append(cu.crossed, periodChange{
			period:       cu.currentPeriod,
			boundaryTick: prevEnd,
			stakingRate:  copyBigInt(cu.stakingRate),
			othersRate:   copyBigInt(cu.othersRate),
		})
		ticks := mult(prevEnd, now, cu.periodEndTick)
		cu.stakingReward.Add(cu.stakingReward, tickReward(ticks, cu.stakingRate))
		cu.othersReward.Add(cu.othersReward, tickReward(ticks, cu.othersRate))
	}
	return cu
}

// refreshLocked advances the accumulator to now. The caller holds the write
// lock. Issuance refusal freezes the index for the interval but never fails
// the refresh; the period cursor and LastUpdateTick always advance.
func (e *Engine) refreshLocked(now uint64) {
	if now <= e.pool.LastUpdateTick {
		return
	}
	if e.pool.TotalStaked.Sign() == 0 {
		e.pool.LastUpdateTick = now
		return
	}

	cu := e.computeCatchUp(now)
	e.pool.CurrentPeriod = cu.currentPeriod
	e.pool.PeriodEndTick = cu.periodEndTick
	e.pool.ActiveStakingRate = copyBigInt(cu.stakingRate)
	e.pool.ActiveOthersRate = copyBigInt(cu.othersRate)
	for _, ch := range cu.crossed {
		e.emit(periodAdvancedEvent(ch.period, ch.boundaryTick, ch.stakingRate, ch.othersRate))
	}

	if cu.stakingReward.Sign() > 0 {
		if err := e.mint(e.moduleAddress, cu.stakingReward); err != nil {
			e.logger.Warn("staking reward issuance refused",
				slog.String("amount", cu.stakingReward.String()),
				slog.Any("error", err))
			e.emit(issuanceRefusedEvent("staking", cu.stakingReward, err.Error()))
		} else {
			e.pool.AccIndex.Add(e.pool.AccIndex, indexDelta(cu.stakingReward, e.pool.TotalStaked))
		}
	}
	// The others stream is attempted regardless of the staking outcome; its
	// failure is not load-bearing for pool accounting.
	if cu.othersReward.Sign() > 0 {
		if err := e.mint(e.othersAddress, cu.othersReward); err != nil {
			e.logger.Warn("others reward issuance refused",
				slog.String("amount", cu.othersReward.String()),
				slog.Any("error", err))
			e.emit(issuanceRefusedEvent("others", cu.othersReward, err.Error()))
		}
	}
	e.pool.LastUpdateTick = now
}

func (e *Engine) mint(recipient [20]byte, amount *big.Int) error {
	if e.issuer == nil {
		return fmt.Errorf("issuance authority not configured")
	}
	return e.issuer.Mint(recipient, amount)
}

// Refresh advances the pool accumulator to now without touching any position.
func (e *Engine) Refresh(now uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked(now)
	return nil
}

func (e *Engine) pendingLocked(pos *UserPosition) *big.Int {
	if pos == nil {
		return big.NewInt(0)
	}
	value := indexValue(pos.StakedAmount, e.pool.AccIndex)
	return value.Sub(value, pos.RewardDebt)
}

// Deposit moves amount of the staked token from the caller into custody and
// adds it to the caller's position. Any reward pending at the refreshed index
// is folded into the principal at the same time. The realised pending amount
// is returned.
func (e *Engine) Deposit(user [20]byte, amount *big.Int, now uint64) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.custody == nil {
		return nil, ErrNilCustody
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked(now)

	pos := e.positions[user]
	pending := e.pendingLocked(pos)
	staked := big.NewInt(0)
	if pos != nil {
		staked = pos.StakedAmount
	}
	newStake := new(big.Int).Add(staked, amount)
	newStake.Add(newStake, pending)
	added := new(big.Int).Add(amount, pending)

	if err := e.custody.TransferFrom(user, e.moduleAddress, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if pos == nil {
		pos = &UserPosition{}
		e.positions[user] = pos
	}
	pos.StakedAmount = newStake
	pos.RewardDebt = indexValue(newStake, e.pool.AccIndex)
	e.pool.TotalStaked.Add(e.pool.TotalStaked, added)

	e.emit(depositedEvent(user, amount, pending))
	return pending, nil
}

// HarvestAndCompound folds the caller's pending reward into their principal.
// No token moves; compounding is purely a ledger entry. A zero pending amount
// is a no-op.
func (e *Engine) HarvestAndCompound(user [20]byte, now uint64) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked(now)

	pos, ok := e.positions[user]
	if !ok {
		return big.NewInt(0), nil
	}
	pending := e.pendingLocked(pos)
	if pending.Sign() == 0 {
		return big.NewInt(0), nil
	}

	pos.StakedAmount = new(big.Int).Add(pos.StakedAmount, pending)
	pos.RewardDebt = indexValue(pos.StakedAmount, e.pool.AccIndex)
	e.pool.TotalStaked.Add(e.pool.TotalStaked, pending)

	e.emit(compoundedEvent(user, pending))
	return pending, nil
}

// Withdraw returns amount of principal to the caller. Pending reward is
// compounded into the remaining stake rather than paid out.
func (e *Engine) Withdraw(user [20]byte, amount *big.Int, now uint64) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.custody == nil {
		return nil, ErrNilCustody
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[user]
	if !ok || pos.StakedAmount.Cmp(amount) < 0 {
		return nil, ErrInsufficientStake
	}
	e.refreshLocked(now)

	pending := e.pendingLocked(pos)
	newStake := new(big.Int).Add(pos.StakedAmount, pending)
	newStake.Sub(newStake, amount)
	delta := new(big.Int).Sub(pending, amount)

	if err := e.custody.Transfer(user, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	pos.StakedAmount = newStake
	pos.RewardDebt = indexValue(newStake, e.pool.AccIndex)
	e.pool.TotalStaked.Add(e.pool.TotalStaked, delta)

	e.emit(withdrawnEvent(user, amount, pending, false))
	return pending, nil
}

// WithdrawAll pays out the caller's entire principal plus pending reward and
// zeroes the position. TotalStaked drops by the pre-withdrawal stake only: the
// pending reward was never part of it.
func (e *Engine) WithdrawAll(user [20]byte, now uint64) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if e.custody == nil {
		return nil, ErrNilCustody
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[user]
	if !ok || pos.StakedAmount.Sign() == 0 {
		return nil, ErrNoStake
	}
	e.refreshLocked(now)

	pending := e.pendingLocked(pos)
	staked := copyBigInt(pos.StakedAmount)
	payout := new(big.Int).Add(staked, pending)

	if err := e.custody.Transfer(user, payout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	pos.StakedAmount = big.NewInt(0)
	pos.RewardDebt = big.NewInt(0)
	e.pool.TotalStaked.Sub(e.pool.TotalStaked, staked)

	e.emit(withdrawnEvent(user, payout, pending, true))
	return payout, nil
}

// Pool returns a copy of the pool state.
func (e *Engine) Pool() *PoolState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Clone()
}

// Position returns a copy of the user's position. Unknown users report a zero
// position rather than an error.
func (e *Engine) Position(user [20]byte) *UserPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if pos, ok := e.positions[user]; ok {
		return pos.Clone()
	}
	return &UserPosition{StakedAmount: big.NewInt(0), RewardDebt: big.NewInt(0)}
}

// TotalStaked returns the aggregate staked amount across all positions.
func (e *Engine) TotalStaked() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyBigInt(e.pool.TotalStaked)
}

// ExportState snapshots the pool and every position, sorted by address.
func (e *Engine) ExportState() *FarmState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := &FarmState{Pool: e.pool.Clone()}
	for addr, pos := range e.positions {
		state.Positions = append(state.Positions, StoredPosition{
			Address:      addr,
			StakedAmount: copyBigInt(pos.StakedAmount),
			RewardDebt:   copyBigInt(pos.RewardDebt),
		})
	}
	sort.Slice(state.Positions, func(i, j int) bool {
		return string(state.Positions[i].Address[:]) < string(state.Positions[j].Address[:])
	})
	return state
}

// RestoreState replaces the engine's pool and positions with a previously
// exported snapshot. The schedule itself is construction-time configuration
// and is not part of the snapshot.
func (e *Engine) RestoreState(state *FarmState) error {
	if state == nil || state.Pool == nil {
		return fmt.Errorf("farming engine: nil snapshot")
	}
	if state.Pool.CurrentPeriod >= uint64(e.schedule.Len()) {
		return fmt.Errorf("farming engine: snapshot period %d outside schedule", state.Pool.CurrentPeriod)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = state.Pool.Clone()
	e.positions = make(map[[20]byte]*UserPosition, len(state.Positions))
	for _, stored := range state.Positions {
		e.positions[stored.Address] = &UserPosition{
			StakedAmount: copyBigInt(stored.StakedAmount),
			RewardDebt:   copyBigInt(stored.RewardDebt),
		}
	}
	return nil
}
