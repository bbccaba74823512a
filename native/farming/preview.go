package farming

import "math/big"

// projectedIndexLocked re-derives what AccIndex would be after a hypothetical
// refresh at now, without mutating anything. It runs the identical catch-up
// walk against copies of the period cursor, so the result is arithmetically
// equal to a real refresh followed by a debt read. Issuance is assumed to
// succeed; a refused mint at refresh time would leave the realised index
// behind this projection.
func (e *Engine) projectedIndexLocked(now uint64) *big.Int {
	index := copyBigInt(e.pool.AccIndex)
	if now <= e.pool.LastUpdateTick || e.pool.TotalStaked.Sign() == 0 {
		return index
	}
	cu := e.computeCatchUp(now)
	return index.Add(index, indexDelta(cu.stakingReward, e.pool.TotalStaked))
}

// PendingReward reports how much reward the user would be owed if the pool
// were refreshed at now. It is read-only and safe to call concurrently with
// queries; mutating entry points are serialised separately.
func (e *Engine) PendingReward(user [20]byte, now uint64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[user]
	if !ok || pos.StakedAmount.Sign() == 0 {
		return big.NewInt(0)
	}
	projected := e.projectedIndexLocked(now)
	value := indexValue(pos.StakedAmount, projected)
	return value.Sub(value, pos.RewardDebt)
}
