package farming

import "math/big"

// AccPrecision scales the per-share accumulator index. 1e12 keeps integer
// division in "amount * index / precision" from erasing small balances.
var AccPrecision = big.NewInt(1_000_000_000_000)

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// mult returns the number of reward-eligible ticks between from and to, clipped
// at the supplied period boundary. Callers guarantee from <= to.
func mult(from, to, boundary uint64) uint64 {
	switch {
	case to <= boundary:
		return to - from
	case from >= boundary:
		return 0
	default:
		return boundary - from
	}
}

// indexValue computes amount * index / AccPrecision, the reward value of a
// staked amount at a given accumulator index.
func indexValue(amount, index *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	v := new(big.Int).Mul(amount, index)
	return v.Quo(v, AccPrecision)
}

// tickReward returns ticks * rate.
func tickReward(ticks uint64, rate *big.Int) *big.Int {
	if ticks == 0 || rate == nil || rate.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(ticks), rate)
}

// indexDelta returns reward * AccPrecision / totalStaked, the accumulator
// increment earned per staked unit. Callers must ensure totalStaked > 0.
func indexDelta(reward, totalStaked *big.Int) *big.Int {
	if reward == nil || reward.Sign() == 0 || totalStaked == nil || totalStaked.Sign() == 0 {
		return big.NewInt(0)
	}
	d := new(big.Int).Mul(reward, AccPrecision)
	return d.Quo(d, totalStaked)
}
