package vault

import "math/big"

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 31_536_000

// mulDiv computes a*b/den truncating toward zero. A zero denominator yields
// zero rather than panicking; callers guard the cases where that matters.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// mulDivCeil computes a*b/den rounding up. Used only by the withdrawal
// preview so the pool never under-charges shares on the way out.
func mulDivCeil(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	out.Add(out, new(big.Int).Sub(den, big.NewInt(1)))
	return out.Quo(out, den)
}

// pendingYield returns the yield earned by base at apyBps over elapsed
// seconds, truncating toward zero so repeated small accruals never overpay.
func pendingYield(base *big.Int, apyBps uint64, elapsed uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || apyBps == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(base, new(big.Int).SetUint64(apyBps))
	out.Mul(out, new(big.Int).SetUint64(elapsed))
	den := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return out.Quo(out, den)
}
