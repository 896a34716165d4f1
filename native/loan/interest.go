package loan

import "math/big"

var basisPoints = big.NewInt(10_000)

const (
	secondsPerDay = 86_400
	daysPerYear   = 365
)

// interestDue computes simple interest on the loan notional at rateBps per
// year with daily granularity. Partial days round down, so a same-day
// repayment owes no interest at all.
func interestDue(loan *big.Int, rateBps, elapsedSeconds uint64) *big.Int {
	if loan == nil || loan.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	days := elapsedSeconds / secondsPerDay
	if days == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(loan, new(big.Int).SetUint64(rateBps))
	out.Mul(out, new(big.Int).SetUint64(days))
	den := new(big.Int).Mul(basisPoints, big.NewInt(daysPerYear))
	return out.Quo(out, den)
}

// splitBps returns floor(amount × bps / 10000).
func splitBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, basisPoints)
}
