package anchor

import "math/big"

var oneRat = big.NewRat(1, 1)

// floorRat truncates a non-negative rational down to an integer wei amount.
func floorRat(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// mulIntRat multiplies an integer amount by a rational factor without loss.
func mulIntRat(amount *big.Int, factor *big.Rat) *big.Rat {
	if amount == nil || factor == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Mul(new(big.Rat).SetInt(amount), factor)
}

// divIntRat divides an integer amount by a rational divisor without loss.
// Returns nil when the divisor is zero.
func divIntRat(amount *big.Int, divisor *big.Rat) *big.Rat {
	if amount == nil || divisor == nil || divisor.Sign() == 0 {
		return nil
	}
	return new(big.Rat).Quo(new(big.Rat).SetInt(amount), divisor)
}

// invRat returns the multiplicative inverse of a positive rational.
func invRat(r *big.Rat) *big.Rat {
	if r == nil || r.Sign() == 0 {
		return nil
	}
	return new(big.Rat).Inv(r)
}

// priceDriftWithin bounds the buffer price movement across a transition to the
// value contributed by a single minimal unit. Floor rounding on minted and
// redeemed amounts can shift the per-unit price by at most one wei of
// collateral spread over the resulting supply, so the drift scaled by the
// post-transition supply must stay below one wei or one buffer unit's value,
// whichever is larger.
func priceDriftWithin(before, after *big.Rat, supplyAfter *big.Int) bool {
	if before == nil || after == nil {
		return false
	}
	if supplyAfter == nil || supplyAfter.Sign() == 0 {
		return true
	}
	drift := new(big.Rat).Sub(after, before)
	drift.Abs(drift)
	drift.Mul(drift, new(big.Rat).SetInt(supplyAfter))
	limit := oneRat
	if before.Cmp(limit) > 0 {
		limit = before
	}
	return drift.Cmp(limit) <= 0
}

// ratFloat renders a rational as a float64 for gauge export. Precision loss is
// acceptable for observability output only.
func ratFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}
