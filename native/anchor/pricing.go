package anchor

import "math/big"

// ComputeBufferPrice derives the collateral value of one buffer unit from the
// supplied accounting tuple and price. The pool's unencumbered collateral is
// the pool minus the collateral required to redeem the entire stable supply at
// the current price; that surplus divided by the buffer supply is the buffer
// price. Before any buffer units exist the bootstrap price values one buffer
// unit at one reference unit, i.e. 1/price collateral units.
//
// The function is pure and exact: no rounding occurs until a caller converts
// the result into wei.
func ComputeBufferPrice(pool, stableSupply, bufferSupply *big.Int, price *big.Rat) (*big.Rat, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if bufferSupply == nil || bufferSupply.Sign() == 0 {
		return invRat(price), nil
	}
	debt := divIntRat(orZero(stableSupply), price)
	value := new(big.Rat).SetInt(orZero(pool))
	value.Sub(value, debt)
	if value.Sign() < 0 {
		return nil, ErrInsolvent
	}
	return value.Quo(value, new(big.Rat).SetInt(bufferSupply)), nil
}

// ComputeDebtRatio derives the fraction of the pool's reference-unit value
// claimed by outstanding stable debt. An empty pool with outstanding debt is
// reported as insolvent rather than dividing by zero; an empty pool with no
// debt is a zero ratio.
func ComputeDebtRatio(pool, stableSupply *big.Int, price *big.Rat) (*big.Rat, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	stable := orZero(stableSupply)
	if stable.Sign() == 0 {
		return new(big.Rat), nil
	}
	p := orZero(pool)
	if p.Sign() == 0 {
		return nil, ErrInsolvent
	}
	denom := mulIntRat(p, price)
	return new(big.Rat).Quo(new(big.Rat).SetInt(stable), denom), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
