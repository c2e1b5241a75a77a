package anchor

import "math/big"

// Guard centralises the threshold comparisons applied around transitions so
// each operation's gate is a single named predicate and boundary values can be
// probed precisely in tests.
type Guard struct {
	params Params
}

// NewGuard constructs a guard over normalised parameters.
func NewGuard(params Params) Guard {
	return Guard{params: params.Normalise()}
}

// PositiveAmount reports whether the amount is a usable positive quantity.
func (g Guard) PositiveAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// MeetsMintMinimum reports whether a collateral deposit clears the mint floor.
func (g Guard) MeetsMintMinimum(amount *big.Int) bool {
	if !g.PositiveAmount(amount) {
		return false
	}
	return amount.Cmp(g.params.MinMintWei) >= 0
}

// MeetsBurnMinimum reports whether a stable redemption clears the burn floor.
func (g Guard) MeetsBurnMinimum(amount *big.Int) bool {
	if !g.PositiveAmount(amount) {
		return false
	}
	return amount.Cmp(g.params.MinBurnWei) >= 0
}

// WithinDebtCeiling reports whether a debt ratio stays at or below the
// configured maximum.
func (g Guard) WithinDebtCeiling(ratio *big.Rat) bool {
	if ratio == nil {
		return false
	}
	return ratio.Cmp(g.params.MaxDebtRatio()) <= 0
}

// Collateralized reports whether outstanding debt is fully covered by the
// pool, i.e. the debt ratio does not exceed 100%.
func (g Guard) Collateralized(ratio *big.Rat) bool {
	if ratio == nil {
		return false
	}
	return ratio.Cmp(oneRat) <= 0
}
