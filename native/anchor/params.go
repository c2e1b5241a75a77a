package anchor

import (
	"fmt"
	"math/big"
	"strings"
)

var basisPoints = big.NewInt(10_000)

// Default thresholds applied when the operator does not override them.
const (
	defaultMaxDebtRatioBps = 9_000
)

var (
	defaultMinMintWei = mustBigInt("1000000000000000") // 0.001 collateral unit
	defaultMinBurnWei = mustBigInt("1000000000000000") // 0.001 stable unit
)

// Params groups the fixed protocol thresholds consumed by the invariant guard.
// Values are set at initialisation and never mutated at runtime.
type Params struct {
	// MinMintWei is the smallest collateral deposit accepted by Mint.
	MinMintWei *big.Int
	// MinBurnWei is the smallest stable amount accepted by Burn.
	MinBurnWei *big.Int
	// MaxDebtRatioBps caps the post-transition debt ratio for Mint and
	// Defund, expressed in basis points.
	MaxDebtRatioBps uint64
}

// DefaultParams returns the reference thresholds.
func DefaultParams() Params {
	return Params{
		MinMintWei:      new(big.Int).Set(defaultMinMintWei),
		MinBurnWei:      new(big.Int).Set(defaultMinBurnWei),
		MaxDebtRatioBps: defaultMaxDebtRatioBps,
	}
}

// Normalise applies defaults to unset fields and clamps the debt ceiling to
// 100%.
func (p Params) Normalise() Params {
	out := p.Clone()
	if out.MinMintWei == nil || out.MinMintWei.Sign() <= 0 {
		out.MinMintWei = new(big.Int).Set(defaultMinMintWei)
	}
	if out.MinBurnWei == nil || out.MinBurnWei.Sign() <= 0 {
		out.MinBurnWei = new(big.Int).Set(defaultMinBurnWei)
	}
	if out.MaxDebtRatioBps == 0 {
		out.MaxDebtRatioBps = defaultMaxDebtRatioBps
	}
	if out.MaxDebtRatioBps > 10_000 {
		out.MaxDebtRatioBps = 10_000
	}
	return out
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := Params{MaxDebtRatioBps: p.MaxDebtRatioBps}
	if p.MinMintWei != nil {
		clone.MinMintWei = new(big.Int).Set(p.MinMintWei)
	}
	if p.MinBurnWei != nil {
		clone.MinBurnWei = new(big.Int).Set(p.MinBurnWei)
	}
	return clone
}

// MaxDebtRatio converts the basis-point ceiling into an exact fraction.
func (p Params) MaxDebtRatio() *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).SetUint64(p.MaxDebtRatioBps), basisPoints)
}

// ParseWeiAmount converts a decimal string into a non-negative wei amount.
func ParseWeiAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("wei amount %q must not be negative", value)
	}
	return amount, nil
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
