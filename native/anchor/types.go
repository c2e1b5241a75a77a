package anchor

import (
	"math/big"
	"time"

	"anchorcore/crypto"
)

// PriceSample carries a fixed-point exchange rate read from a PriceReference.
// The effective price in reference units per collateral unit is
// Rate / 10^Decimals.
type PriceSample struct {
	Rate      *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Valid reports whether the sample carries a usable positive rate.
func (s PriceSample) Valid() bool {
	return s.Rate != nil && s.Rate.Sign() > 0
}

// Rat converts the sample into an exact rational price. Returns nil when the
// sample is invalid.
func (s PriceSample) Rat() *big.Rat {
	if !s.Valid() {
		return nil
	}
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.Decimals)), nil)
	return new(big.Rat).SetFrac(new(big.Int).Set(s.Rate), shift)
}

// Clone returns a deep copy of the sample to prevent accidental mutations.
func (s PriceSample) Clone() PriceSample {
	clone := PriceSample{Decimals: s.Decimals, Timestamp: s.Timestamp, Source: s.Source}
	if s.Rate != nil {
		clone.Rate = new(big.Int).Set(s.Rate)
	}
	return clone
}

// State is a read-only snapshot of the accounting tuple guarded by the engine.
type State struct {
	Pool         *big.Int
	StableSupply *big.Int
	BufferSupply *big.Int
}

// FundReceipt reports a committed fund transition.
type FundReceipt struct {
	Account      crypto.Address
	CollateralIn *big.Int
	BufferMinted *big.Int
	BufferPrice  *big.Rat
	Sample       PriceSample
}

// DefundReceipt reports a committed defund transition.
type DefundReceipt struct {
	Account       crypto.Address
	BufferBurned  *big.Int
	CollateralOut *big.Int
	BufferPrice   *big.Rat
	Sample        PriceSample
}

// MintReceipt reports a committed stable-token issuance.
type MintReceipt struct {
	Account      crypto.Address
	CollateralIn *big.Int
	StableMinted *big.Int
	DebtRatio    *big.Rat
	Sample       PriceSample
}

// BurnReceipt reports a committed stable-token redemption.
type BurnReceipt struct {
	Account       crypto.Address
	StableBurned  *big.Int
	CollateralOut *big.Int
	DebtRatio     *big.Rat
	Sample        PriceSample
}
