package anchor

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"anchorcore/crypto"
	"anchorcore/observability"
)

const moduleName = "anchor"

// ModuleAccount returns the deterministic protocol-owned treasury identity
// under which the module presents itself to external systems.
func ModuleAccount() crypto.Address {
	return crypto.ModuleAddress(moduleName)
}

var (
	// ErrNotConfigured indicates the engine is missing a required collaborator.
	ErrNotConfigured = errors.New("anchor engine: collaborators not configured")
	// ErrInvalidAmount rejects nil, zero or negative operation amounts.
	ErrInvalidAmount = errors.New("anchor engine: amount must be positive")
	// ErrBelowMinimum rejects amounts under the configured floor, including
	// dust deposits too small to mint a single unit.
	ErrBelowMinimum = errors.New("anchor engine: amount below configured minimum")
	// ErrBufferRequired rejects stable issuance while no buffer supply exists.
	ErrBufferRequired = errors.New("anchor engine: buffer supply required before minting")
	// ErrDebtRatioExceeded rejects transitions that would push the debt ratio
	// above the configured ceiling.
	ErrDebtRatioExceeded = errors.New("anchor engine: debt ratio above configured ceiling")
	// ErrUndercollateralized blocks redemptions while outstanding debt exceeds
	// the pool's reference-unit value.
	ErrUndercollateralized = errors.New("anchor engine: outstanding debt exceeds collateral value")
	// ErrInsolvent signals a pool-zero or negative-buffer-value condition.
	ErrInsolvent = errors.New("anchor engine: pool cannot cover outstanding debt")
	// ErrInvalidPrice rejects non-positive price reference samples.
	ErrInvalidPrice = errors.New("anchor engine: price reference must be positive")
	// ErrProportionalDrift rejects transitions whose rounding would move the
	// buffer price by more than one minimal unit.
	ErrProportionalDrift = errors.New("anchor engine: transition would move the buffer price")
)

// Engine orchestrates the four protocol transitions over a single shared
// state tuple (pool, stableSupply, bufferSupply). The pool is owned by the
// engine; supplies live in the injected ledgers. Every operation runs as one
// indivisible read-compute-validate-commit sequence under the engine mutex.
type Engine struct {
	mu      sync.Mutex
	pool    *big.Int
	stable  TokenLedger
	buffer  TokenLedger
	price   PriceReference
	params  Params
	guard   Guard
	pauses  PauseView
	journal *Journal
	metrics *observability.ProtocolMetrics
	logger  *slog.Logger
	clock   func() time.Time

	// lastBufferPrice retains the most recently committed buffer price for
	// external inspection only; it is never used as pricing input.
	lastBufferPrice *big.Rat
}

// NewEngine constructs an engine wired to the two token ledgers and the price
// reference. Parameters are normalised once and fixed for the engine lifetime.
func NewEngine(stable, buffer TokenLedger, price PriceReference, params Params) *Engine {
	normalised := params.Normalise()
	return &Engine{
		pool:    big.NewInt(0),
		stable:  stable,
		buffer:  buffer,
		price:   price,
		params:  normalised,
		guard:   NewGuard(normalised),
		metrics: observability.Protocol(),
		logger:  slog.Default(),
		clock:   time.Now,
	}
}

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetJournal attaches the transition journal. Records are written after each
// committed transition; a journal write failure is logged but does not revert
// the committed state.
func (e *Engine) SetJournal(j *Journal) {
	if e == nil {
		return
	}
	e.journal = j
}

// SetLogger replaces the default structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Params returns a copy of the engine's fixed thresholds.
func (e *Engine) Params() Params {
	return e.params.Clone()
}

func (e *Engine) configured() error {
	if e == nil || e.stable == nil || e.buffer == nil || e.price == nil {
		return ErrNotConfigured
	}
	return nil
}

func (e *Engine) currentSample() (PriceSample, *big.Rat, error) {
	sample, err := e.price.Current()
	if err != nil {
		return PriceSample{}, nil, fmt.Errorf("anchor engine: price reference: %w", err)
	}
	rate := sample.Rat()
	if rate == nil || rate.Sign() <= 0 {
		return PriceSample{}, nil, ErrInvalidPrice
	}
	return sample, rate, nil
}

func (e *Engine) supplies() (stable, buffer *big.Int, err error) {
	stable, err = e.stable.TotalSupply()
	if err != nil {
		return nil, nil, fmt.Errorf("anchor engine: stable supply: %w", err)
	}
	buffer, err = e.buffer.TotalSupply()
	if err != nil {
		return nil, nil, fmt.Errorf("anchor engine: buffer supply: %w", err)
	}
	return orZero(stable), orZero(buffer), nil
}

// Fund deposits collateral and mints buffer tokens at the pre-transition
// buffer price. Funding only ever improves solvency, so no debt ceiling
// applies; the proportional-mint invariant is validated before commit.
func (e *Engine) Fund(account crypto.Address, collateralIn *big.Int) (*FundReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.clock()

	if err := e.configured(); err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	if err := pauseGuard(e.pauses, moduleName); err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	if !e.guard.PositiveAmount(collateralIn) {
		return nil, e.reject(TransitionFund, ErrInvalidAmount)
	}

	sample, rate, err := e.currentSample()
	if err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return nil, e.reject(TransitionFund, err)
	}

	priceBefore, err := ComputeBufferPrice(e.pool, stableSupply, bufferSupply, rate)
	if err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	if priceBefore.Sign() == 0 {
		// Debt exactly consumes the pool: the buffer is unpriceable, so no
		// deposit can be converted into buffer units.
		return nil, e.reject(TransitionFund, ErrInsolvent)
	}
	minted := floorRat(divIntRat(collateralIn, priceBefore))
	if minted.Sign() == 0 {
		return nil, e.reject(TransitionFund, ErrBelowMinimum)
	}

	newPool := new(big.Int).Add(e.pool, collateralIn)
	newBuffer := new(big.Int).Add(bufferSupply, minted)
	priceAfter, err := ComputeBufferPrice(newPool, stableSupply, newBuffer, rate)
	if err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	if !priceDriftWithin(priceBefore, priceAfter, newBuffer) {
		return nil, e.reject(TransitionFund, ErrProportionalDrift)
	}

	if err := e.buffer.Mint(account, minted); err != nil {
		return nil, e.reject(TransitionFund, err)
	}
	e.pool = newPool
	e.lastBufferPrice = priceAfter

	e.commit(TransitionFund, started, &TransitionRecord{
		Kind:         TransitionFund,
		Account:      accountBytes(account),
		Address:      accountString(account),
		CollateralIn: collateralIn,
		BufferDelta:  minted,
		Rate:         rate.FloatString(18),
		PoolAfter:    newPool,
	}, newPool, stableSupply, rate)

	return &FundReceipt{
		Account:      account,
		CollateralIn: new(big.Int).Set(collateralIn),
		BufferMinted: minted,
		BufferPrice:  priceBefore,
		Sample:       sample,
	}, nil
}

// Defund redeems buffer tokens for collateral at the pre-transition buffer
// price. Redemption shrinks the unencumbered pool, so the post-transition debt
// ratio must stay under the ceiling and the per-unit buffer price must not
// move.
func (e *Engine) Defund(account crypto.Address, bufferIn *big.Int) (*DefundReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.clock()

	if err := e.configured(); err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	if err := pauseGuard(e.pauses, moduleName); err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	if !e.guard.PositiveAmount(bufferIn) {
		return nil, e.reject(TransitionDefund, ErrInvalidAmount)
	}

	sample, rate, err := e.currentSample()
	if err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	if bufferIn.Cmp(bufferSupply) > 0 {
		return nil, e.reject(TransitionDefund, ErrInsufficientBalance)
	}

	priceBefore, err := ComputeBufferPrice(e.pool, stableSupply, bufferSupply, rate)
	if err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	collateralOut := floorRat(mulIntRat(bufferIn, priceBefore))

	newPool := new(big.Int).Sub(e.pool, collateralOut)
	if newPool.Sign() < 0 {
		return nil, e.reject(TransitionDefund, ErrInsolvent)
	}
	newBuffer := new(big.Int).Sub(bufferSupply, bufferIn)

	ratioAfter, err := ComputeDebtRatio(newPool, stableSupply, rate)
	if err != nil {
		// Draining the pool while debt is outstanding is a ceiling breach,
		// not an arithmetic failure.
		return nil, e.reject(TransitionDefund, ErrDebtRatioExceeded)
	}
	if !e.guard.WithinDebtCeiling(ratioAfter) {
		return nil, e.reject(TransitionDefund, ErrDebtRatioExceeded)
	}

	priceAfter := priceBefore
	if newBuffer.Sign() > 0 {
		priceAfter, err = ComputeBufferPrice(newPool, stableSupply, newBuffer, rate)
		if err != nil {
			return nil, e.reject(TransitionDefund, err)
		}
		if !priceDriftWithin(priceBefore, priceAfter, newBuffer) {
			return nil, e.reject(TransitionDefund, ErrProportionalDrift)
		}
	}

	if err := e.buffer.Burn(account, bufferIn); err != nil {
		return nil, e.reject(TransitionDefund, err)
	}
	e.pool = newPool
	e.lastBufferPrice = priceAfter

	e.commit(TransitionDefund, started, &TransitionRecord{
		Kind:          TransitionDefund,
		Account:       accountBytes(account),
		Address:       accountString(account),
		CollateralOut: collateralOut,
		BufferDelta:   new(big.Int).Neg(bufferIn),
		Rate:          rate.FloatString(18),
		PoolAfter:     newPool,
	}, newPool, stableSupply, rate)

	return &DefundReceipt{
		Account:       account,
		BufferBurned:  new(big.Int).Set(bufferIn),
		CollateralOut: collateralOut,
		BufferPrice:   priceBefore,
		Sample:        sample,
	}, nil
}

// Mint deposits collateral and issues stable tokens at the current price. A
// bootstrap buffer supply must exist before any debt can be issued, and the
// post-transition debt ratio must stay under the ceiling.
func (e *Engine) Mint(account crypto.Address, collateralIn *big.Int) (*MintReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.clock()

	if err := e.configured(); err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	if err := pauseGuard(e.pauses, moduleName); err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	if !e.guard.PositiveAmount(collateralIn) {
		return nil, e.reject(TransitionMint, ErrInvalidAmount)
	}
	if !e.guard.MeetsMintMinimum(collateralIn) {
		return nil, e.reject(TransitionMint, ErrBelowMinimum)
	}

	sample, rate, err := e.currentSample()
	if err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	if bufferSupply.Sign() == 0 {
		return nil, e.reject(TransitionMint, ErrBufferRequired)
	}

	stableMinted := floorRat(mulIntRat(collateralIn, rate))
	if stableMinted.Sign() == 0 {
		return nil, e.reject(TransitionMint, ErrBelowMinimum)
	}

	newPool := new(big.Int).Add(e.pool, collateralIn)
	newStable := new(big.Int).Add(stableSupply, stableMinted)
	ratioAfter, err := ComputeDebtRatio(newPool, newStable, rate)
	if err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	if !e.guard.WithinDebtCeiling(ratioAfter) {
		return nil, e.reject(TransitionMint, ErrDebtRatioExceeded)
	}

	if err := e.stable.Mint(account, stableMinted); err != nil {
		return nil, e.reject(TransitionMint, err)
	}
	e.pool = newPool
	if priceAfter, priceErr := ComputeBufferPrice(newPool, newStable, bufferSupply, rate); priceErr == nil {
		e.lastBufferPrice = priceAfter
	}

	e.commit(TransitionMint, started, &TransitionRecord{
		Kind:         TransitionMint,
		Account:      accountBytes(account),
		Address:      accountString(account),
		CollateralIn: collateralIn,
		StableDelta:  stableMinted,
		Rate:         rate.FloatString(18),
		PoolAfter:    newPool,
	}, newPool, newStable, rate)

	return &MintReceipt{
		Account:      account,
		CollateralIn: new(big.Int).Set(collateralIn),
		StableMinted: stableMinted,
		DebtRatio:    ratioAfter,
		Sample:       sample,
	}, nil
}

// Burn redeems stable tokens for collateral at the current price. Redemptions
// are blocked outright, never partially honoured, while the system is
// undercollateralized so early redeemers cannot drain the pool at the expense
// of remaining holders.
func (e *Engine) Burn(account crypto.Address, stableIn *big.Int) (*BurnReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.clock()

	if err := e.configured(); err != nil {
		return nil, e.reject(TransitionBurn, err)
	}
	if err := pauseGuard(e.pauses, moduleName); err != nil {
		return nil, e.reject(TransitionBurn, err)
	}
	if !e.guard.PositiveAmount(stableIn) {
		return nil, e.reject(TransitionBurn, ErrInvalidAmount)
	}
	if !e.guard.MeetsBurnMinimum(stableIn) {
		return nil, e.reject(TransitionBurn, ErrBelowMinimum)
	}

	sample, rate, err := e.currentSample()
	if err != nil {
		return nil, e.reject(TransitionBurn, err)
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return nil, e.reject(TransitionBurn, err)
	}

	ratioCurrent, err := ComputeDebtRatio(e.pool, stableSupply, rate)
	if err != nil {
		// Debt with no pool behind it is the degenerate undercollateralized
		// state; burns stay blocked.
		return nil, e.reject(TransitionBurn, ErrUndercollateralized)
	}
	if !e.guard.Collateralized(ratioCurrent) {
		return nil, e.reject(TransitionBurn, ErrUndercollateralized)
	}

	priceBefore, err := ComputeBufferPrice(e.pool, stableSupply, bufferSupply, rate)
	if err != nil {
		return nil, e.reject(TransitionBurn, err)
	}

	collateralOut := floorRat(divIntRat(stableIn, rate))
	newPool := new(big.Int).Sub(e.pool, collateralOut)
	if newPool.Sign() < 0 {
		return nil, e.reject(TransitionBurn, ErrInsolvent)
	}
	newStable := new(big.Int).Sub(stableSupply, stableIn)
	if newStable.Sign() < 0 {
		newStable = big.NewInt(0)
	}

	priceAfter, err := ComputeBufferPrice(newPool, newStable, bufferSupply, rate)
	if err != nil {
		return nil, e.reject(TransitionBurn, err)
	}
	if !priceDriftWithin(priceBefore, priceAfter, bufferSupply) {
		return nil, e.reject(TransitionBurn, ErrProportionalDrift)
	}

	if err := e.stable.Burn(account, stableIn); err != nil {
		return nil, e.reject(TransitionBurn, err)
	}
	e.pool = newPool
	e.lastBufferPrice = priceAfter

	e.commit(TransitionBurn, started, &TransitionRecord{
		Kind:          TransitionBurn,
		Account:       accountBytes(account),
		Address:       accountString(account),
		CollateralOut: collateralOut,
		StableDelta:   new(big.Int).Neg(stableIn),
		Rate:          rate.FloatString(18),
		PoolAfter:     newPool,
	}, newPool, newStable, rate)

	return &BurnReceipt{
		Account:       account,
		StableBurned:  new(big.Int).Set(stableIn),
		CollateralOut: collateralOut,
		DebtRatio:     ratioCurrent,
		Sample:        sample,
	}, nil
}

// CollateralPool returns the current pool size.
func (e *Engine) CollateralPool() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.pool)
}

// LatestBufferPrice recomputes the buffer price from the current state tuple
// and a fresh price sample. The read takes the engine lock but mutates
// nothing, so repeated calls without an intervening transition are identical
// for a stable reference.
func (e *Engine) LatestBufferPrice() (*big.Rat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configured(); err != nil {
		return nil, err
	}
	_, rate, err := e.currentSample()
	if err != nil {
		return nil, err
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return nil, err
	}
	return ComputeBufferPrice(e.pool, stableSupply, bufferSupply, rate)
}

// DebtRatio recomputes the debt ratio from the current state tuple and a fresh
// price sample.
func (e *Engine) DebtRatio() (*big.Rat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configured(); err != nil {
		return nil, err
	}
	_, rate, err := e.currentSample()
	if err != nil {
		return nil, err
	}
	stableSupply, _, err := e.supplies()
	if err != nil {
		return nil, err
	}
	return ComputeDebtRatio(e.pool, stableSupply, rate)
}

// LastCommittedBufferPrice returns the buffer price recorded by the most
// recent committed transition, or nil before any commit. Inspection only.
func (e *Engine) LastCommittedBufferPrice() *big.Rat {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastBufferPrice == nil {
		return nil
	}
	return new(big.Rat).Set(e.lastBufferPrice)
}

// State returns a snapshot of the accounting tuple.
func (e *Engine) State() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configured(); err != nil {
		return State{}, err
	}
	stableSupply, bufferSupply, err := e.supplies()
	if err != nil {
		return State{}, err
	}
	return State{
		Pool:         new(big.Int).Set(e.pool),
		StableSupply: stableSupply,
		BufferSupply: bufferSupply,
	}, nil
}

func (e *Engine) commit(op string, started time.Time, record *TransitionRecord, pool, stableSupply *big.Int, rate *big.Rat) {
	ratio := new(big.Rat)
	if computed, err := ComputeDebtRatio(pool, stableSupply, rate); err == nil {
		ratio = computed
	}
	record.DebtRatioAfter = ratio.FloatString(18)

	if e.journal != nil {
		if _, err := e.journal.Append(record); err != nil {
			e.logger.Error("transition journal append failed",
				"operation", op, "err", err)
		}
	}

	e.metrics.ObserveCommit(op, e.clock().Sub(started))
	e.metrics.SetDebtRatio(ratFloat(ratio))
	e.metrics.SetCollateralPool(ratFloat(new(big.Rat).SetInt(pool)))

	e.logger.Info("transition committed",
		"operation", op,
		"pool", pool.String(),
		"debtRatio", record.DebtRatioAfter,
	)
}

func (e *Engine) reject(op string, err error) error {
	e.metrics.ObserveRejection(op, rejectionReason(err))
	e.logger.Info("transition rejected", "operation", op, "reason", err.Error())
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrBufferRequired):
		return "buffer_required"
	case errors.Is(err, ErrDebtRatioExceeded):
		return "debt_ratio_exceeded"
	case errors.Is(err, ErrUndercollateralized):
		return "undercollateralized"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsolvent):
		return "insolvent"
	case errors.Is(err, ErrProportionalDrift):
		return "proportional_drift"
	case errors.Is(err, ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrNoFreshSample):
		return "price_unavailable"
	default:
		return "error"
	}
}

func accountBytes(account crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], account.Bytes())
	return out
}

func accountString(account crypto.Address) string {
	if len(account.Bytes()) != 20 {
		return ""
	}
	return account.String()
}
