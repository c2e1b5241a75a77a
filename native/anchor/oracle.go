package anchor

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceReference resolves the current exchange rate of the collateral asset
// against the reference unit. The core reads a fresh sample inside every
// guarded transition and never caches the result as pricing input.
type PriceReference interface {
	Current() (PriceSample, error)
}

// ErrNoFreshSample indicates that no registered reference produced a sample
// within the configured freshness window.
var ErrNoFreshSample = fmt.Errorf("anchor: no fresh price sample available")

// ReferenceAggregator consults registered price references in priority order
// until a fresh, positive sample is obtained.
type ReferenceAggregator struct {
	mu       sync.RWMutex
	priority []string
	refs     map[string]PriceReference
	maxAge   time.Duration
}

// NewReferenceAggregator constructs an aggregator with the provided priority
// ordering and freshness window. A zero maxAge disables freshness filtering.
func NewReferenceAggregator(priority []string, maxAge time.Duration) *ReferenceAggregator {
	return &ReferenceAggregator{
		priority: append([]string{}, priority...),
		refs:     make(map[string]PriceReference),
		maxAge:   maxAge,
	}
}

// SetMaxAge updates the freshness window used when filtering samples.
func (a *ReferenceAggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// Register adds or replaces a reference under the supplied identifier.
// Identifiers are stored in lowercase so lookups remain consistent regardless
// of configuration casing.
func (a *ReferenceAggregator) Register(name string, ref PriceReference) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs[trimmed] = ref
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Current returns the first fresh sample produced by the registered references
// in priority order.
func (a *ReferenceAggregator) Current() (PriceSample, error) {
	if a == nil {
		return PriceSample{}, fmt.Errorf("reference aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		ref := a.refs[strings.ToLower(name)]
		a.mu.RUnlock()
		if ref == nil {
			continue
		}
		sample, err := ref.Current()
		if err != nil {
			lastErr = err
			continue
		}
		if !sample.Valid() {
			lastErr = fmt.Errorf("reference %s returned invalid rate", name)
			continue
		}
		if maxAge > 0 && sample.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshSample
			continue
		}
		result := sample.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshSample
	}
	return PriceSample{}, lastErr
}

// ManualReference provides an in-memory price reference used for tests and
// manual overrides during incident response.
type ManualReference struct {
	mu     sync.RWMutex
	sample PriceSample
	set    bool
}

// NewManualReference constructs an empty manual reference.
func NewManualReference() *ManualReference {
	return &ManualReference{}
}

// Set stores the supplied fixed-point rate and decimal shift.
func (m *ManualReference) Set(rate *big.Int, decimals uint8, ts time.Time) {
	if m == nil || rate == nil {
		return
	}
	m.mu.Lock()
	m.sample = PriceSample{
		Rate:      new(big.Int).Set(rate),
		Decimals:  decimals,
		Timestamp: ts,
		Source:    "manual",
	}
	m.set = true
	m.mu.Unlock()
}

// SetDecimal parses and stores a decimal rate string at the given shift.
func (m *ManualReference) SetDecimal(rate string, decimals uint8, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual reference not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual reference: rate required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return fmt.Errorf("manual reference: invalid rate %q", rate)
	}
	if parsed.Sign() <= 0 {
		return fmt.Errorf("manual reference: rate must be positive")
	}
	m.Set(parsed, decimals, ts)
	return nil
}

// Current returns the stored sample.
func (m *ManualReference) Current() (PriceSample, error) {
	if m == nil {
		return PriceSample{}, fmt.Errorf("manual reference not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return PriceSample{}, fmt.Errorf("manual reference: %w", ErrNoFreshSample)
	}
	return m.sample.Clone(), nil
}
