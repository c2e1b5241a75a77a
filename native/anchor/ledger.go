package anchor

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"anchorcore/crypto"
	"anchorcore/storage"
)

// Token kinds managed by the protocol. One TokenLedger instance exists per
// kind; the core never stores balances itself.
const (
	TokenStable = "AUSD"
	TokenBuffer = "ANC"
)

// ErrInsufficientBalance is surfaced by a ledger when the holder lacks the
// tokens to burn and is propagated unchanged by the engine.
var ErrInsufficientBalance = errors.New("anchor ledger: insufficient balance")

// TokenLedger is the balance book contract for a single token kind. The core
// calls Mint and Burn only inside a committed transition, never speculatively.
type TokenLedger interface {
	Mint(account crypto.Address, amount *big.Int) error
	Burn(account crypto.Address, amount *big.Int) error
	BalanceOf(account crypto.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
}

// --- In-memory ledger ---

// MemoryLedger keeps balances in a map. Intended for tests and ephemeral
// deployments.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	supply   *big.Int
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]*big.Int),
		supply:   big.NewInt(0),
	}
}

func ledgerKey(account crypto.Address) string {
	return string(account.Bytes())
}

func (l *MemoryLedger) Mint(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("anchor ledger: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(account)
	balance, ok := l.balances[key]
	if !ok {
		balance = big.NewInt(0)
	}
	l.balances[key] = new(big.Int).Add(balance, amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

func (l *MemoryLedger) Burn(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("anchor ledger: burn amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(account)
	balance, ok := l.balances[key]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[key] = new(big.Int).Sub(balance, amount)
	l.supply = new(big.Int).Sub(l.supply, amount)
	return nil
}

func (l *MemoryLedger) BalanceOf(account crypto.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[ledgerKey(account)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (l *MemoryLedger) TotalSupply() (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply), nil
}

// --- Persisted ledger ---

// KVLedger stores balances and supply in a key-value database so a ledger
// survives process restarts. Values are RLP-encoded decimal strings to match
// on-chain precision without native big-integer support in the codec.
type KVLedger struct {
	mu    sync.Mutex
	db    storage.Database
	token string
}

// NewKVLedger constructs a ledger for one token kind over the supplied
// database.
func NewKVLedger(db storage.Database, token string) *KVLedger {
	return &KVLedger{db: db, token: token}
}

func (l *KVLedger) supplyKey() []byte {
	return []byte(fmt.Sprintf("anchor/ledger/%s/supply", l.token))
}

func (l *KVLedger) balanceKey(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("anchor/ledger/%s/acct/%x", l.token, account.Bytes()))
}

func (l *KVLedger) load(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	var encoded string
	if err := rlp.DecodeBytes(raw, &encoded); err != nil {
		return nil, fmt.Errorf("anchor ledger: decode %s: %w", key, err)
	}
	value, ok := new(big.Int).SetString(encoded, 10)
	if !ok {
		return nil, fmt.Errorf("anchor ledger: corrupt amount %q", encoded)
	}
	return value, nil
}

func (l *KVLedger) store(key []byte, value *big.Int) error {
	encoded, err := rlp.EncodeToBytes(value.String())
	if err != nil {
		return err
	}
	return l.db.Put(key, encoded)
}

func (l *KVLedger) Mint(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("anchor ledger: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.load(l.balanceKey(account))
	if err != nil {
		return err
	}
	supply, err := l.load(l.supplyKey())
	if err != nil {
		return err
	}
	if err := l.store(l.balanceKey(account), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.store(l.supplyKey(), new(big.Int).Add(supply, amount))
}

func (l *KVLedger) Burn(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("anchor ledger: burn amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.load(l.balanceKey(account))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.load(l.supplyKey())
	if err != nil {
		return err
	}
	if err := l.store(l.balanceKey(account), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.store(l.supplyKey(), new(big.Int).Sub(supply, amount))
}

func (l *KVLedger) BalanceOf(account crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(l.balanceKey(account))
}

func (l *KVLedger) TotalSupply() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(l.supplyKey())
}
