package anchor

import (
	"errors"
	"math/big"
	"testing"

	"anchorcore/storage"
)

func TestMemoryLedgerMintAndBurn(t *testing.T) {
	ledger := NewMemoryLedger()
	account := makeAddress(0x11)

	if err := ledger.Mint(account, wei(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(5)) != 0 {
		t.Fatalf("expected balance 5 units, got %s", balance)
	}

	if err := ledger.Burn(account, wei(2)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, err = ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(3)) != 0 {
		t.Fatalf("expected balance 3 units, got %s", balance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(wei(3)) != 0 {
		t.Fatalf("expected supply 3 units, got %s", supply)
	}
}

func TestMemoryLedgerBurnInsufficient(t *testing.T) {
	ledger := NewMemoryLedger()
	account := makeAddress(0x11)

	if err := ledger.Mint(account, wei(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(account, wei(2)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Burn(makeAddress(0x22), wei(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for empty account, got %v", err)
	}
}

func TestMemoryLedgerIsolatesBalances(t *testing.T) {
	ledger := NewMemoryLedger()
	a := makeAddress(0x11)
	b := makeAddress(0x22)

	if err := ledger.Mint(a, wei(4)); err != nil {
		t.Fatalf("mint a: %v", err)
	}
	if err := ledger.Mint(b, wei(6)); err != nil {
		t.Fatalf("mint b: %v", err)
	}

	balance, err := ledger.BalanceOf(b)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(6)) != 0 {
		t.Fatalf("expected balance 6 units, got %s", balance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(wei(10)) != 0 {
		t.Fatalf("expected supply 10 units, got %s", supply)
	}
}

func TestKVLedgerPersistsAcrossInstances(t *testing.T) {
	db := storage.NewMemDB()
	account := makeAddress(0x33)

	first := NewKVLedger(db, TokenStable)
	if err := first.Mint(account, wei(7)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	second := NewKVLedger(db, TokenStable)
	balance, err := second.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(7)) != 0 {
		t.Fatalf("expected persisted balance 7 units, got %s", balance)
	}
	supply, err := second.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(wei(7)) != 0 {
		t.Fatalf("expected persisted supply 7 units, got %s", supply)
	}
}

func TestKVLedgerTokensAreNamespaced(t *testing.T) {
	db := storage.NewMemDB()
	account := makeAddress(0x44)

	stable := NewKVLedger(db, TokenStable)
	buffer := NewKVLedger(db, TokenBuffer)
	if err := stable.Mint(account, wei(9)); err != nil {
		t.Fatalf("mint stable: %v", err)
	}

	balance, err := buffer.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("buffer ledger must be empty, got %s", balance)
	}
	supply, err := buffer.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Sign() != 0 {
		t.Fatalf("buffer supply must be zero, got %s", supply)
	}
}

func TestKVLedgerBurnInsufficient(t *testing.T) {
	db := storage.NewMemDB()
	ledger := NewKVLedger(db, TokenBuffer)
	account := makeAddress(0x55)

	if err := ledger.Mint(account, wei(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(account, wei(3)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(1)) != 0 {
		t.Fatalf("failed burn must not change balance, got %s", balance)
	}
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	ledger := NewMemoryLedger()
	account := makeAddress(0x66)

	if err := ledger.Mint(account, nil); err == nil {
		t.Fatalf("expected error for nil mint amount")
	}
	if err := ledger.Mint(account, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative mint amount")
	}
	if err := ledger.Burn(account, big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero burn amount")
	}
}

var (
	_ TokenLedger = (*MemoryLedger)(nil)
	_ TokenLedger = (*KVLedger)(nil)
)
