package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(AccountPrefix, raw)

	encoded := addr.String()
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("payload mismatch: %x vs %x", decoded.Bytes(), raw)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("prefix mismatch: %s", decoded.Prefix())
	}
}

func TestModuleAddressesKeepPrefix(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 0xFF
	addr := NewAddress(ModulePrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != ModulePrefix {
		t.Fatalf("prefix mismatch: %s", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-a-bech32-string"); err == nil {
		t.Fatal("expected error for malformed address")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestDecodeAddressRejectsWrongPayloadLength(t *testing.T) {
	// A perfectly valid bech32 string whose payload is not 20 bytes must be
	// rejected with an error, not a panic.
	short := make([]byte, 10)
	for i := range short {
		short[i] = byte(i)
	}
	conv, err := bech32.ConvertBits(short, 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	encoded, err := bech32.Encode(string(AccountPrefix), conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := DecodeAddress(encoded); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	first := ModuleAddress("anchor")
	second := ModuleAddress("  Anchor ")

	if first.String() != second.String() {
		t.Fatalf("derivation must normalise the module name: %s vs %s", first, second)
	}
	if first.Prefix() != ModulePrefix {
		t.Fatalf("expected module prefix, got %s", first.Prefix())
	}
	if len(first.Bytes()) != 20 {
		t.Fatalf("expected 20-byte payload, got %d", len(first.Bytes()))
	}
	if !strings.HasPrefix(first.String(), string(ModulePrefix)) {
		t.Fatalf("encoded address must carry the module prefix: %s", first)
	}

	decoded, err := DecodeAddress(first.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), first.Bytes()) {
		t.Fatalf("round trip mismatch")
	}
	if ModuleAddress("anchor").String() == ModuleAddress("other").String() {
		t.Fatal("distinct modules must derive distinct accounts")
	}
}

func TestKeyDerivation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	addr := key.PubKey().Address()
	if len(addr.Bytes()) != 20 {
		t.Fatalf("expected 20-byte address payload, got %d", len(addr.Bytes()))
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatalf("restored key derives a different address")
	}
}
