package anchor

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"anchorcore/storage"
)

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func sampleRecord(kind string, seed byte) *TransitionRecord {
	addr := makeAddress(seed)
	var account [20]byte
	copy(account[:], addr.Bytes())
	return &TransitionRecord{
		Kind:         kind,
		Account:      account,
		Address:      addr.String(),
		CollateralIn: wei(1),
		BufferDelta:  wei(250),
		Rate:         big.NewRat(250, 1).FloatString(18),
		PoolAfter:    wei(1),
	}
}

func TestJournalAppendAssignsSequence(t *testing.T) {
	journal := NewJournal(storage.NewMemDB())
	journal.SetClock(fixedClock(1_700_000_000))

	seq, err := journal.Append(sampleRecord(TransitionFund, 0x01))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected first sequence 0, got %d", seq)
	}
	seq, err = journal.Append(sampleRecord(TransitionMint, 0x02))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected second sequence 1, got %d", seq)
	}

	total, err := journal.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected length 2, got %d", total)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	journal := NewJournal(storage.NewMemDB())
	journal.SetClock(fixedClock(1_700_000_123))

	original := sampleRecord(TransitionDefund, 0x03)
	original.CollateralIn = nil
	original.CollateralOut = wei(1)
	original.BufferDelta = new(big.Int).Neg(wei(250))
	original.DebtRatioAfter = big.NewRat(4, 5).FloatString(18)

	if _, err := journal.Append(original); err != nil {
		t.Fatalf("append: %v", err)
	}

	record, ok, err := journal.Get(0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("record not found")
	}
	if record.Kind != TransitionDefund {
		t.Fatalf("kind mismatch: %s", record.Kind)
	}
	if record.Address != original.Address {
		t.Fatalf("address mismatch: %s vs %s", record.Address, original.Address)
	}
	if record.CollateralOut == nil || record.CollateralOut.Cmp(wei(1)) != 0 {
		t.Fatalf("collateral out mismatch: %v", record.CollateralOut)
	}
	if record.BufferDelta.Cmp(new(big.Int).Neg(wei(250))) != 0 {
		t.Fatalf("buffer delta mismatch: %s", record.BufferDelta)
	}
	if record.CreatedAt != 1_700_000_123 {
		t.Fatalf("expected clock timestamp, got %d", record.CreatedAt)
	}
}

func TestJournalGetMissing(t *testing.T) {
	journal := NewJournal(storage.NewMemDB())

	_, ok, err := journal.Get(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no record at sequence 7")
	}
}

func TestJournalList(t *testing.T) {
	journal := NewJournal(storage.NewMemDB())
	journal.SetClock(fixedClock(1_700_000_000))

	kinds := []string{TransitionFund, TransitionMint, TransitionDefund, TransitionBurn}
	for i, kind := range kinds {
		if _, err := journal.Append(sampleRecord(kind, byte(i+1))); err != nil {
			t.Fatalf("append %s: %v", kind, err)
		}
	}

	records, err := journal.List(1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Kind != TransitionMint || records[1].Kind != TransitionDefund {
		t.Fatalf("unexpected window: %s, %s", records[0].Kind, records[1].Kind)
	}

	all, err := journal.List(0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != len(kinds) {
		t.Fatalf("expected %d records, got %d", len(kinds), len(all))
	}

	tail, err := journal.List(10, 5)
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(tail) != 0 {
		t.Fatalf("expected empty window, got %d records", len(tail))
	}
}

func TestExportCSV(t *testing.T) {
	journal := NewJournal(storage.NewMemDB())
	journal.SetClock(fixedClock(1_700_000_000))

	if _, err := journal.Append(sampleRecord(TransitionFund, 0x01)); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := journal.List(0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var out strings.Builder
	if err := ExportCSV(&out, records); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "seq,kind,account") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], TransitionFund) {
		t.Fatalf("row missing kind: %s", lines[1])
	}
}
