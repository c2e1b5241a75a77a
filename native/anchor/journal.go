package anchor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"anchorcore/storage"
)

// Transition kinds recorded in the journal.
const (
	TransitionFund   = "fund"
	TransitionDefund = "defund"
	TransitionMint   = "mint"
	TransitionBurn   = "burn"
)

var (
	journalSeqKey       = []byte("anchor/journal/seq")
	journalRecordPrefix = "anchor/journal/rec/"
)

// TransitionRecord captures one committed transition for audit purposes.
// Replaying records in sequence order reconstructs the pool balance from
// historical inflows and outflows.
type TransitionRecord struct {
	Seq            uint64
	Kind           string
	Account        [20]byte
	Address        string
	CollateralIn   *big.Int
	CollateralOut  *big.Int
	StableDelta    *big.Int
	BufferDelta    *big.Int
	Rate           string
	PoolAfter      *big.Int
	DebtRatioAfter string
	CreatedAt      int64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *TransitionRecord) Copy() *TransitionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.CollateralIn != nil {
		clone.CollateralIn = new(big.Int).Set(r.CollateralIn)
	}
	if r.CollateralOut != nil {
		clone.CollateralOut = new(big.Int).Set(r.CollateralOut)
	}
	if r.StableDelta != nil {
		clone.StableDelta = new(big.Int).Set(r.StableDelta)
	}
	if r.BufferDelta != nil {
		clone.BufferDelta = new(big.Int).Set(r.BufferDelta)
	}
	if r.PoolAfter != nil {
		clone.PoolAfter = new(big.Int).Set(r.PoolAfter)
	}
	return &clone
}

type storedTransitionRecord struct {
	Seq            uint64
	Kind           string
	Account        [20]byte
	Address        string
	CollateralIn   string
	CollateralOut  string
	StableDelta    string
	BufferDelta    string
	Rate           string
	PoolAfter      string
	DebtRatioAfter string
	CreatedAt      uint64
}

// Journal persists transition records in the underlying key-value store with
// append-only, sequence-ordered semantics.
type Journal struct {
	mu    sync.Mutex
	db    storage.Database
	clock func() time.Time
}

// NewJournal constructs a journal bound to the provided database.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (j *Journal) SetClock(clock func() time.Time) {
	if j == nil || clock == nil {
		return
	}
	j.clock = clock
}

func journalRecordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", journalRecordPrefix, seq))
}

func (j *Journal) nextSeq() (uint64, error) {
	raw, err := j.db.Get(journalSeqKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var seq uint64
	if err := rlp.DecodeBytes(raw, &seq); err != nil {
		return 0, fmt.Errorf("journal: decode sequence: %w", err)
	}
	return seq, nil
}

// Append stores the record under the next sequence number and returns the
// assigned sequence.
func (j *Journal) Append(record *TransitionRecord) (uint64, error) {
	if j == nil {
		return 0, fmt.Errorf("journal not initialised")
	}
	if record == nil {
		return 0, fmt.Errorf("journal: record must not be nil")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	seq, err := j.nextSeq()
	if err != nil {
		return 0, err
	}
	stored := toStoredTransition(record)
	stored.Seq = seq
	if stored.CreatedAt == 0 {
		now := j.clock().UTC().Unix()
		if now > 0 {
			stored.CreatedAt = uint64(now)
		}
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return 0, err
	}
	if err := j.db.Put(journalRecordKey(seq), encoded); err != nil {
		return 0, err
	}
	next, err := rlp.EncodeToBytes(seq + 1)
	if err != nil {
		return 0, err
	}
	if err := j.db.Put(journalSeqKey, next); err != nil {
		return 0, err
	}
	return seq, nil
}

// Len reports the number of records in the journal.
func (j *Journal) Len() (uint64, error) {
	if j == nil {
		return 0, fmt.Errorf("journal not initialised")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq()
}

// Get retrieves a record by sequence number.
func (j *Journal) Get(seq uint64) (*TransitionRecord, bool, error) {
	if j == nil {
		return nil, false, fmt.Errorf("journal not initialised")
	}
	raw, err := j.db.Get(journalRecordKey(seq))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var stored storedTransitionRecord
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("journal: decode record %d: %w", seq, err)
	}
	record, err := fromStoredTransition(&stored)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// List returns up to limit records starting at startSeq in sequence order. A
// non-positive limit returns all remaining records.
func (j *Journal) List(startSeq uint64, limit int) ([]*TransitionRecord, error) {
	if j == nil {
		return nil, fmt.Errorf("journal not initialised")
	}
	total, err := j.Len()
	if err != nil {
		return nil, err
	}
	records := make([]*TransitionRecord, 0)
	for seq := startSeq; seq < total; seq++ {
		if limit > 0 && len(records) >= limit {
			break
		}
		record, ok, err := j.Get(seq)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("journal: missing record %d", seq)
		}
		records = append(records, record)
	}
	return records, nil
}

// ExportCSV writes the supplied records as CSV for offline reconciliation.
func ExportCSV(w io.Writer, records []*TransitionRecord) error {
	writer := csv.NewWriter(w)
	header := []string{
		"seq", "kind", "account", "collateralInWei", "collateralOutWei",
		"stableDeltaWei", "bufferDeltaWei", "rate", "poolAfterWei",
		"debtRatioAfter", "createdAt",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		row := []string{
			strconv.FormatUint(record.Seq, 10),
			record.Kind,
			record.Address,
			bigString(record.CollateralIn),
			bigString(record.CollateralOut),
			bigString(record.StableDelta),
			bigString(record.BufferDelta),
			record.Rate,
			bigString(record.PoolAfter),
			record.DebtRatioAfter,
			strconv.FormatInt(record.CreatedAt, 10),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toStoredTransition(record *TransitionRecord) storedTransitionRecord {
	stored := storedTransitionRecord{
		Seq:            record.Seq,
		Kind:           record.Kind,
		Account:        record.Account,
		Address:        record.Address,
		CollateralIn:   bigString(record.CollateralIn),
		CollateralOut:  bigString(record.CollateralOut),
		StableDelta:    bigString(record.StableDelta),
		BufferDelta:    bigString(record.BufferDelta),
		Rate:           record.Rate,
		PoolAfter:      bigString(record.PoolAfter),
		DebtRatioAfter: record.DebtRatioAfter,
	}
	if record.CreatedAt > 0 {
		stored.CreatedAt = uint64(record.CreatedAt)
	}
	return stored
}

func fromStoredTransition(stored *storedTransitionRecord) (*TransitionRecord, error) {
	record := &TransitionRecord{
		Seq:            stored.Seq,
		Kind:           stored.Kind,
		Account:        stored.Account,
		Address:        stored.Address,
		Rate:           stored.Rate,
		DebtRatioAfter: stored.DebtRatioAfter,
	}
	var err error
	if record.CollateralIn, err = parseStoredAmount(stored.CollateralIn); err != nil {
		return nil, err
	}
	if record.CollateralOut, err = parseStoredAmount(stored.CollateralOut); err != nil {
		return nil, err
	}
	if record.StableDelta, err = parseStoredAmount(stored.StableDelta); err != nil {
		return nil, err
	}
	if record.BufferDelta, err = parseStoredAmount(stored.BufferDelta); err != nil {
		return nil, err
	}
	if record.PoolAfter, err = parseStoredAmount(stored.PoolAfter); err != nil {
		return nil, err
	}
	if stored.CreatedAt > uint64(1<<62) {
		return nil, fmt.Errorf("journal: created at overflow")
	}
	record.CreatedAt = int64(stored.CreatedAt)
	return record, nil
}

func parseStoredAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("journal: corrupt amount %q", value)
	}
	return parsed, nil
}
