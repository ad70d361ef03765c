package experience

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCapacity is the hard cap on stored records.
const DefaultCapacity = 1000

// #region record
// Record is one settled payment outcome.
type Record struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Purpose   string          `json:"purpose"`
	Success   bool            `json:"success"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// AmountFloat returns the amount as float64.
func (r Record) AmountFloat() float64 {
	f, _ := r.Amount.Float64()
	return f
}

// #endregion record

// #region store
// Store is an append-only, capacity-bounded history. When an append pushes
// it past capacity, only the most recent capacity/2 records are retained.
type Store struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

// NewStore creates a store. A non-positive capacity falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append adds a record, evicting the oldest half if the cap is exceeded.
func (s *Store) Append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		keep := s.capacity / 2
		trimmed := make([]Record, keep)
		copy(trimmed, s.records[len(s.records)-keep:])
		s.records = trimmed
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Capacity returns the configured cap.
func (s *Store) Capacity() int {
	return s.capacity
}

// Snapshot returns an immutable copy of the current history.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Record, len(s.records))
	copy(cp, s.records)
	return Snapshot{records: cp}
}

// #endregion store

// #region snapshot
// Snapshot is a read-only view of the history taken before scoring. Records
// appended afterwards are never visible through it.
type Snapshot struct {
	records []Record
}

// NewSnapshot wraps records into a snapshot, copying them.
func NewSnapshot(records []Record) Snapshot {
	cp := make([]Record, len(records))
	copy(cp, records)
	return Snapshot{records: cp}
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int { return len(s.records) }

// At returns the i-th record, oldest first.
func (s Snapshot) At(i int) Record { return s.records[i] }

// Recent returns up to n most recent records, oldest first.
func (s Snapshot) Recent(n int) []Record {
	if n <= 0 || len(s.records) == 0 {
		return nil
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// ForRecipient returns every record addressed to recipient.
func (s Snapshot) ForRecipient(recipient string) []Record {
	var out []Record
	for _, r := range s.records {
		if r.Recipient == recipient {
			out = append(out, r)
		}
	}
	return out
}

// SuccessRate returns the fraction of successful records, or fallback when empty.
func SuccessRate(records []Record, fallback float64) float64 {
	if len(records) == 0 {
		return fallback
	}
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

// #endregion snapshot
