package experience

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecord(i int) Record {
	return Record{
		Recipient: fmt.Sprintf("r-%d", i%7),
		Amount:    decimal.NewFromInt(int64(10 + i)),
		Purpose:   "api service payment",
		Success:   i%3 != 0,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

func TestStoreNeverExceedsCapacity(t *testing.T) {
	s := NewStore(DefaultCapacity)
	for i := 0; i < 2500; i++ {
		s.Append(makeRecord(i))
		require.LessOrEqual(t, s.Len(), DefaultCapacity)
	}
}

func TestStoreEvictsOldestHalf(t *testing.T) {
	s := NewStore(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		s.Append(makeRecord(i))
	}
	require.Equal(t, DefaultCapacity, s.Len())

	s.Append(makeRecord(DefaultCapacity))
	require.Equal(t, DefaultCapacity/2, s.Len())

	snap := s.Snapshot()
	// most recent record is the last one appended
	last := snap.At(snap.Len() - 1)
	assert.True(t, last.Amount.Equal(decimal.NewFromInt(int64(10+DefaultCapacity))))
	// oldest retained is record 501
	assert.True(t, snap.At(0).Amount.Equal(decimal.NewFromInt(int64(10+DefaultCapacity/2+1))))
}

func TestSnapshotIsolatedFromLaterAppends(t *testing.T) {
	s := NewStore(10)
	s.Append(makeRecord(1))
	snap := s.Snapshot()
	s.Append(makeRecord(2))

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, s.Len())
}

func TestSnapshotRecentAndRecipient(t *testing.T) {
	s := NewStore(100)
	for i := 0; i < 30; i++ {
		s.Append(makeRecord(i))
	}
	snap := s.Snapshot()

	recent := snap.Recent(20)
	require.Len(t, recent, 20)
	assert.True(t, recent[19].Amount.Equal(decimal.NewFromInt(39)))

	assert.Len(t, snap.Recent(100), 30)
	assert.Nil(t, snap.Recent(0))

	forR0 := snap.ForRecipient("r-0")
	for _, r := range forR0 {
		assert.Equal(t, "r-0", r.Recipient)
	}
	assert.NotEmpty(t, forR0)
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 0.5, SuccessRate(nil, 0.5))
	recs := []Record{{Success: true}, {Success: false}, {Success: true}, {Success: true}}
	assert.InDelta(t, 0.75, SuccessRate(recs, 0), 1e-12)
}
