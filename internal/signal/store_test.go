package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id int64, ticker string, conf float64, at time.Time) Record {
	return Record{ID: id, Ticker: ticker, Action: ActionBuy, Confidence: conf, CreatedAt: at}
}

func TestStoreApplyInsertAndUpdate(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	inserted := s.Apply(rec(1, "NVDA", 0.60, now))
	assert.True(t, inserted)

	inserted = s.Apply(rec(1, "NVDA", 0.82, now))
	assert.False(t, inserted, "same id must update in place, not insert")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0.82, snap[0].Confidence)
}

func TestStoreUniqueIDs(t *testing.T) {
	s := NewStore(100)
	now := time.Now()

	ids := []int64{3, 1, 2, 3, 1, 5, 2}
	for i, id := range ids {
		s.Apply(rec(id, "AAPL", float64(i)/10, now.Add(time.Duration(id)*time.Second)))
	}

	seen := map[int64]bool{}
	for _, r := range s.Snapshot() {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
	assert.Equal(t, 4, s.Len())
}

func TestStoreOrdering(t *testing.T) {
	s := NewStore(10)
	base := time.Now()

	s.Apply(rec(1, "MSFT", 0.5, base))
	s.Apply(rec(3, "NVDA", 0.5, base.Add(2*time.Second)))
	s.Apply(rec(2, "AMD", 0.5, base.Add(time.Second)))
	s.Apply(rec(4, "TSLA", 0.5, base.Add(2*time.Second))) // same timestamp as id 3

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, []int64{4, 3, 2, 1}, []int64{snap[0].ID, snap[1].ID, snap[2].ID, snap[3].ID})
}

func TestStoreEviction(t *testing.T) {
	s := NewStore(3)
	base := time.Now()

	for i := int64(1); i <= 5; i++ {
		s.Apply(rec(i, "SPY", 0.5, base.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(2), s.Evictions())

	snap := s.Snapshot()
	assert.Equal(t, int64(5), snap[0].ID)
	assert.Equal(t, int64(3), snap[len(snap)-1].ID, "oldest surviving record")
}

func TestStoreTickerNormalized(t *testing.T) {
	s := NewStore(10)
	s.Apply(rec(1, " nvda ", 0.7, time.Now()))
	assert.Equal(t, "NVDA", s.Snapshot()[0].Ticker)
}

func TestReconcileSnapshotWinsWhenStoreIsStale(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Apply(rec(5, "NVDA", 0.50, now))
	issued := s.Seq()

	// No push activity between fetch issue and completion: snapshot wins.
	s.Reconcile([]Record{rec(5, "NVDA", 0.90, now)}, issued)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0.90, snap[0].Confidence)
}

func TestReconcilePushAfterFetchIssueWins(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Apply(rec(5, "NVDA", 0.50, now))
	issued := s.Seq()

	// Push-delivered update lands while the fetch is in flight.
	s.Apply(rec(5, "NVDA", 0.82, now))

	// The fetch completes with the pre-update payload; it must not win.
	s.Reconcile([]Record{rec(5, "NVDA", 0.50, now)}, issued)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0.82, snap[0].Confidence)
}

func TestReconcileKeepsRecordsNewerThanSnapshot(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Apply(rec(1, "AAPL", 0.6, now))
	issued := s.Seq()

	// Arrives via push after the fetch was issued; the snapshot cannot
	// know about it and must not remove it.
	s.Apply(rec(2, "NVDA", 0.8, now.Add(time.Second)))

	s.Reconcile([]Record{rec(1, "AAPL", 0.6, now)}, issued)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap[0].ID)
}

func TestReconcileDropsStaleRecordsAbsentFromSnapshot(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Apply(rec(1, "AAPL", 0.6, now))
	s.Apply(rec(2, "NVDA", 0.8, now.Add(time.Second)))
	issued := s.Seq()

	// Server no longer reports id 1: the store entry predates the fetch,
	// so the snapshot correction applies.
	s.Reconcile([]Record{rec(2, "NVDA", 0.8, now.Add(time.Second))}, issued)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].ID)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewStore(10)
	s.Apply(rec(1, "NVDA", 0.7, time.Now()))

	snap := s.Snapshot()
	snap[0].Confidence = 0.01
	snap[0].Ticker = "HACKED"

	fresh := s.Snapshot()
	assert.Equal(t, 0.7, fresh[0].Confidence)
	assert.Equal(t, "NVDA", fresh[0].Ticker)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"BUY", ActionBuy, true},
		{"sell", ActionSell, true},
		{"Hold", ActionHold, true},
		{"TRIM", ActionTrim, true},
		{"SHORT", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseAction(%q)", tt.in)
		if ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
