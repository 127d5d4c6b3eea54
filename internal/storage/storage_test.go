package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewatch/internal/notify"
	"tradewatch/internal/signal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndQuerySignals(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		err := s.StoreSignal(signal.Record{
			ID:         i,
			Ticker:     "NVDA",
			Action:     signal.ActionBuy,
			Confidence: 0.7,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	recs, err := s.SignalsRange(base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].ID, "oldest first")
	assert.Equal(t, int64(2), recs[1].ID)
}

func TestStoreSignalOverwritesSameObservation(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StoreSignal(signal.Record{ID: 1, Ticker: "NVDA", Action: signal.ActionBuy, Confidence: 0.5, CreatedAt: at}))
	require.NoError(t, s.StoreSignal(signal.Record{ID: 1, Ticker: "NVDA", Action: signal.ActionBuy, Confidence: 0.9, CreatedAt: at}))

	recs, err := s.SignalsRange(at.Add(-time.Minute), at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.9, recs[0].Confidence)
}

func TestRecentNotifications(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := s.StoreNotification(notify.Notification{
			Kind:      notify.KindNewSignal,
			Message:   "msg",
			Severity:  notify.SeverityInfo,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	nots, err := s.RecentNotifications(3)
	require.NoError(t, err)
	require.Len(t, nots, 3)
	assert.Equal(t, base.Add(4*time.Second), nots[0].CreatedAt, "newest first")
}

func TestEmptyRanges(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.SignalsRange(time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, recs)

	nots, err := s.RecentNotifications(10)
	require.NoError(t, err)
	assert.Empty(t, nots)
}
