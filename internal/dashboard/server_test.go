package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewatch/internal/backend"
	"tradewatch/internal/signal"
	"tradewatch/internal/storage"
	"tradewatch/internal/stream"
)

func newTestServer(t *testing.T, archive *storage.Store) (*Server, *httptest.Server) {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/signals/stats":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"total":3,"by_action":{"BUY":2,"SELL":1},"avg_confidence":0.71}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)

	client := stream.NewClient(stream.Config{StreamURL: "ws://unused"})
	s := NewServer(client, backend.New(api.URL, time.Second), archive, 0)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestStateEndpoint(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap struct {
		Connection string          `json:"connection"`
		Signals    []signal.Record `json:"signals"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "disconnected", snap.Connection)
	assert.Empty(t, snap.Signals)
}

func TestStatsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats backend.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByAction["BUY"])
}

func TestHistoryEndpoint(t *testing.T) {
	archive, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	at := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, archive.StoreSignal(signal.Record{
		ID: 42, Ticker: "NVDA", Action: signal.ActionBuy, Confidence: 0.8, CreatedAt: at,
	}))

	_, srv := newTestServer(t, archive)

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recs []signal.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].ID)
}

func TestHistoryEndpointBadTimestamp(t *testing.T) {
	archive, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	_, srv := newTestServer(t, archive)

	resp, err := http.Get(srv.URL + "/api/history?from=not-a-time")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryWithoutArchive(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketSendsInitialSnapshot(t *testing.T) {
	_, srv := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap struct {
		Connection string `json:"connection"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "disconnected", snap.Connection)
}

func TestIndexServesPage(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
