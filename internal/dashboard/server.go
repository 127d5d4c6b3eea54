// Package dashboard serves the oversight UI surface: JSON endpoints over the
// stream client's state, backend summary statistics, the local history
// archive, and a websocket that pushes state snapshots to connected browsers.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/backend"
	"tradewatch/internal/storage"
	"tradewatch/internal/stream"
)

// Server exposes the dashboard HTTP and websocket endpoints.
type Server struct {
	client  *stream.Client
	backend *backend.Client
	archive *storage.Store // optional, may be nil

	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast   chan stream.Snapshot
	stop        chan struct{}
	unsubscribe func()

	mu        sync.Mutex
	isRunning bool
}

// NewServer creates a dashboard server on the given port. archive may be nil
// when no local history is configured.
func NewServer(client *stream.Client, api *backend.Client, archive *storage.Store, port int) *Server {
	s := &Server{
		client:    client,
		backend:   api,
		archive:   archive,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan stream.Snapshot, 100),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/api/state", s.handleState).Methods("GET")
	r.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/api/notifications", s.handleNotifications).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the route handler (used by tests).
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving and subscribes to stream updates for websocket fanout.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	// The subscriber callback runs on the stream loop; it must never block.
	s.unsubscribe = s.client.Subscribe(func(snap stream.Snapshot) {
		select {
		case s.broadcast <- snap:
		default:
			// Channel full, skip this update
		}
	})

	go s.clientBroadcaster()

	go func() {
		log.Info().Str("address", s.server.Addr).Msg("starting dashboard server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dashboard server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop shuts the server down and closes all websocket clients.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stop)

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown dashboard server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("dashboard stopped")
	return nil
}

func (s *Server) clientBroadcaster() {
	for {
		select {
		case snap := <-s.broadcast:
			s.broadcastToClients(snap)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastToClients(snap stream.Snapshot) {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(snap); err != nil {
			log.Debug().Err(err).Msg("dropping dashboard websocket client")
			s.removeClient(c)
		}
	}
}

func (s *Server) removeClient(c *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	c.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	// Push the current state immediately so the page renders without
	// waiting for the next update.
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(s.client.State()); err != nil {
		s.removeClient(conn)
		return
	}

	// Reads are only used to detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(conn)
				return
			}
		}
	}()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.client.State())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.SignalStats(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("stats fetch failed")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "history archive not configured", http.StatusNotFound)
		return
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		end = t
	}

	recs, err := s.archive.SignalsRange(start, end)
	if err != nil {
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "history archive not configured", http.StatusNotFound)
		return
	}
	nots, err := s.archive.RecentNotifications(50)
	if err != nil {
		http.Error(w, "notification query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, nots)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>tradewatch</title></head>
<body>
<h1>tradewatch</h1>
<p>Connection: <span id="conn">-</span></p>
<table id="signals" border="1">
<tr><th>ID</th><th>Ticker</th><th>Action</th><th>Confidence</th><th>Created</th></tr>
</table>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const snap = JSON.parse(ev.data);
  document.getElementById("conn").textContent = snap.connection;
  const table = document.getElementById("signals");
  while (table.rows.length > 1) table.deleteRow(1);
  for (const s of snap.signals) {
    const row = table.insertRow();
    row.insertCell().textContent = s.id;
    row.insertCell().textContent = s.ticker;
    row.insertCell().textContent = s.action;
    row.insertCell().textContent = (s.confidence * 100).toFixed(0) + "%";
    row.insertCell().textContent = s.createdAt;
  }
};
</script>
</body>
</html>
`
