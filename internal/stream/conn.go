// Package stream implements the resilient live-signal stream client: a
// bounded-retry websocket connection manager, a push event decoder, and the
// client facade that merges push events with periodic refresh fetches.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnState is the connection lifecycle state. Exhausted is terminal and is
// only left by an explicit Open, which resets the retry budget.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
	Exhausted
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string form for API consumers.
func (s ConnState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Default retry policy: fixed-interval reconnection, no backoff.
const (
	DefaultMaxAttempts       = 10
	DefaultReconnectInterval = 3 * time.Second
)

// RetryBudget bounds reconnection. Attempts resets to zero on a successful
// connection and on an explicit Open; once Attempts reaches Max the manager
// enters Exhausted and stops.
type RetryBudget struct {
	Attempts int
	Max      int
	Interval time.Duration
}

func (b RetryBudget) withDefaults() RetryBudget {
	if b.Max <= 0 {
		b.Max = DefaultMaxAttempts
	}
	if b.Interval <= 0 {
		b.Interval = DefaultReconnectInterval
	}
	return b
}

// Conn is one live push channel. ReadMessage blocks until a frame arrives or
// the connection fails; Close must unblock a pending read.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a push channel. Tests inject scripted dialers so the retry
// state machine runs without a network.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials a gorilla/websocket connection.
type WSDialer struct{}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(512 * 1024)
	return &wsConn{conn: conn}, nil
}

// ConnEvent is delivered to the owner's event loop: a state transition
// (Transition true) or an inbound frame.
type ConnEvent struct {
	State      ConnState
	Transition bool
	Frame      []byte
}

// Manager owns the lifecycle of one logical push connection. It dials,
// reads, and retries on a fixed interval up to the budget, reporting every
// transition and frame through a single events channel so the consumer can
// process them on one loop. Open is idempotent; Close cancels any pending
// reconnect timer and in-flight dial, and guarantees no events are emitted
// afterward.
type Manager struct {
	url    string
	dialer Dialer
	events chan<- ConnEvent

	mu     sync.Mutex
	budget RetryBudget
	state  ConnState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager in the Disconnected state. Events are emitted
// on the provided channel until Close.
func NewManager(url string, dialer Dialer, budget RetryBudget, events chan<- ConnEvent) *Manager {
	if dialer == nil {
		dialer = WSDialer{}
	}
	return &Manager{
		url:    url,
		dialer: dialer,
		budget: budget.withDefaults(),
		events: events,
		state:  Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Budget returns a copy of the retry budget for inspection.
func (m *Manager) Budget() RetryBudget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budget
}

// Open starts the connection loop. Calling it while Connecting, Connected,
// or Reconnecting is a no-op. From Exhausted it resets Attempts to zero and
// starts over.
func (m *Manager) Open() {
	m.mu.Lock()
	switch m.state {
	case Connecting, Connected, Reconnecting:
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.budget.Attempts = 0
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go m.run(ctx, done)
}

// Close tears down any live channel, cancels pending reconnect timers, and
// returns once the connection loop has stopped. No state transition or frame
// is emitted after Close returns. Safe to call from any state.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.Lock()
	m.state = Disconnected
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		m.transition(ctx, Connecting)
		log.Debug().Str("url", m.url).Msg("dialing signal stream")

		conn, err := m.dialer.Dial(ctx, m.url)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("signal stream dial failed")
			if !m.retry(ctx) {
				return
			}
			continue
		}

		m.resetAttempts()
		m.transition(ctx, Connected)
		log.Info().Str("url", m.url).Msg("signal stream connected")

		err = m.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("signal stream dropped")
		if !m.retry(ctx) {
			return
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) error {
	// Close the connection when the context is canceled so a blocked
	// ReadMessage returns.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.emit(ctx, ConnEvent{Frame: frame})
	}
}

// retry schedules the next connection attempt. It increments Attempts before
// the delay starts; when the budget is consumed it transitions to Exhausted
// and reports false.
func (m *Manager) retry(ctx context.Context) bool {
	m.transition(ctx, Reconnecting)

	m.mu.Lock()
	m.budget.Attempts++
	attempts := m.budget.Attempts
	max := m.budget.Max
	interval := m.budget.Interval
	m.mu.Unlock()

	if attempts >= max {
		log.Error().Int("attempts", attempts).Msg("signal stream retry budget exhausted")
		m.transition(ctx, Exhausted)
		return false
	}

	log.Info().
		Int("attempt", attempts).
		Int("max", max).
		Dur("interval", interval).
		Msg("scheduling signal stream reconnect")

	select {
	case <-time.After(interval):
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) resetAttempts() {
	m.mu.Lock()
	m.budget.Attempts = 0
	m.mu.Unlock()
}

func (m *Manager) transition(ctx context.Context, next ConnState) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	m.emit(ctx, ConnEvent{State: next, Transition: true})
}

// emit never blocks past cancellation: a closed consumer cannot wedge the
// connection loop.
func (m *Manager) emit(ctx context.Context, ev ConnEvent) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
