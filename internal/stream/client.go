package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/metrics"
	"tradewatch/internal/notify"
	"tradewatch/internal/signal"
)

// DefaultRefreshInterval is how often the client re-fetches the full signal
// list from the backend as a reconciliation baseline.
const DefaultRefreshInterval = 30 * time.Second

// Fetcher is the request/response collaborator the client polls for the
// active signal list.
type Fetcher interface {
	ActiveSignals(ctx context.Context) ([]signal.Record, error)
}

// Snapshot is the read-only view handed to the view layer. Callers must not
// mutate it; it is detached from client state.
type Snapshot struct {
	Connection ConnState       `json:"connection"`
	Signals    []signal.Record `json:"signals"`
}

// Config configures a Client. Zero values select defaults; Fetcher nil
// disables the periodic refresh.
type Config struct {
	StreamURL       string
	Dialer          Dialer
	Budget          RetryBudget
	RefreshInterval time.Duration
	MaxSignals      int
	Fetcher         Fetcher
	Dispatcher      *notify.Dispatcher
	Metrics         *metrics.Metrics
}

type refreshResult struct {
	recs      []signal.Record
	err       error
	issuedSeq uint64
	epoch     uint64
}

// Client is the facade the view layer consumes. It exclusively owns the
// signal store and the connection state; all mutation happens on a single
// event loop goroutine fed by the connection manager, the refresh ticker,
// and refresh completions, so no two mutations interleave.
type Client struct {
	cfg        Config
	mgr        *Manager
	store      *signal.Store
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	connState ConnState
	subs      map[int]func(Snapshot)
	nextSubID int
	running   bool

	events     chan ConnEvent
	refreshCh  chan refreshResult
	epoch      atomic.Uint64
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	lastEvict  uint64
}

// NewClient creates a closed client. Call Open to start streaming.
func NewClient(cfg Config) *Client {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = notify.NewDispatcher()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}

	events := make(chan ConnEvent, 64)
	return &Client{
		cfg:        cfg,
		mgr:        NewManager(cfg.StreamURL, cfg.Dialer, cfg.Budget, events),
		store:      signal.NewStore(cfg.MaxSignals),
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		subs:       make(map[int]func(Snapshot)),
		events:     events,
		refreshCh:  make(chan refreshResult, 4),
		connState:  Disconnected,
	}
}

// Open starts the event loop and the push connection. Idempotent.
func (c *Client) Open() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	done := make(chan struct{})
	c.loopDone = done
	c.mu.Unlock()

	c.drainEvents()
	go c.run(ctx, done)
	c.mgr.Open()
}

// Close tears down the connection, cancels pending reconnect timers and the
// event loop, and discards any refresh fetch still in flight. After Close
// returns, no further state mutation or subscriber callback occurs. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.loopCancel
	done := c.loopDone
	c.mu.Unlock()

	c.epoch.Add(1)
	c.mgr.Close()
	cancel()
	<-done

	c.mu.Lock()
	c.connState = Disconnected
	c.mu.Unlock()
}

// State returns the current connection state and an ordered copy of the
// signal list.
func (c *Client) State() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Budget returns a copy of the connection retry budget for inspection.
func (c *Client) Budget() RetryBudget { return c.mgr.Budget() }

// Subscribe registers a callback invoked once per logical update batch with
// a fresh snapshot. The returned function unsubscribes.
func (c *Client) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if c.cfg.Fetcher != nil && c.cfg.RefreshInterval > 0 {
		// Immediate baseline fetch, then steady-state polling.
		c.startRefresh(ctx)
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if ev.Transition {
				c.handleTransition(ev.State)
			} else {
				c.handleFrame(ev.Frame)
			}
		case <-tick:
			c.startRefresh(ctx)
		case res := <-c.refreshCh:
			c.handleRefresh(res)
		}
	}
}

func (c *Client) handleTransition(state ConnState) {
	c.mu.Lock()
	c.connState = state
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.metrics.ConnectionState.Set(float64(state))
	switch state {
	case Reconnecting:
		c.metrics.StreamReconnects.Inc()
	case Exhausted:
		c.metrics.StreamExhausted.Inc()
		c.dispatch(notify.KindStreamExhausted,
			"Live signal stream unavailable: reconnect budget exhausted, falling back to periodic refresh")
	}

	c.notifySubs(snap)
}

func (c *Client) handleFrame(frame []byte) {
	ev, err := Decode(frame)
	if err != nil {
		log.Debug().Err(err).Str("frame", string(frame)).Msg("discarding undecodable push message")
		c.metrics.DecodeErrors.Inc()
		return
	}
	c.metrics.EventsReceived.Inc()

	switch e := ev.(type) {
	case NewSignal:
		c.mu.Lock()
		c.store.Apply(e.Record)
		c.syncStoreMetricsLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.dispatch(notify.KindNewSignal,
			fmt.Sprintf("New signal: %s %s (%.0f%% confidence)",
				e.Record.Action, e.Record.Ticker, e.Record.Confidence*100))
		c.notifySubs(snap)
	case OrderSent:
		c.dispatch(notify.KindOrderSent, fmt.Sprintf("Order sent for %s", e.Ticker))
	case OrderFilled:
		c.dispatch(notify.KindOrderFilled,
			fmt.Sprintf("Order filled: %s %g %s at %.2f", e.Side, e.Quantity, e.Ticker, e.AvgPrice))
	case OrderRejected:
		c.dispatch(notify.KindOrderRejected,
			fmt.Sprintf("Order rejected for %s: %s", e.Ticker, e.Reason))
	}
}

func (c *Client) startRefresh(ctx context.Context) {
	c.mu.RLock()
	issued := c.store.Seq()
	c.mu.RUnlock()
	epoch := c.epoch.Load()
	c.metrics.RefreshFetches.Inc()

	go func() {
		start := time.Now()
		recs, err := c.cfg.Fetcher.ActiveSignals(ctx)
		c.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
		select {
		case c.refreshCh <- refreshResult{recs: recs, err: err, issuedSeq: issued, epoch: epoch}:
		case <-ctx.Done():
		}
	}()
}

func (c *Client) handleRefresh(res refreshResult) {
	if res.epoch != c.epoch.Load() {
		log.Debug().Msg("discarding refresh result from a previous session")
		return
	}
	if res.err != nil {
		// Local to this cycle; the next scheduled refresh retries.
		log.Warn().Err(res.err).Msg("signal refresh fetch failed")
		c.metrics.RefreshErrors.Inc()
		return
	}

	c.mu.Lock()
	c.store.Reconcile(res.recs, res.issuedSeq)
	c.syncStoreMetricsLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifySubs(snap)
}

func (c *Client) dispatch(kind, message string) {
	if c.dispatcher.Dispatch(kind, message) {
		c.metrics.Notifications.Inc()
	}
}

func (c *Client) snapshotLocked() Snapshot {
	return Snapshot{
		Connection: c.connState,
		Signals:    c.store.Snapshot(),
	}
}

func (c *Client) syncStoreMetricsLocked() {
	c.metrics.SignalsActive.Set(float64(c.store.Len()))
	if ev := c.store.Evictions(); ev > c.lastEvict {
		c.metrics.SignalEvictions.Add(float64(ev - c.lastEvict))
		c.lastEvict = ev
	}
}

func (c *Client) notifySubs(snap Snapshot) {
	c.mu.RLock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Client) drainEvents() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}
