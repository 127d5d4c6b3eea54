// Package notify turns stream events into user-facing dashboard alerts.
// Only event kinds registered in the dispatch policy produce a notification;
// everything else is silently dropped.
package notify

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Severity classifies a notification for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event kinds recognized by the default policy.
const (
	KindNewSignal       = "new_signal"
	KindOrderSent       = "order_sent"
	KindOrderFilled     = "order_filled"
	KindOrderRejected   = "order_rejected"
	KindStreamExhausted = "stream_exhausted"
)

// Notification is an ephemeral user-facing alert. It has no identity beyond
// emission order and is never deduplicated. Sticky notifications must not be
// auto-dismissed by the view layer.
type Notification struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Sticky    bool      `json:"sticky"`
	CreatedAt time.Time `json:"createdAt"`
}

// Handler receives dispatched notifications. Handlers are invoked
// synchronously in dispatch order; slow handlers delay the stream loop and
// should hand off quickly.
type Handler func(Notification)

type rule struct {
	severity Severity
	sticky   bool
}

// Dispatcher maps event kinds to notifications according to a policy table.
type Dispatcher struct {
	policy   map[string]rule
	handlers []Handler
	now      func() time.Time
}

// NewDispatcher creates a dispatcher with the default policy and the given
// handlers.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	d := &Dispatcher{
		policy:   make(map[string]rule),
		handlers: handlers,
		now:      time.Now,
	}
	d.Register(KindNewSignal, SeverityInfo, false)
	d.Register(KindOrderSent, SeverityInfo, false)
	d.Register(KindOrderFilled, SeveritySuccess, false)
	d.Register(KindOrderRejected, SeverityError, false)
	d.Register(KindStreamExhausted, SeverityError, true)
	return d
}

// Register adds or replaces a policy entry for kind.
func (d *Dispatcher) Register(kind string, severity Severity, sticky bool) {
	d.policy[kind] = rule{severity: severity, sticky: sticky}
}

// AddHandler appends a handler to the fan-out list.
func (d *Dispatcher) AddHandler(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch emits a notification for kind if the policy registers it.
// Returns false when the kind is unmapped and nothing was emitted.
func (d *Dispatcher) Dispatch(kind, message string) bool {
	r, ok := d.policy[kind]
	if !ok {
		log.Debug().Str("kind", kind).Msg("no notification policy for event kind")
		return false
	}
	n := Notification{
		Kind:      kind,
		Message:   message,
		Severity:  r.severity,
		Sticky:    r.sticky,
		CreatedAt: d.now(),
	}
	for _, h := range d.handlers {
		h(n)
	}
	return true
}
