// Package signal defines the trading-signal record model and the in-memory
// state store the dashboard renders from. The store merges two sources:
// live push events and periodic full-refresh fetches from the backend API.
package signal

import (
	"strings"
	"time"
)

// Action is the recommended action attached to a signal by the backend.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionTrim Action = "TRIM"
)

// ParseAction validates an action string, case-insensitively.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToUpper(s)); a {
	case ActionBuy, ActionSell, ActionHold, ActionTrim:
		return a, true
	default:
		return "", false
	}
}

// Record is one trading signal surfaced by the backend. ID is server-assigned
// and unique. Reasoning, Source, Theme and Meta are descriptive fields the
// client carries through unmodified.
type Record struct {
	ID         int64          `json:"id"`
	Ticker     string         `json:"ticker"`
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"createdAt"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Source     string         `json:"source,omitempty"`
	Theme      string         `json:"theme,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

func (r *Record) normalize() {
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
}

// before reports whether r sorts ahead of other: descending CreatedAt,
// ties broken by descending ID.
func (r Record) before(other Record) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.After(other.CreatedAt)
	}
	return r.ID > other.ID
}
