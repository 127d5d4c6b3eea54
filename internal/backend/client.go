// Package backend is the request/response client for the trading-oversight
// API. The dashboard polls it for the active signal list (the reconciliation
// baseline for the live stream) and for summary statistics.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/signal"
)

const (
	activeSignalsPath = "/api/v1/signals/active"
	signalStatsPath   = "/api/v1/signals/stats"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: base, rest: r}
}

type wireSignal struct {
	ID         int64     `json:"id"`
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	Reasoning  string    `json:"reasoning"`
	Source     string    `json:"source"`
	Theme      string    `json:"theme"`
}

// ActiveSignals fetches the full list of currently active signals. Rows the
// backend sends with an unrecognized action are skipped rather than failing
// the whole refresh.
func (c *Client) ActiveSignals(ctx context.Context) ([]signal.Record, error) {
	var wire []wireSignal
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&wire).
		Get(c.base + activeSignalsPath)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode())
	}

	recs := make([]signal.Record, 0, len(wire))
	for _, w := range wire {
		action, ok := signal.ParseAction(w.Action)
		if !ok {
			log.Warn().Int64("id", w.ID).Str("action", w.Action).Msg("skipping signal with unknown action")
			continue
		}
		recs = append(recs, signal.Record{
			ID:         w.ID,
			Ticker:     w.Ticker,
			Action:     action,
			Confidence: w.Confidence,
			CreatedAt:  w.CreatedAt,
			Reasoning:  w.Reasoning,
			Source:     w.Source,
			Theme:      w.Theme,
		})
	}
	return recs, nil
}

// Stats is the backend's summary view over active signals.
type Stats struct {
	Total         int            `json:"total"`
	ByAction      map[string]int `json:"by_action"`
	AvgConfidence float64        `json:"avg_confidence"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

// SignalStats fetches summary statistics for the dashboard header.
func (c *Client) SignalStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(stats).
		Get(c.base + signalStatsPath)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode())
	}
	return stats, nil
}
