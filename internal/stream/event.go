package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"tradewatch/internal/signal"
)

// Wire values of the "type" field on push channel messages.
const (
	typeNewSignal     = "new_signal"
	typeOrderSent     = "order_sent"
	typeOrderFilled   = "order_filled"
	typeOrderRejected = "order_rejected"
)

// Event is a decoded push channel message. The set of variants is closed:
// NewSignal, OrderSent, OrderFilled, OrderRejected.
type Event interface {
	Kind() string
}

// NewSignal carries a freshly generated trading signal.
type NewSignal struct {
	Record signal.Record
}

func (NewSignal) Kind() string { return typeNewSignal }

// OrderSent reports that the backend submitted an order for a ticker.
type OrderSent struct {
	Ticker string
	Meta   map[string]any
}

func (OrderSent) Kind() string { return typeOrderSent }

// OrderFilled reports a completed fill.
type OrderFilled struct {
	Ticker   string
	Side     string
	Quantity float64
	AvgPrice float64
	Meta     map[string]any
}

func (OrderFilled) Kind() string { return typeOrderFilled }

// OrderRejected reports an order the backend refused to place.
type OrderRejected struct {
	Ticker string
	Reason string
	Meta   map[string]any
}

func (OrderRejected) Kind() string { return typeOrderRejected }

// DecodeErrorKind tags the failure mode of a rejected message.
type DecodeErrorKind string

const (
	Malformed    DecodeErrorKind = "malformed"
	UnknownType  DecodeErrorKind = "unknown_type"
	MissingField DecodeErrorKind = "missing_field"
)

// DecodeError describes a push message the decoder rejected. The stream
// owner logs and discards these; they never terminate the connection.
type DecodeError struct {
	Reason DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Reason, e.Detail)
}

func decodeErr(reason DecodeErrorKind, format string, args ...any) error {
	return &DecodeError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one raw push channel frame into a typed event. Fields outside
// a kind's required shape are carried through in Meta rather than rejected.
// Decode never panics; every failure is a *DecodeError.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, decodeErr(Malformed, "invalid JSON: %v", err)
	}
	if env.Type == "" {
		return nil, decodeErr(Malformed, "missing type field")
	}

	var data map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, decodeErr(Malformed, "invalid data payload: %v", err)
		}
	}
	if data == nil {
		data = map[string]any{}
	}

	switch env.Type {
	case typeNewSignal:
		return decodeNewSignal(data)
	case typeOrderSent:
		return decodeOrderSent(data)
	case typeOrderFilled:
		return decodeOrderFilled(data)
	case typeOrderRejected:
		return decodeOrderRejected(data)
	default:
		return nil, decodeErr(UnknownType, "unrecognized event type %q", env.Type)
	}
}

func decodeNewSignal(data map[string]any) (Event, error) {
	id, err := intField(data, "id")
	if err != nil {
		return nil, err
	}
	ticker, err := strField(data, "ticker")
	if err != nil {
		return nil, err
	}
	rawAction, err := strField(data, "action")
	if err != nil {
		return nil, err
	}
	action, ok := signal.ParseAction(rawAction)
	if !ok {
		return nil, decodeErr(MissingField, "invalid action %q", rawAction)
	}
	confidence, err := floatField(data, "confidence")
	if err != nil {
		return nil, err
	}
	if confidence < 0 || confidence > 1 {
		return nil, decodeErr(MissingField, "confidence %v outside [0,1]", confidence)
	}

	rec := signal.Record{
		ID:         id,
		Ticker:     ticker,
		Action:     action,
		Confidence: confidence,
		CreatedAt:  timeFieldOrNow(data, "created_at"),
	}
	rec.Reasoning, _ = data["reasoning"].(string)
	rec.Source, _ = data["source"].(string)
	rec.Theme, _ = data["theme"].(string)
	rec.Meta = extraFields(data,
		"id", "ticker", "action", "confidence", "created_at",
		"reasoning", "source", "theme")
	return NewSignal{Record: rec}, nil
}

func decodeOrderSent(data map[string]any) (Event, error) {
	ticker, err := strField(data, "ticker")
	if err != nil {
		return nil, err
	}
	return OrderSent{
		Ticker: ticker,
		Meta:   extraFields(data, "ticker"),
	}, nil
}

func decodeOrderFilled(data map[string]any) (Event, error) {
	ticker, err := strField(data, "ticker")
	if err != nil {
		return nil, err
	}
	side, err := strField(data, "side")
	if err != nil {
		return nil, err
	}
	qty, err := floatField(data, "quantity")
	if err != nil {
		return nil, err
	}
	avg, err := floatField(data, "avg_price")
	if err != nil {
		return nil, err
	}
	return OrderFilled{
		Ticker:   ticker,
		Side:     side,
		Quantity: qty,
		AvgPrice: avg,
		Meta:     extraFields(data, "ticker", "side", "quantity", "avg_price"),
	}, nil
}

func decodeOrderRejected(data map[string]any) (Event, error) {
	ticker, err := strField(data, "ticker")
	if err != nil {
		return nil, err
	}
	reason, err := strField(data, "reason")
	if err != nil {
		return nil, err
	}
	return OrderRejected{
		Ticker: ticker,
		Reason: reason,
		Meta:   extraFields(data, "ticker", "reason"),
	}, nil
}

func strField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", decodeErr(MissingField, "missing %s", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", decodeErr(MissingField, "%s must be a non-empty string", key)
	}
	return s, nil
}

func floatField(data map[string]any, key string) (float64, error) {
	v, ok := data[key]
	if !ok {
		return 0, decodeErr(MissingField, "missing %s", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, decodeErr(MissingField, "%s must be a number, got %T", key, v)
	}
	return f, nil
}

func intField(data map[string]any, key string) (int64, error) {
	f, err := floatField(data, key)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// timeFieldOrNow parses an RFC3339 timestamp, falling back to receipt time
// when absent or unparseable.
func timeFieldOrNow(data map[string]any, key string) time.Time {
	if s, ok := data[key].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now()
}

func extraFields(data map[string]any, known ...string) map[string]any {
	skip := make(map[string]struct{}, len(known))
	for _, k := range known {
		skip[k] = struct{}{}
	}
	var extra map[string]any
	for k, v := range data {
		if _, ok := skip[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}
