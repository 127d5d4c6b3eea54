package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchDefaultPolicy(t *testing.T) {
	tests := []struct {
		kind     string
		severity Severity
		sticky   bool
	}{
		{KindNewSignal, SeverityInfo, false},
		{KindOrderSent, SeverityInfo, false},
		{KindOrderFilled, SeveritySuccess, false},
		{KindOrderRejected, SeverityError, false},
		{KindStreamExhausted, SeverityError, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			var got []Notification
			d := NewDispatcher(func(n Notification) { got = append(got, n) })

			ok := d.Dispatch(tt.kind, "msg")
			assert.True(t, ok)
			require.Len(t, got, 1)
			assert.Equal(t, tt.severity, got[0].Severity)
			assert.Equal(t, tt.sticky, got[0].Sticky)
			assert.Equal(t, "msg", got[0].Message)
			assert.False(t, got[0].CreatedAt.IsZero())
		})
	}
}

func TestDispatchUnmappedKindEmitsNothing(t *testing.T) {
	var got []Notification
	d := NewDispatcher(func(n Notification) { got = append(got, n) })

	assert.False(t, d.Dispatch("heartbeat", "ignored"))
	assert.Empty(t, got)
}

func TestDispatchPreservesOrder(t *testing.T) {
	var got []string
	d := NewDispatcher(func(n Notification) { got = append(got, n.Message) })

	d.Dispatch(KindNewSignal, "A")
	d.Dispatch(KindOrderFilled, "B")
	d.Dispatch(KindOrderRejected, "C")

	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestDispatchNoDeduplication(t *testing.T) {
	count := 0
	d := NewDispatcher(func(Notification) { count++ })

	d.Dispatch(KindNewSignal, "same")
	d.Dispatch(KindNewSignal, "same")
	d.Dispatch(KindNewSignal, "same")

	assert.Equal(t, 3, count)
}

func TestRegisterCustomKind(t *testing.T) {
	var got []Notification
	d := NewDispatcher(func(n Notification) { got = append(got, n) })

	d.Register("maintenance", SeverityInfo, true)
	assert.True(t, d.Dispatch("maintenance", "backend maintenance window"))
	require.Len(t, got, 1)
	assert.True(t, got[0].Sticky)
}
