package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Notification
		ok      bool
	}{
		{"point-to-point", "42:CALL_AGENT:worker", Notification{SignalID: 42, SignalType: "CALL_AGENT", ToAgent: "worker"}, true},
		{"broadcast has empty to_agent", "7:SYSTEM_NOTICE:", Notification{SignalID: 7, SignalType: "SYSTEM_NOTICE"}, true},
		{"missing parts", "42:CALL_AGENT", Notification{}, false},
		{"non-numeric id", "abc:CALL_AGENT:worker", Notification{}, false},
		{"empty payload", "", Notification{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := parseNotification(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestSubscribeSignalsWithoutRedis(t *testing.T) {
	b, _, _ := newTestBus()

	err := b.SubscribeSignals(context.Background(), "worker", nil, func(Notification) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotificationsDisabled)
}
