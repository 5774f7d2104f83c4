package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from SignalStatus
		to   SignalStatus
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusReplayed, true},
		{StatusFailed, StatusReplayed, true},
		{StatusReplayed, StatusPending, false},
		{SignalStatus("weird"), StatusCompleted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	b, err := MarshalPayload(TaskPayload{Description: "crawl", Goal: "index"})
	require.NoError(t, err)

	p, err := UnmarshalPayload(b)
	require.NoError(t, err)
	task, ok := p.(TaskPayload)
	require.True(t, ok)
	assert.Equal(t, "crawl", task.Description)
}

func TestUnmarshalPayloadFallbacks(t *testing.T) {
	// Неизвестный kind не теряет данные
	p, err := UnmarshalPayload([]byte(`{"kind":"mystery","data":{"x":1}}`))
	require.NoError(t, err)
	_, ok := p.(RawPayload)
	assert.True(t, ok)

	// Запись без конверта читается как raw
	p, err = UnmarshalPayload([]byte(`"plain old string"`))
	require.NoError(t, err)
	raw, ok := p.(RawPayload)
	require.True(t, ok)
	assert.Equal(t, `"plain old string"`, string(raw.Data))

	p, err = UnmarshalPayload([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, PriorityCritical, NormalizePriority(PriorityCritical))
	assert.Equal(t, PriorityNormal, NormalizePriority(""))
	assert.Equal(t, PriorityNormal, NormalizePriority(SignalPriority("extreme")))
}
