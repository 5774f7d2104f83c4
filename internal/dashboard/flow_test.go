package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/piata-ai/signalcore/internal/classifier"
	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Сквозной сценарий: упавший CALL_AGENT проходит классификацию по умолчанию,
// а его агент на следующем тике дашборда получает ровно один critical алерт
// по error_rate.
func TestFailedCallRaisesCriticalAlert(t *testing.T) {
	now := time.Now()

	failed := signalAt(1, domain.StatusFailed, now.Add(-time.Minute), 300*time.Millisecond, "agent crashed")
	failed.Priority = domain.PriorityNormal

	// 1. Классификация: правило critical_agent_failure эскалирует сбой
	c := classifier.New(nil, zap.NewNop())
	c.LoadDefaultRules()

	result := c.ProcessSignal(failed)
	require.False(t, result.Filtered)
	assert.Equal(t, domain.PriorityCritical, result.Classification.Priority)
	assert.True(t, result.Classification.RequiresAlert)

	events := c.CriticalEvents(domain.EventActive)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailure, events[0].Type)

	// 2. Тот же сбой доминирует в окне сбора метрик агента
	src := &fakeSource{
		agents: []*domain.AgentRecord{
			{AgentName: "worker", Status: "active", LastHeartbeat: now},
		},
		signals: map[string][]*domain.Signal{
			"worker": {
				failed,
				signalAt(2, domain.StatusFailed, now.Add(-50*time.Second), 250*time.Millisecond, "agent crashed"),
				signalAt(3, domain.StatusFailed, now.Add(-40*time.Second), 280*time.Millisecond, "agent crashed"),
				signalAt(4, domain.StatusCompleted, now.Add(-30*time.Second), 150*time.Millisecond, ""),
			},
		},
	}

	d := New(testConfig(), src, nil, nil, zap.NewNop())
	ctx := context.Background()
	d.collect(ctx)
	d.processAlerts(ctx)

	data := d.Data()
	m := data.Agents["worker"]
	assert.Equal(t, 0.75, m.ErrorRate.Current)
	assert.Equal(t, domain.HealthCritical, m.SystemHealth.Status)

	var errorRateAlerts []domain.PerformanceAlert
	for _, a := range data.ActiveAlerts {
		if a.AlertType == domain.AlertErrorRate {
			errorRateAlerts = append(errorRateAlerts, a)
		}
	}
	require.Len(t, errorRateAlerts, 1)
	assert.Equal(t, domain.AlertCritical, errorRateAlerts[0].Severity)
	assert.Equal(t, "worker", errorRateAlerts[0].AgentName)

	// Следующий тик не плодит дубликаты
	d.collect(ctx)
	d.processAlerts(ctx)
	count := 0
	for _, a := range d.Data().ActiveAlerts {
		if a.AlertType == domain.AlertErrorRate {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
