package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource отдает заранее подготовленные сигналы и реестр.
type fakeSource struct {
	agents  []*domain.AgentRecord
	signals map[string][]*domain.Signal
	samples []*domain.MetricSample
	stale   map[string]int
}

func (f *fakeSource) GetRegisteredAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	return f.agents, nil
}

func (f *fakeSource) GetAgentHealth(ctx context.Context, name string) (*domain.AgentRecord, error) {
	for _, a := range f.agents {
		if a.AgentName == name {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	if len(filter.Agents) == 0 {
		return nil, nil
	}
	return f.signals[filter.Agents[0]], nil
}

func (f *fakeSource) RecordPerformanceMetrics(ctx context.Context, m *domain.MetricSample) error {
	f.samples = append(f.samples, m)
	return nil
}

func (f *fakeSource) CountStaleSignals(ctx context.Context, agent string, olderThan time.Duration) (int, error) {
	return f.stale[agent], nil
}

func testConfig() infra.DashboardConfig {
	return infra.DashboardConfig{
		RefreshInterval:  5 * time.Second,
		SampleWindow:     5 * time.Minute,
		StaleAfter:       10 * time.Minute,
		ResponseTime:     infra.ThresholdPair{Warning: 1000, Critical: 3000},
		SuccessRate:      infra.ThresholdPair{Warning: 0.8, Critical: 0.6},
		ErrorRate:        infra.ThresholdPair{Warning: 0.1, Critical: 0.2},
		MetricsRetention: 24 * time.Hour,
		AlertsRetention:  7 * 24 * time.Hour,
	}
}

func signalAt(id int64, status domain.SignalStatus, created time.Time, took time.Duration, errMsg string) *domain.Signal {
	processed := created.Add(took)
	return &domain.Signal{
		ID:          id,
		SignalType:  domain.SignalCallAgent,
		FromAgent:   "caller",
		ToAgent:     "worker",
		Status:      status,
		ErrorMsg:    errMsg,
		CreatedAt:   created,
		ProcessedAt: &processed,
	}
}

func TestCollectBuildsAgentSnapshot(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		agents: []*domain.AgentRecord{
			{AgentName: "worker", Status: "active", LastHeartbeat: now},
		},
		signals: map[string][]*domain.Signal{
			"worker": {
				signalAt(1, domain.StatusCompleted, now.Add(-time.Minute), 200*time.Millisecond, ""),
				signalAt(2, domain.StatusFailed, now.Add(-30*time.Second), 400*time.Millisecond, "boom"),
			},
		},
		stale: map[string]int{"worker": 3},
	}

	d := New(testConfig(), src, nil, nil, zap.NewNop())
	d.collect(context.Background())

	data := d.Data()
	require.Contains(t, data.Agents, "worker")
	m := data.Agents["worker"]

	assert.Equal(t, 0.5, m.SuccessRate.Current)
	assert.Equal(t, 0.5, m.ErrorRate.Current)
	assert.Equal(t, 2, m.SuccessRate.TotalCalls)
	assert.Equal(t, 1, m.ErrorRate.TotalErrors)
	assert.Equal(t, map[string]int{"boom": 1}, m.ErrorRate.ErrorTypes)
	assert.Equal(t, 400.0, m.ResponseTime.Current)
	assert.Equal(t, 3, m.SystemHealth.StaleSignals)
	// error rate 0.5 > 0.2 -> critical
	assert.Equal(t, domain.HealthCritical, m.SystemHealth.Status)

	// Снимок персистится как сырой замер
	require.Len(t, src.samples, 1)
	assert.Equal(t, "dashboard_response_time", src.samples[0].MetricType)
}

func TestCollectOfflineAgentWithoutSignals(t *testing.T) {
	src := &fakeSource{
		agents:  []*domain.AgentRecord{{AgentName: "ghost", Status: "active"}},
		signals: map[string][]*domain.Signal{},
	}

	d := New(testConfig(), src, nil, nil, zap.NewNop())
	d.collect(context.Background())
	d.processAlerts(context.Background())

	data := d.Data()
	require.Contains(t, data.Agents, "ghost")
	assert.Equal(t, domain.HealthOffline, data.Agents["ghost"].SystemHealth.Status)

	// Offline дает принудительный critical алерт по system_health
	require.NotEmpty(t, data.ActiveAlerts)
	found := false
	for _, a := range data.ActiveAlerts {
		if a.AlertType == domain.AlertSystemHealth {
			found = true
			assert.Equal(t, domain.AlertCritical, a.Severity)
		}
	}
	assert.True(t, found)
}

func TestThresholdAlerts(t *testing.T) {
	d := New(testConfig(), nil, nil, nil, zap.NewNop())

	m := domain.DashboardMetrics{
		AgentName:    "worker",
		ResponseTime: domain.ResponseTimeStats{Current: 1500},
		SuccessRate:  domain.SuccessRateStats{Current: 0.5},
		ErrorRate:    domain.ErrorRateStats{Current: 0.15},
		SystemHealth: domain.SystemHealth{Status: domain.HealthDegraded},
	}

	alerts := d.checkThresholds(m)
	require.Len(t, alerts, 3)

	bySeverity := map[domain.AlertType]domain.AlertSeverity{}
	for _, a := range alerts {
		bySeverity[a.AlertType] = a.Severity
	}
	// 1500 между warning и critical
	assert.Equal(t, domain.AlertWarning, bySeverity[domain.AlertResponseTime])
	// 0.5 ниже critical порога 0.6
	assert.Equal(t, domain.AlertCritical, bySeverity[domain.AlertSuccessRate])
	// 0.15 между 0.1 и 0.2
	assert.Equal(t, domain.AlertWarning, bySeverity[domain.AlertErrorRate])
}

func TestAlertDeduplicationAndLifecycle(t *testing.T) {
	d := New(testConfig(), nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	first := newAlert("worker", domain.AlertErrorRate, domain.AlertCritical, "boom", 0.2, 0.5)
	d.raiseAlert(ctx, first)
	// Повторное срабатывание по той же паре (агент, тип) не создает дубликат
	d.raiseAlert(ctx, newAlert("worker", domain.AlertErrorRate, domain.AlertCritical, "boom again", 0.2, 0.6))

	data := d.Data()
	require.Len(t, data.ActiveAlerts, 1)
	assert.Equal(t, 1, data.Summary.CriticalAlerts)

	// Ack не закрывает алерт
	require.True(t, d.AcknowledgeAlert(first.ID, "operator-7"))
	data = d.Data()
	require.Len(t, data.ActiveAlerts, 1)
	assert.True(t, data.ActiveAlerts[0].Acknowledged)
	assert.Equal(t, "operator-7", data.ActiveAlerts[0].AckBy)

	// Resolve закрывает и снимает дедупликацию
	require.True(t, d.ResolveAlert(first.ID, "operator-7"))
	assert.Empty(t, d.Data().ActiveAlerts)
	assert.False(t, d.ResolveAlert(first.ID, "operator-7"))

	d.raiseAlert(ctx, newAlert("worker", domain.AlertErrorRate, domain.AlertCritical, "boom iii", 0.2, 0.7))
	assert.Len(t, d.Data().ActiveAlerts, 1)
}
