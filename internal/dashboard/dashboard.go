package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"go.uber.org/zap"
)

// Source — требования дашборда к шине сигналов.
type Source interface {
	GetRegisteredAgents(ctx context.Context) ([]*domain.AgentRecord, error)
	GetAgentHealth(ctx context.Context, name string) (*domain.AgentRecord, error)
	GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error)
	RecordPerformanceMetrics(ctx context.Context, m *domain.MetricSample) error
	CountStaleSignals(ctx context.Context, agent string, olderThan time.Duration) (int, error)
}

// Dashboard собирает метрики по тикам, держит историю снимков в памяти
// и поднимает алерты при пробитии порогов. Чтения lock-free не являются,
// но дешевы: все под RWMutex.
type Dashboard struct {
	cfg      infra.DashboardConfig
	src      Source
	notifier *Notifier
	metrics  *infra.Metrics
	logger   *zap.Logger

	mu        sync.RWMutex
	history   map[string][]domain.DashboardMetrics
	alerts    map[string]*domain.PerformanceAlert
	activeKey map[string]string // agent+type -> alert ID, пока алерт не resolved

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg infra.DashboardConfig, src Source, notifier *Notifier, metrics *infra.Metrics, logger *zap.Logger) *Dashboard {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Dashboard{
		cfg:       cfg,
		src:       src,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger.Named("dashboard"),
		history:   make(map[string][]domain.DashboardMetrics),
		alerts:    make(map[string]*domain.PerformanceAlert),
		activeKey: make(map[string]string),
	}
}

// Start запускает цикл сбора. Повторный Start без Stop — no-op.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	d.logger.Info("dashboard started",
		zap.Duration("refresh_interval", d.cfg.RefreshInterval),
		zap.Duration("sample_window", d.cfg.SampleWindow))

	go d.run(ctx)
}

// Stop останавливает цикл и дожидается завершения текущего тика.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("dashboard stopped")
}

func (d *Dashboard) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dashboard) tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		d.metrics.CollectionDuration.Observe(time.Since(started).Seconds())
	}()

	d.collect(ctx)
	d.processAlerts(ctx)
	d.cleanup()
}

// collect снимает метрики по каждому зарегистрированному агенту.
// Сбой по одному агенту логируется и не прерывает обход остальных.
func (d *Dashboard) collect(ctx context.Context) {
	agents, err := d.src.GetRegisteredAgents(ctx)
	if err != nil {
		d.logger.Error("failed to list agents", zap.Error(err))
		return
	}

	for _, agent := range agents {
		m, err := d.agentSnapshot(ctx, agent)
		if err != nil {
			d.logger.Error("metrics collection failed",
				zap.String("agent", agent.AgentName), zap.Error(err))
			continue
		}
		d.appendHistory(agent.AgentName, m)

		if err := d.src.RecordPerformanceMetrics(ctx, &domain.MetricSample{
			AgentName:  agent.AgentName,
			MetricType: "dashboard_response_time",
			Value:      m.ResponseTime.Current,
			TimeWindow: "5m",
		}); err != nil {
			d.logger.Warn("failed to persist snapshot sample",
				zap.String("agent", agent.AgentName), zap.Error(err))
		}
	}

	d.logger.Debug("metrics collected", zap.Int("agents", len(agents)))
}

// agentSnapshot строит один снимок метрик агента из сигналов окна выборки.
func (d *Dashboard) agentSnapshot(ctx context.Context, agent *domain.AgentRecord) (domain.DashboardMetrics, error) {
	now := time.Now()
	from := now.Add(-d.cfg.SampleWindow)

	signals, err := d.src.GetSignals(ctx, domain.SignalFilter{
		Agents: []string{agent.AgentName},
		From:   &from,
		To:     &now,
	}, 1000)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}

	if len(signals) == 0 {
		return d.emptySnapshot(agent, now), nil
	}

	var responseTimes []float64
	completed, failed := 0, 0
	errorTypes := make(map[string]int)
	for _, s := range signals {
		if s.ProcessedAt != nil {
			responseTimes = append(responseTimes, float64(s.ProcessedAt.Sub(s.CreatedAt).Milliseconds()))
		}
		switch s.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusFailed:
			failed++
			errType := s.ErrorMsg
			if errType == "" {
				errType = "unknown"
			}
			errorTypes[errType]++
		}
	}

	total := len(signals)
	successRate := float64(completed) / float64(total)
	errorRate := float64(failed) / float64(total)

	health, err := d.src.GetAgentHealth(ctx, agent.AgentName)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}

	stale, err := d.src.CountStaleSignals(ctx, agent.AgentName, d.cfg.StaleAfter)
	if err != nil {
		d.logger.Warn("stale count failed",
			zap.String("agent", agent.AgentName), zap.Error(err))
	}

	history := d.agentHistoryLocked(agent.AgentName)
	throughput := throughputPerMinute(total, d.cfg.SampleWindow)

	lastSeen := now
	if health != nil {
		lastSeen = health.LastHeartbeat
	}

	return domain.DashboardMetrics{
		AgentName:    agent.AgentName,
		ResponseTime: responseTimeStats(responseTimes),
		SuccessRate: domain.SuccessRateStats{
			Current:         successRate,
			Average:         historyAverage(history, func(m domain.DashboardMetrics) float64 { return m.SuccessRate.Current }),
			Trend:           historyTrend(history, func(m domain.DashboardMetrics) float64 { return m.SuccessRate.Current }),
			TotalCalls:      total,
			SuccessfulCalls: completed,
		},
		Throughput: domain.ThroughputStats{
			Current: throughput,
			Average: historyAverage(history, func(m domain.DashboardMetrics) float64 { return m.Throughput.Current }),
			Peak:    historyPeak(history, func(m domain.DashboardMetrics) float64 { return m.Throughput.Current }),
			Total:   total,
		},
		ErrorRate: domain.ErrorRateStats{
			Current:     errorRate,
			Average:     historyAverage(history, func(m domain.DashboardMetrics) float64 { return m.ErrorRate.Current }),
			TotalErrors: failed,
			ErrorTypes:  errorTypes,
		},
		SystemHealth: domain.SystemHealth{
			Status:       healthFor(health, errorRate),
			LastSeen:     lastSeen,
			StaleSignals: stale,
		},
		LastUpdated: now,
	}, nil
}

// emptySnapshot — снимок для агента без сигналов в окне: offline.
func (d *Dashboard) emptySnapshot(agent *domain.AgentRecord, now time.Time) domain.DashboardMetrics {
	return domain.DashboardMetrics{
		AgentName:    agent.AgentName,
		ResponseTime: domain.ResponseTimeStats{Trend: domain.TrendStable},
		SuccessRate:  domain.SuccessRateStats{Trend: domain.TrendStable},
		ErrorRate:    domain.ErrorRateStats{ErrorTypes: map[string]int{}},
		SystemHealth: domain.SystemHealth{
			Status:   domain.HealthOffline,
			LastSeen: agent.LastHeartbeat,
		},
		LastUpdated: now,
	}
}

// healthFor — интегральное здоровье: без heartbeat агент offline,
// дальше решает доля ошибок.
func healthFor(health *domain.AgentRecord, errorRate float64) domain.HealthStatus {
	if health == nil {
		return domain.HealthOffline
	}
	if errorRate > 0.2 {
		return domain.HealthCritical
	}
	if errorRate > 0.1 {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

func (d *Dashboard) appendHistory(agent string, m domain.DashboardMetrics) {
	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[agent], m)
	cutoff := time.Now().Add(-d.cfg.MetricsRetention)
	for len(history) > 0 && history[0].LastUpdated.Before(cutoff) {
		history = history[1:]
	}
	d.history[agent] = history
}

func (d *Dashboard) agentHistoryLocked(agent string) []domain.DashboardMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history[agent]
}

// Data возвращает последний снимок каждого агента, активные алерты и сводку.
func (d *Dashboard) Data() domain.DashboardData {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agents := make(map[string]domain.DashboardMetrics, len(d.history))
	healthy := 0
	for name, history := range d.history {
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		agents[name] = latest
		if latest.SystemHealth.Status == domain.HealthHealthy {
			healthy++
		}
	}

	var active []domain.PerformanceAlert
	critical := 0
	for _, a := range d.alerts {
		if a.ResolvedAt != nil {
			continue
		}
		active = append(active, *a)
		if a.Severity == domain.AlertCritical {
			critical++
		}
	}

	return domain.DashboardData{
		Agents:       agents,
		ActiveAlerts: active,
		Summary: domain.DashboardSummary{
			TotalAgents:    len(agents),
			HealthyAgents:  healthy,
			ActiveAlerts:   len(active),
			CriticalAlerts: critical,
		},
	}
}

// AgentHistory — снимки агента не старше since.
func (d *Dashboard) AgentHistory(agent string, since time.Duration) []domain.DashboardMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var out []domain.DashboardMetrics
	for _, m := range d.history[agent] {
		if !m.LastUpdated.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// cleanup обрезает историю и алерты по окнам ретенции.
func (d *Dashboard) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	metricsCutoff := time.Now().Add(-d.cfg.MetricsRetention)
	for agent, history := range d.history {
		for len(history) > 0 && history[0].LastUpdated.Before(metricsCutoff) {
			history = history[1:]
		}
		if len(history) == 0 {
			delete(d.history, agent)
			continue
		}
		d.history[agent] = history
	}

	alertsCutoff := time.Now().Add(-d.cfg.AlertsRetention)
	for id, alert := range d.alerts {
		if alert.TriggeredAt.Before(alertsCutoff) {
			if alert.ResolvedAt == nil {
				delete(d.activeKey, alertKey(alert.AgentName, alert.AlertType))
				d.metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Dec()
			}
			delete(d.alerts, id)
		}
	}
}
