package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"go.uber.org/zap"
)

// processAlerts проверяет пороги по последнему снимку каждого агента.
func (d *Dashboard) processAlerts(ctx context.Context) {
	d.mu.RLock()
	latest := make([]domain.DashboardMetrics, 0, len(d.history))
	for _, history := range d.history {
		if len(history) > 0 {
			latest = append(latest, history[len(history)-1])
		}
	}
	d.mu.RUnlock()

	for _, m := range latest {
		for _, alert := range d.checkThresholds(m) {
			d.raiseAlert(ctx, alert)
		}
	}
}

// checkThresholds сравнивает метрики снимка с порогами конфига.
// Warning поднимается только если не пробит critical. Offline-агент
// всегда дает принудительный critical system_health.
func (d *Dashboard) checkThresholds(m domain.DashboardMetrics) []*domain.PerformanceAlert {
	var alerts []*domain.PerformanceAlert
	t := d.cfg

	switch {
	case m.ResponseTime.Current > t.ResponseTime.Critical:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertResponseTime, domain.AlertCritical,
			fmt.Sprintf("Critical response time: %.0fms", m.ResponseTime.Current),
			t.ResponseTime.Critical, m.ResponseTime.Current))
	case m.ResponseTime.Current > t.ResponseTime.Warning:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertResponseTime, domain.AlertWarning,
			fmt.Sprintf("High response time: %.0fms", m.ResponseTime.Current),
			t.ResponseTime.Warning, m.ResponseTime.Current))
	}

	// Пороги success rate — снизу
	switch {
	case m.SuccessRate.Current < t.SuccessRate.Critical:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertSuccessRate, domain.AlertCritical,
			fmt.Sprintf("Critical success rate: %.1f%%", m.SuccessRate.Current*100),
			t.SuccessRate.Critical, m.SuccessRate.Current))
	case m.SuccessRate.Current < t.SuccessRate.Warning:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertSuccessRate, domain.AlertWarning,
			fmt.Sprintf("Low success rate: %.1f%%", m.SuccessRate.Current*100),
			t.SuccessRate.Warning, m.SuccessRate.Current))
	}

	switch {
	case m.ErrorRate.Current > t.ErrorRate.Critical:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertErrorRate, domain.AlertCritical,
			fmt.Sprintf("Critical error rate: %.1f%%", m.ErrorRate.Current*100),
			t.ErrorRate.Critical, m.ErrorRate.Current))
	case m.ErrorRate.Current > t.ErrorRate.Warning:
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertErrorRate, domain.AlertWarning,
			fmt.Sprintf("High error rate: %.1f%%", m.ErrorRate.Current*100),
			t.ErrorRate.Warning, m.ErrorRate.Current))
	}

	if m.SystemHealth.Status == domain.HealthOffline {
		alerts = append(alerts, newAlert(m.AgentName, domain.AlertSystemHealth, domain.AlertCritical,
			"Agent is offline", 0, 0))
	}

	return alerts
}

func newAlert(agent string, alertType domain.AlertType, severity domain.AlertSeverity, message string, threshold, current float64) *domain.PerformanceAlert {
	now := time.Now()
	return &domain.PerformanceAlert{
		ID:           fmt.Sprintf("%s_%s_%d", agent, alertType, now.UnixMilli()),
		AgentName:    agent,
		AlertType:    alertType,
		Severity:     severity,
		Message:      message,
		Threshold:    threshold,
		CurrentValue: current,
		TriggeredAt:  now,
	}
}

// raiseAlert регистрирует алерт с дедупликацией: пока по паре (агент, тип)
// есть неразрешенный алерт, повторное срабатывание не создает новый.
func (d *Dashboard) raiseAlert(ctx context.Context, alert *domain.PerformanceAlert) {
	key := alertKey(alert.AgentName, alert.AlertType)

	d.mu.Lock()
	if _, active := d.activeKey[key]; active {
		d.mu.Unlock()
		return
	}
	d.alerts[alert.ID] = alert
	d.activeKey[key] = alert.ID
	d.mu.Unlock()

	d.metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Inc()
	d.logger.Warn("performance alert",
		zap.String("agent", alert.AgentName),
		zap.String("type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))

	if d.notifier != nil {
		d.notifier.Notify(ctx, alert)
	}
}

// AcknowledgeAlert помечает алерт принятым. Алерт остается активным.
func (d *Dashboard) AcknowledgeAlert(alertID, user string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	alert, ok := d.alerts[alertID]
	if !ok || alert.ResolvedAt != nil {
		return false
	}
	alert.Acknowledged = true
	alert.AckBy = user
	d.logger.Info("alert acknowledged",
		zap.String("alert_id", alertID), zap.String("user", user))
	return true
}

// ResolveAlert закрывает алерт и снимает блокировку дедупликации,
// следующее пробитие порога создаст новый алерт.
func (d *Dashboard) ResolveAlert(alertID, user string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	alert, ok := d.alerts[alertID]
	if !ok || alert.ResolvedAt != nil {
		return false
	}
	now := time.Now()
	alert.ResolvedAt = &now
	alert.ResolvedBy = user
	delete(d.activeKey, alertKey(alert.AgentName, alert.AlertType))

	d.metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Dec()
	d.logger.Info("alert resolved",
		zap.String("alert_id", alertID), zap.String("user", user))
	return true
}

func alertKey(agent string, alertType domain.AlertType) string {
	return agent + ":" + string(alertType)
}
