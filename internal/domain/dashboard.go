package domain

import "time"

// Trend — направление метрики по последним трем снимкам.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// HealthStatus — интегральное здоровье агента.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
	HealthOffline  HealthStatus = "offline"
)

type ResponseTimeStats struct {
	Current      float64 `json:"current_ms"`
	Average      float64 `json:"average_ms"`
	Trend        Trend   `json:"trend"`
	Percentile95 float64 `json:"p95_ms"`
	Percentile99 float64 `json:"p99_ms"`
}

type SuccessRateStats struct {
	Current         float64 `json:"current"`
	Average         float64 `json:"average"`
	Trend           Trend   `json:"trend"`
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
}

type ThroughputStats struct {
	Current float64 `json:"current_per_min"`
	Average float64 `json:"average_per_min"`
	Peak    float64 `json:"peak_per_min"`
	Total   int     `json:"total"`
}

type ErrorRateStats struct {
	Current     float64        `json:"current"`
	Average     float64        `json:"average"`
	TotalErrors int            `json:"total_errors"`
	ErrorTypes  map[string]int `json:"error_types"`
}

type SystemHealth struct {
	Status   HealthStatus `json:"status"`
	LastSeen time.Time    `json:"last_seen"`
	// Сигналы, зависшие в pending/processing дольше порога —
	// индикатор упавшего потребителя.
	StaleSignals int `json:"stale_signals"`
}

// DashboardMetrics — снимок метрик одного агента за один тик сбора.
// История снимков append-only, обрезается окном ретенции.
type DashboardMetrics struct {
	AgentName    string            `json:"agent_name"`
	ResponseTime ResponseTimeStats `json:"response_time"`
	SuccessRate  SuccessRateStats  `json:"success_rate"`
	Throughput   ThroughputStats   `json:"throughput"`
	ErrorRate    ErrorRateStats    `json:"error_rate"`
	SystemHealth SystemHealth      `json:"system_health"`
	LastUpdated  time.Time         `json:"last_updated"`
}

// AlertType — какая метрика пробила порог.
type AlertType string

const (
	AlertResponseTime AlertType = "response_time"
	AlertSuccessRate  AlertType = "success_rate"
	AlertErrorRate    AlertType = "error_rate"
	AlertSystemHealth AlertType = "system_health"
)

// AlertSeverity — серьезность алерта.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertErrSev   AlertSeverity = "error"
	AlertCritical AlertSeverity = "critical"
)

// PerformanceAlert — срабатывание порога. Идентичность — (agent, type, время
// создания); пока алерт с такой идентичностью активен, повторное
// срабатывание не создает дубликат.
type PerformanceAlert struct {
	ID           string        `json:"id"`
	AgentName    string        `json:"agent_name"`
	AlertType    AlertType     `json:"alert_type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Threshold    float64       `json:"threshold"`
	CurrentValue float64       `json:"current_value"`
	TriggeredAt  time.Time     `json:"triggered_at"`
	Acknowledged bool          `json:"acknowledged"`
	AckBy        string        `json:"acknowledged_by,omitempty"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy   string        `json:"resolved_by,omitempty"`
}

// DashboardSummary — сводка по всем агентам.
type DashboardSummary struct {
	TotalAgents    int `json:"total_agents"`
	HealthyAgents  int `json:"healthy_agents"`
	ActiveAlerts   int `json:"active_alerts"`
	CriticalAlerts int `json:"critical_alerts"`
}

// DashboardData — контракт Observe.
type DashboardData struct {
	Agents       map[string]DashboardMetrics `json:"agents"`
	ActiveAlerts []PerformanceAlert          `json:"active_alerts"`
	Summary      DashboardSummary            `json:"summary"`
}
