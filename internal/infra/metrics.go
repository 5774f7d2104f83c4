package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько сигналов записано
	SignalsLogged *prometheus.CounterVec

	// Сколько сигналов отфильтровано правилами (drop)
	SignalsFiltered prometheus.Counter

	// Saturation: глубина очереди приоритетов
	QueueDepth prometheus.Gauge

	// Критические события по типам
	CriticalEvents *prometheus.CounterVec

	// Активные алерты дашборда по серьезности
	ActiveAlerts *prometheus.GaugeVec

	// Latency: длительность тика сбора метрик
	CollectionDuration prometheus.Histogram

	// Реплей: сколько сигналов воспроизведено
	ReplayedSignals prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SignalsLogged: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sigcore_signals_logged_total",
			Help: "Total number of signals appended to the store.",
		}, []string{"signal_type", "priority"}),

		SignalsFiltered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigcore_signals_filtered_total",
			Help: "Total number of signals dropped by filter rules.",
		}),

		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sigcore_priority_queue_depth",
			Help: "Current number of signals waiting in the priority queue.",
		}),

		CriticalEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sigcore_critical_events_total",
			Help: "Total number of critical events detected by type.",
		}, []string{"type"}),

		ActiveAlerts: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sigcore_active_alerts",
			Help: "Current number of active performance alerts by severity.",
		}, []string{"severity"}),

		CollectionDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "sigcore_collection_tick_seconds",
			Help:    "Histogram of dashboard collection tick durations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		ReplayedSignals: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigcore_replayed_signals_total",
			Help: "Total number of signals re-emitted by the replay engine.",
		}),
	}
}
