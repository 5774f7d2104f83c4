package dashboard

import (
	"sort"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
)

// responseTimeStats агрегирует замеры времени ответа (мс).
// current — верхний замер отсортированного ряда, перцентили по индексу
// floor(n*q) без интерполяции.
func responseTimeStats(samples []float64) domain.ResponseTimeStats {
	if len(samples) == 0 {
		return domain.ResponseTimeStats{Trend: domain.TrendStable}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	current := sorted[len(sorted)-1]
	avg := mean(sorted)

	trend := domain.TrendStable
	switch {
	case current > avg*1.2:
		trend = domain.TrendUp
	case current < avg*0.8:
		trend = domain.TrendDown
	}

	return domain.ResponseTimeStats{
		Current:      current,
		Average:      avg,
		Trend:        trend,
		Percentile95: percentile(sorted, 0.95),
		Percentile99: percentile(sorted, 0.99),
	}
}

// percentile — значение по индексу floor(n*q) отсортированного ряда.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// throughputPerMinute нормирует число сигналов за окно к сигналам в минуту.
func throughputPerMinute(count int, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(count) / window.Minutes()
}

// historyTrend — направление метрики по последним трем снимкам истории.
// Меньше трех снимков — stable. Порог значимости 10% от предыдущего значения.
func historyTrend(history []domain.DashboardMetrics, extract func(domain.DashboardMetrics) float64) domain.Trend {
	if len(history) < 3 {
		return domain.TrendStable
	}

	recent := history[len(history)-3:]
	prev := extract(recent[len(recent)-2])
	last := extract(recent[len(recent)-1])

	delta := last - prev
	threshold := prev * 0.1
	if threshold < 0 {
		threshold = -threshold
	}

	switch {
	case delta > threshold:
		return domain.TrendUp
	case delta < -threshold:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

// historyAverage — среднее значение метрики по всей хранимой истории агента.
func historyAverage(history []domain.DashboardMetrics, extract func(domain.DashboardMetrics) float64) float64 {
	if len(history) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range history {
		sum += extract(m)
	}
	return sum / float64(len(history))
}

// historyPeak — максимум метрики по хранимой истории агента.
func historyPeak(history []domain.DashboardMetrics, extract func(domain.DashboardMetrics) float64) float64 {
	peak := 0.0
	for _, m := range history {
		if v := extract(m); v > peak {
			peak = v
		}
	}
	return peak
}
