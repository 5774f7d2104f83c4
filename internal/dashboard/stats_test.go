package dashboard

import (
	"testing"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPercentileFloorIndex(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	// floor(10 * 0.95) = 9 -> последний элемент
	assert.Equal(t, 100.0, percentile(sorted, 0.95))
	assert.Equal(t, 100.0, percentile(sorted, 0.99))
	assert.Equal(t, 60.0, percentile(sorted, 0.5))
	assert.Equal(t, 0.0, percentile(nil, 0.95))
}

func TestResponseTimeStats(t *testing.T) {
	stats := responseTimeStats([]float64{100, 200, 300, 400})

	assert.Equal(t, 400.0, stats.Current)
	assert.Equal(t, 250.0, stats.Average)
	// 400 > 250*1.2 -> растущий тренд
	assert.Equal(t, domain.TrendUp, stats.Trend)

	empty := responseTimeStats(nil)
	assert.Equal(t, 0.0, empty.Current)
	assert.Equal(t, domain.TrendStable, empty.Trend)
}

func TestThroughputPerMinute(t *testing.T) {
	assert.Equal(t, 10.0, throughputPerMinute(50, 5*time.Minute))
	assert.Equal(t, 0.0, throughputPerMinute(50, 0))
}

func snapshotWithSuccessRate(v float64) domain.DashboardMetrics {
	return domain.DashboardMetrics{SuccessRate: domain.SuccessRateStats{Current: v}}
}

func TestHistoryTrend(t *testing.T) {
	extract := func(m domain.DashboardMetrics) float64 { return m.SuccessRate.Current }

	tests := []struct {
		name   string
		values []float64
		want   domain.Trend
	}{
		{"too few samples", []float64{0.5, 0.9}, domain.TrendStable},
		{"rising above 10%", []float64{0.5, 0.5, 0.6}, domain.TrendUp},
		{"falling below 10%", []float64{0.9, 0.9, 0.7}, domain.TrendDown},
		{"within 10% band", []float64{0.9, 0.9, 0.92}, domain.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var history []domain.DashboardMetrics
			for _, v := range tt.values {
				history = append(history, snapshotWithSuccessRate(v))
			}
			assert.Equal(t, tt.want, historyTrend(history, extract))
		})
	}
}

func TestHistoryAverageAndPeak(t *testing.T) {
	extract := func(m domain.DashboardMetrics) float64 { return m.SuccessRate.Current }
	history := []domain.DashboardMetrics{
		snapshotWithSuccessRate(0.4),
		snapshotWithSuccessRate(0.8),
		snapshotWithSuccessRate(0.6),
	}

	assert.InDelta(t, 0.6, historyAverage(history, extract), 1e-9)
	assert.Equal(t, 0.8, historyPeak(history, extract))
	assert.Equal(t, 0.0, historyAverage(nil, extract))
}
