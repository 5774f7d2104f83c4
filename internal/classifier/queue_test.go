package classifier

import (
	"testing"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdering(t *testing.T) {
	q := NewPriorityQueue()

	q.Add(&domain.Signal{ID: 1}, 70, domain.PriorityHigh)
	q.Add(&domain.Signal{ID: 2}, 90, domain.PriorityCritical)
	q.Add(&domain.Signal{ID: 3}, 70, domain.PriorityHigh)
	q.Add(&domain.Signal{ID: 4}, 40, domain.PriorityLow)

	// Максимальный score первым, внутри одного score — порядок вставки
	wantIDs := []int64{2, 1, 3, 4}
	wantScores := []int{90, 70, 70, 40}
	for i, wantID := range wantIDs {
		s, score := q.Pop()
		require.NotNil(t, s)
		assert.Equal(t, wantID, s.ID)
		assert.Equal(t, wantScores[i], score)
	}

	s, score := q.Pop()
	assert.Nil(t, s)
	assert.Equal(t, 0, score)
}

func TestPriorityQueueStats(t *testing.T) {
	q := NewPriorityQueue()
	q.Add(&domain.Signal{ID: 1}, 100, domain.PriorityCritical)
	q.Add(&domain.Signal{ID: 2}, 80, domain.PriorityHigh)
	q.Add(&domain.Signal{ID: 3}, 60, domain.PriorityNormal)
	q.Add(&domain.Signal{ID: 4}, 60, domain.PriorityNormal)

	stats := q.Stats()
	assert.Equal(t, 4, stats.TotalSignals)
	assert.Equal(t, 1, stats.CriticalCount)
	assert.Equal(t, 1, stats.HighCount)
	assert.Equal(t, 2, stats.NormalCount)
	assert.Equal(t, 0, stats.LowCount)

	q.Pop()
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, 0, q.Stats().CriticalCount)

	q.Clear()
	assert.Equal(t, 0, q.Size())
	s, _ := q.Pop()
	assert.Nil(t, s)
}
