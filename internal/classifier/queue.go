package classifier

import (
	"sort"
	"sync"

	"github.com/piata-ai/signalcore/internal/domain"
)

// queueEntry — сигнал с присвоенным score и тиром классификации (для статистики).
type queueEntry struct {
	signal *domain.Signal
	score  int
	tier   domain.SignalPriority
}

// QueueStats — срез состояния очереди по тирам.
type QueueStats struct {
	TotalSignals  int `json:"total_signals"`
	CriticalCount int `json:"critical_count"`
	HighCount     int `json:"high_count"`
	NormalCount   int `json:"normal_count"`
	LowCount      int `json:"low_count"`
}

// PriorityQueue — max-очередь по целому score. Внутри одного score — FIFO.
// Защищена мьютексом: вставка и pop могут идти из разных горутин.
type PriorityQueue struct {
	mu      sync.Mutex
	buckets map[int][]*queueEntry
	size    int
	byTier  map[domain.SignalPriority]int
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		buckets: make(map[int][]*queueEntry),
		byTier:  make(map[domain.SignalPriority]int),
	}
}

// Add вставляет сигнал в хвост бакета своего score.
func (q *PriorityQueue) Add(s *domain.Signal, score int, tier domain.SignalPriority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.buckets[score] = append(q.buckets[score], &queueEntry{signal: s, score: score, tier: tier})
	q.size++
	q.byTier[tier]++
}

// Pop возвращает сигнал с наибольшим score; при равенстве — порядок вставки.
// nil, 0 — если очередь пуста.
func (q *PriorityQueue) Pop() (*domain.Signal, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil, 0
	}

	scores := make([]int, 0, len(q.buckets))
	for s := range q.buckets {
		scores = append(scores, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))

	for _, score := range scores {
		bucket := q.buckets[score]
		if len(bucket) == 0 {
			continue
		}
		entry := bucket[0]
		if len(bucket) == 1 {
			delete(q.buckets, score)
		} else {
			q.buckets[score] = bucket[1:]
		}
		q.size--
		q.byTier[entry.tier]--
		return entry.signal, entry.score
	}
	return nil, 0
}

func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buckets = make(map[int][]*queueEntry)
	q.byTier = make(map[domain.SignalPriority]int)
	q.size = 0
}

func (q *PriorityQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		TotalSignals:  q.size,
		CriticalCount: q.byTier[domain.PriorityCritical],
		HighCount:     q.byTier[domain.PriorityHigh],
		NormalCount:   q.byTier[domain.PriorityNormal],
		LowCount:      q.byTier[domain.PriorityLow],
	}
}
