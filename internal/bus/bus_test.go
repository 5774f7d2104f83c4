package bus

import (
	"context"
	"testing"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSignalStore — in-memory замена Postgres-репозитория.
type fakeSignalStore struct {
	nextID  int64
	signals map[int64]*domain.Signal
	stale   int
	requeue int64
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{signals: make(map[int64]*domain.Signal)}
}

func (f *fakeSignalStore) LogSignal(ctx context.Context, s *domain.Signal) (int64, error) {
	f.nextID++
	stored := *s
	stored.ID = f.nextID
	stored.Status = domain.StatusPending
	stored.CreatedAt = time.Now()
	f.signals[stored.ID] = &stored
	return stored.ID, nil
}

func (f *fakeSignalStore) UpdateStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error {
	s := f.signals[id]
	s.Status = status
	s.ErrorMsg = errMsg
	return nil
}

func (f *fakeSignalStore) GetSignal(ctx context.Context, id int64) (*domain.Signal, error) {
	return f.signals[id], nil
}

func (f *fakeSignalStore) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	var out []*domain.Signal
	for _, s := range f.signals {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSignalStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return f.requeue, nil
}

func (f *fakeSignalStore) CountStale(ctx context.Context, agent string, olderThan time.Duration) (int, error) {
	return f.stale, nil
}

// fakeRegistryStore копит взаимодействия и замеры для проверок.
type fakeRegistryStore struct {
	agents       map[string]*domain.AgentRecord
	interactions []*domain.Interaction
	metrics      []*domain.MetricSample
}

func newFakeRegistryStore() *fakeRegistryStore {
	return &fakeRegistryStore{agents: make(map[string]*domain.AgentRecord)}
}

func (f *fakeRegistryStore) UpsertAgent(ctx context.Context, a *domain.AgentRecord) error {
	f.agents[a.AgentName] = a
	return nil
}

func (f *fakeRegistryStore) ListAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	var out []*domain.AgentRecord
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRegistryStore) GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error) {
	return f.agents[name], nil
}

func (f *fakeRegistryStore) LogInteraction(ctx context.Context, i *domain.Interaction) error {
	f.interactions = append(f.interactions, i)
	return nil
}

func (f *fakeRegistryStore) RecordMetric(ctx context.Context, m *domain.MetricSample) error {
	f.metrics = append(f.metrics, m)
	return nil
}

func (f *fakeRegistryStore) GetAgentPerformance(ctx context.Context, agent, timeWindow string, limit int) ([]*domain.MetricSample, error) {
	return f.metrics, nil
}

func newTestBus() (*Bus, *fakeSignalStore, *fakeRegistryStore) {
	signals := newFakeSignalStore()
	registry := newFakeRegistryStore()
	return NewBus(signals, registry, nil, nil, zap.NewNop()), signals, registry
}

func TestLogSignalNormalizesPriority(t *testing.T) {
	b, store, _ := newTestBus()

	id, err := b.LogSignal(context.Background(), &domain.Signal{
		SignalType: "STATUS_UPDATE",
		FromAgent:  "scout",
		ToAgent:    "worker",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	stored := store.signals[id]
	assert.Equal(t, domain.PriorityNormal, stored.Priority)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestUpdateSignalStatusGuards(t *testing.T) {
	b, store, _ := newTestBus()
	ctx := context.Background()

	id, err := b.LogSignal(ctx, &domain.Signal{SignalType: "PING", FromAgent: "a", ToAgent: "b"})
	require.NoError(t, err)

	// Неизвестный статус отклоняется до похода в хранилище
	err = b.UpdateSignalStatus(ctx, id, domain.SignalStatus("weird"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")

	require.NoError(t, b.UpdateSignalStatus(ctx, id, domain.StatusProcessing, ""))
	require.NoError(t, b.UpdateSignalStatus(ctx, id, domain.StatusCompleted, ""))
	assert.Equal(t, domain.StatusCompleted, store.signals[id].Status)

	// Назад в processing из терминального нельзя
	err = b.UpdateSignalStatus(ctx, id, domain.StatusProcessing, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")

	// Терминальный сигнал можно отметить replayed
	require.NoError(t, b.UpdateSignalStatus(ctx, id, domain.StatusReplayed, ""))

	err = b.UpdateSignalStatus(ctx, 999, domain.StatusCompleted, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCallAgentCompleteCall(t *testing.T) {
	b, store, registry := newTestBus()
	ctx := context.Background()

	call, err := b.CallAgent(ctx, "worker", domain.TaskPayload{Description: "crawl site"}, "scout", domain.PriorityHigh)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "worker", call.ToAgent)
	assert.Equal(t, domain.SignalCallAgent, store.signals[call.SignalID].SignalType)

	require.NoError(t, b.CompleteCall(ctx, call, domain.OutcomeSuccess, []byte(`{"ok":true}`), ""))
	assert.Equal(t, domain.StatusCompleted, store.signals[call.SignalID].Status)

	require.Len(t, registry.interactions, 1)
	i := registry.interactions[0]
	assert.Equal(t, "call", i.InteractionType)
	assert.Equal(t, "crawl site", i.TaskDescription)
	assert.Equal(t, domain.OutcomeSuccess, i.Outcome)

	// response_time всегда, success_rate только на успехе
	require.Len(t, registry.metrics, 2)
	assert.Equal(t, "response_time", registry.metrics[0].MetricType)
	assert.Equal(t, "success_rate", registry.metrics[1].MetricType)
	assert.Equal(t, "worker", registry.metrics[0].AgentName)

	// Повторное завершение — ошибка
	err = b.CompleteCall(ctx, call, domain.OutcomeSuccess, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
}

func TestCompleteCallFailureSkipsSuccessRate(t *testing.T) {
	b, store, registry := newTestBus()
	ctx := context.Background()

	call, err := b.CallAgent(ctx, "worker", domain.TaskPayload{Description: "flaky"}, "scout", domain.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, b.CompleteCall(ctx, call, domain.OutcomeFailure, nil, "timeout waiting for agent"))
	assert.Equal(t, domain.StatusFailed, store.signals[call.SignalID].Status)
	assert.Equal(t, "timeout waiting for agent", store.signals[call.SignalID].ErrorMsg)

	require.Len(t, registry.metrics, 1)
	assert.Equal(t, "response_time", registry.metrics[0].MetricType)
}

func TestBroadcastLogsInteraction(t *testing.T) {
	b, store, registry := newTestBus()

	id, err := b.Broadcast(context.Background(), "SYSTEM_NOTICE",
		domain.NoticePayload{Subject: "maintenance window"}, "orchestrator", domain.PriorityLow)
	require.NoError(t, err)

	assert.Empty(t, store.signals[id].ToAgent)
	require.Len(t, registry.interactions, 1)
	assert.Equal(t, "BROADCAST", registry.interactions[0].ToAgent)
	assert.Equal(t, "broadcast", registry.interactions[0].InteractionType)
}

func TestStaleDelegation(t *testing.T) {
	b, store, _ := newTestBus()
	store.stale = 4
	store.requeue = 2

	n, err := b.CountStaleSignals(context.Background(), "worker", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	requeued, err := b.RequeueStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)
}

func TestUpdateAgentRegistryWithoutRedis(t *testing.T) {
	b, _, registry := newTestBus()

	require.NoError(t, b.UpdateAgentRegistry(context.Background(), &domain.AgentRecord{
		AgentName: "worker",
		Status:    "active",
	}))
	assert.Contains(t, registry.agents, "worker")
}
