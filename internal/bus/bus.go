package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SignalStore описывает требования шины к хранилищу сигналов.
type SignalStore interface {
	LogSignal(ctx context.Context, s *domain.Signal) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error
	GetSignal(ctx context.Context, id int64) (*domain.Signal, error)
	GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CountStale(ctx context.Context, agent string, olderThan time.Duration) (int, error)
}

// RegistryStore описывает требования шины к реестру и истории.
type RegistryStore interface {
	UpsertAgent(ctx context.Context, a *domain.AgentRecord) error
	ListAgents(ctx context.Context) ([]*domain.AgentRecord, error)
	GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error)
	LogInteraction(ctx context.Context, i *domain.Interaction) error
	RecordMetric(ctx context.Context, m *domain.MetricSample) error
	GetAgentPerformance(ctx context.Context, agent, timeWindow string, limit int) ([]*domain.MetricSample, error)
}

// ErrNotificationsDisabled возвращается подпиской, когда шина работает
// без Redis (деградированный режим: персистентность есть, real-time нет).
var ErrNotificationsDisabled = errors.New("bus: redis notifications disabled")

// Bus — сервисный фасад Signal Store: персистентность плюс real-time
// уведомление потребителей через Redis. Ошибки хранилища уходят вызывающему
// как есть — повторы здесь не делаются.
type Bus struct {
	signals  SignalStore
	registry RegistryStore
	rdb      *redis.Client
	metrics  *infra.Metrics
	logger   *zap.Logger
}

func NewBus(signals SignalStore, registry RegistryStore, rdb *redis.Client, metrics *infra.Metrics, logger *zap.Logger) *Bus {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Bus{
		signals:  signals,
		registry: registry,
		rdb:      rdb,
		metrics:  metrics,
		logger:   logger.Named("bus"),
	}
}

// LogSignal добавляет сигнал (status=pending, retry_count=0) и возвращает ID.
// Redis-уведомление fire-and-forget: его сбой логируется, но не валит запись.
func (b *Bus) LogSignal(ctx context.Context, s *domain.Signal) (int64, error) {
	s.Priority = domain.NormalizePriority(s.Priority)

	id, err := b.signals.LogSignal(ctx, s)
	if err != nil {
		return 0, err
	}

	b.metrics.SignalsLogged.WithLabelValues(s.SignalType, string(s.Priority)).Inc()
	b.logger.Info("signal logged",
		zap.Int64("id", id),
		zap.String("type", s.SignalType),
		zap.String("from", s.FromAgent),
		zap.String("to", destination(s)))

	b.notifyLogged(ctx, s)
	return id, nil
}

// UpdateSignalStatus ставит статус с защитной проверкой перехода:
// статус движется только вперед, повторный заход в pending невозможен.
func (b *Bus) UpdateSignalStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error {
	if !domain.ValidStatus(status) {
		return fmt.Errorf("bus: unknown status %q", status)
	}

	current, err := b.signals.GetSignal(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("bus: signal %d not found", id)
	}
	if !current.Status.CanTransition(status) {
		return fmt.Errorf("bus: illegal transition %s -> %s for signal %d", current.Status, status, id)
	}

	if err := b.signals.UpdateStatus(ctx, id, status, errMsg); err != nil {
		return err
	}

	b.logger.Info("signal status updated",
		zap.Int64("id", id), zap.String("status", string(status)))
	return nil
}

// GetSignals — выборка от новых к старым. Потребитель дофильтровывает
// "адресовано мне или broadcast, не от меня" сам: фильтр хранилища по агенту
// матчит и отправителя, и адресата.
func (b *Bus) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	return b.signals.GetSignals(ctx, filter, limit)
}

func (b *Bus) GetSignal(ctx context.Context, id int64) (*domain.Signal, error) {
	return b.signals.GetSignal(ctx, id)
}

// LogAgentInteraction пишет историю обучения для офлайн-анализа.
func (b *Bus) LogAgentInteraction(ctx context.Context, i *domain.Interaction) error {
	return b.registry.LogInteraction(ctx, i)
}

// RecordPerformanceMetrics добавляет один сырой замер.
func (b *Bus) RecordPerformanceMetrics(ctx context.Context, m *domain.MetricSample) error {
	return b.registry.RecordMetric(ctx, m)
}

// UpdateAgentRegistry — upsert по имени агента, heartbeat освежается всегда.
// Имя агента дополнительно попадает в Redis-set для быстрых проверок живости.
func (b *Bus) UpdateAgentRegistry(ctx context.Context, a *domain.AgentRecord) error {
	if err := b.registry.UpsertAgent(ctx, a); err != nil {
		return err
	}
	if b.rdb != nil {
		if err := b.rdb.SAdd(ctx, infra.RedisKeyAgentHeartbeats, a.AgentName).Err(); err != nil {
			b.logger.Warn("heartbeat set update failed", zap.Error(err))
		}
	}
	b.logger.Info("agent registry updated",
		zap.String("agent", a.AgentName), zap.String("status", a.Status))
	return nil
}

func (b *Bus) GetRegisteredAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	return b.registry.ListAgents(ctx)
}

func (b *Bus) GetAgentHealth(ctx context.Context, name string) (*domain.AgentRecord, error) {
	return b.registry.GetAgent(ctx, name)
}

func (b *Bus) GetAgentPerformance(ctx context.Context, agent, timeWindow string, limit int) ([]*domain.MetricSample, error) {
	return b.registry.GetAgentPerformance(ctx, agent, timeWindow, limit)
}

// RequeueStale — явная операторская операция: вернуть зависшие в processing
// сигналы в pending. Автоматического TTL у сигналов нет.
func (b *Bus) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := b.signals.RequeueStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.logger.Warn("stale signals requeued", zap.Int64("count", n))
	}
	return n, nil
}

// CountStaleSignals — сколько незавершенных сигналов агента висит дольше порога.
func (b *Bus) CountStaleSignals(ctx context.Context, agent string, olderThan time.Duration) (int, error) {
	return b.signals.CountStale(ctx, agent, olderThan)
}

// Broadcast логирует широковещательный сигнал и историю взаимодействия.
func (b *Bus) Broadcast(ctx context.Context, signalType string, payload domain.Payload, fromAgent string, priority domain.SignalPriority) (int64, error) {
	id, err := b.LogSignal(ctx, &domain.Signal{
		SignalType: signalType,
		FromAgent:  fromAgent,
		Content:    payload,
		Priority:   priority,
	})
	if err != nil {
		return 0, err
	}

	ictx, _ := json.Marshal(map[string]string{
		"signal_type": signalType,
		"priority":    string(domain.NormalizePriority(priority)),
	})
	if err := b.registry.LogInteraction(ctx, &domain.Interaction{
		FromAgent:       fromAgent,
		ToAgent:         "BROADCAST",
		InteractionType: "broadcast",
		Outcome:         domain.OutcomeSuccess,
		Context:         ictx,
	}); err != nil {
		b.logger.Warn("broadcast interaction log failed", zap.Error(err))
	}
	return id, nil
}

// PendingCall — значение незавершенного вызова. Прокидывается через
// control flow вызывающего и завершается ровно один раз через CompleteCall;
// болтающегося callback-хендла здесь нет.
type PendingCall struct {
	SignalID  int64
	FromAgent string
	ToAgent   string
	Task      domain.TaskPayload
	StartedAt time.Time

	completed atomic.Bool
}

// CallAgent — канонический request/response паттерн точечного вызова:
// логирует CALL_AGENT и возвращает значение для последующего CompleteCall.
func (b *Bus) CallAgent(ctx context.Context, toAgent string, task domain.TaskPayload, fromAgent string, priority domain.SignalPriority) (*PendingCall, error) {
	id, err := b.LogSignal(ctx, &domain.Signal{
		SignalType: domain.SignalCallAgent,
		FromAgent:  fromAgent,
		ToAgent:    toAgent,
		Content:    task,
		Priority:   priority,
	})
	if err != nil {
		return nil, err
	}

	return &PendingCall{
		SignalID:  id,
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Task:      task,
		StartedAt: time.Now(),
	}, nil
}

// CompleteCall закрывает вызов: статус сигнала, история взаимодействия и
// замер response_time одним шагом. Повторное завершение — ошибка.
func (b *Bus) CompleteCall(ctx context.Context, call *PendingCall, outcome domain.InteractionOutcome, result json.RawMessage, errMsg string) error {
	if call == nil {
		return fmt.Errorf("bus: nil call")
	}
	if !call.completed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus: call %d already completed", call.SignalID)
	}

	duration := time.Since(call.StartedAt)

	status := domain.StatusCompleted
	if outcome != domain.OutcomeSuccess {
		status = domain.StatusFailed
	}
	if err := b.UpdateSignalStatus(ctx, call.SignalID, status, errMsg); err != nil {
		return err
	}

	ictx, _ := json.Marshal(map[string]interface{}{
		"result": result,
		"error":  errMsg,
	})
	if err := b.registry.LogInteraction(ctx, &domain.Interaction{
		FromAgent:       call.FromAgent,
		ToAgent:         call.ToAgent,
		InteractionType: "call",
		TaskDescription: call.Task.Description,
		Outcome:         outcome,
		DurationMs:      duration.Milliseconds(),
		Context:         ictx,
	}); err != nil {
		b.logger.Warn("call interaction log failed", zap.Error(err))
	}

	if err := b.registry.RecordMetric(ctx, &domain.MetricSample{
		AgentName:  call.ToAgent,
		MetricType: "response_time",
		Value:      float64(duration.Milliseconds()),
		TimeWindow: "5m",
	}); err != nil {
		b.logger.Warn("response_time sample failed", zap.Error(err))
	}

	if outcome == domain.OutcomeSuccess {
		if err := b.registry.RecordMetric(ctx, &domain.MetricSample{
			AgentName:  call.ToAgent,
			MetricType: "success_rate",
			Value:      1,
			TimeWindow: "5m",
		}); err != nil {
			b.logger.Warn("success_rate sample failed", zap.Error(err))
		}
	}
	return nil
}

// notifyLogged будит потребителей: общий канал плюс персональный канал адресата.
func (b *Bus) notifyLogged(ctx context.Context, s *domain.Signal) {
	if b.rdb == nil {
		return
	}
	payload := fmt.Sprintf("%d:%s:%s", s.ID, s.SignalType, s.ToAgent)
	if err := b.rdb.Publish(ctx, infra.RedisChanSignalLogged, payload).Err(); err != nil {
		b.logger.Warn("signal notification failed", zap.Error(err))
		return
	}
	if !s.IsBroadcast() {
		if err := b.rdb.Publish(ctx, infra.GetAgentChannel(s.ToAgent), payload).Err(); err != nil {
			b.logger.Warn("agent wake notification failed",
				zap.String("agent", s.ToAgent), zap.Error(err))
		}
	}
}

func destination(s *domain.Signal) string {
	if s.IsBroadcast() {
		return "BROADCAST"
	}
	return s.ToAgent
}
