package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/piata-ai/signalcore/internal/bus"
	"github.com/piata-ai/signalcore/internal/domain"
	"go.uber.org/zap"
)

// SignalService — прослойка между HTTP-хендлерами и шиной. Держит реестр
// незавершенных вызовов: агент завершает вызов отдельным запросом по ID
// исходного сигнала.
type SignalService struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	pending map[int64]*bus.PendingCall
}

func NewSignalService(b *bus.Bus, logger *zap.Logger) *SignalService {
	return &SignalService{
		bus:     b,
		logger:  logger.Named("signal-service"),
		pending: make(map[int64]*bus.PendingCall),
	}
}

func (s *SignalService) LogSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	return s.bus.LogSignal(ctx, sig)
}

func (s *SignalService) GetSignal(ctx context.Context, id int64) (*domain.Signal, error) {
	return s.bus.GetSignal(ctx, id)
}

func (s *SignalService) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	return s.bus.GetSignals(ctx, filter, limit)
}

func (s *SignalService) UpdateStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error {
	return s.bus.UpdateSignalStatus(ctx, id, status, errMsg)
}

func (s *SignalService) Broadcast(ctx context.Context, signalType string, payload domain.Payload, fromAgent string, priority domain.SignalPriority) (int64, error) {
	return s.bus.Broadcast(ctx, signalType, payload, fromAgent, priority)
}

// CallAgent логирует точечный вызов и регистрирует его как незавершенный.
func (s *SignalService) CallAgent(ctx context.Context, toAgent string, task domain.TaskPayload, fromAgent string, priority domain.SignalPriority) (int64, error) {
	call, err := s.bus.CallAgent(ctx, toAgent, task, fromAgent, priority)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.pending[call.SignalID] = call
	s.mu.Unlock()
	return call.SignalID, nil
}

// CompleteCall закрывает ранее зарегистрированный вызов. Вызов удаляется из
// реестра независимо от исхода: завершение одноразово.
func (s *SignalService) CompleteCall(ctx context.Context, signalID int64, outcome domain.InteractionOutcome, result json.RawMessage, errMsg string) error {
	s.mu.Lock()
	call, ok := s.pending[signalID]
	delete(s.pending, signalID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("service: no pending call for signal %d", signalID)
	}
	return s.bus.CompleteCall(ctx, call, outcome, result, errMsg)
}

// SubscribeSignals блокируется до отмены контекста, транслируя уведомления
// о новых сигналах в fn. Пустой agent означает общий канал.
func (s *SignalService) SubscribeSignals(ctx context.Context, agent string, fn func(bus.Notification)) error {
	return s.bus.SubscribeSignals(ctx, agent, nil, fn)
}

func (s *SignalService) UpdateAgentRegistry(ctx context.Context, a *domain.AgentRecord) error {
	return s.bus.UpdateAgentRegistry(ctx, a)
}

func (s *SignalService) GetRegisteredAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	return s.bus.GetRegisteredAgents(ctx)
}

func (s *SignalService) GetAgentHealth(ctx context.Context, name string) (*domain.AgentRecord, error) {
	return s.bus.GetAgentHealth(ctx, name)
}

func (s *SignalService) GetAgentPerformance(ctx context.Context, agent, timeWindow string, limit int) ([]*domain.MetricSample, error) {
	return s.bus.GetAgentPerformance(ctx, agent, timeWindow, limit)
}

// RequeueStale — операторский возврат зависших сигналов в pending.
func (s *SignalService) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.bus.RequeueStale(ctx, olderThan)
}
