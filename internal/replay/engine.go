package replay

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"go.uber.org/zap"
)

// Source — требования движка воспроизведения к шине сигналов.
type Source interface {
	GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error)
	GetSignal(ctx context.Context, id int64) (*domain.Signal, error)
	UpdateSignalStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error
}

// session — доменная сессия плюс каналы управления воспроизведением.
// Пауза реализована воротами: горутина цикла спит на канале resume,
// активного опроса статуса нет.
type session struct {
	mu     sync.Mutex
	data   *domain.ReplaySession
	resume chan struct{} // не nil, пока сессия на паузе
	stop   chan struct{}

	stopOnce sync.Once
}

// Engine управляет сессиями воспроизведения исторических сигналов.
// Сессии живут в памяти и не переживают рестарт процесса.
type Engine struct {
	cfg     infra.ReplayConfig
	src     Source
	metrics *infra.Metrics
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewEngine(cfg infra.ReplayConfig, src Source, metrics *infra.Metrics, logger *zap.Logger) *Engine {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Engine{
		cfg:      cfg,
		src:      src,
		metrics:  metrics,
		logger:   logger.Named("replay"),
		sessions: make(map[string]*session),
	}
}

// DefaultSettings — дефолты воспроизведения: fast, симуляция ответов,
// автопауза при ошибках, без исторических пауз.
func DefaultSettings() domain.ReplaySettings {
	return domain.ReplaySettings{
		Speed:             domain.SpeedFast,
		SimulateResponses: true,
		IncludeBreaks:     false,
		BreakDuration:     time.Second,
		AutoPauseOnErrors: true,
		OutputLogs:        true,
	}
}

// CreateSession создает сессию из исторических сигналов по фильтру.
// Пустая выборка — ошибка. SignalIDs фиксируются по возрастанию ID и
// дальше не меняются.
func (e *Engine) CreateSession(ctx context.Context, name string, filter domain.SignalFilter, settings domain.ReplaySettings) (string, error) {
	signals, err := e.src.GetSignals(ctx, filter, e.cfg.FetchLimit)
	if err != nil {
		return "", err
	}
	if len(signals) == 0 {
		return "", fmt.Errorf("replay: no signals found for the specified filter")
	}

	ids := make([]int64, len(signals))
	for i, s := range signals {
		ids[i] = s.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if settings.Speed == "" {
		settings.Speed = domain.SpeedFast
	}
	if settings.BreakDuration <= 0 {
		settings.BreakDuration = time.Second
	}

	sessionID := fmt.Sprintf("replay_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	sess := &session{
		data: &domain.ReplaySession{
			ID:        sessionID,
			Name:      name,
			SignalIDs: ids,
			Status:    domain.ReplayPending,
			CreatedAt: time.Now(),
			Settings:  settings,
			Results: domain.ReplayResults{
				Errors:     []string{},
				AgentStats: make(map[string]*domain.AgentReplayStats),
			},
		},
		stop: make(chan struct{}),
	}

	e.mu.Lock()
	e.sessions[sessionID] = sess
	e.mu.Unlock()

	e.logger.Info("replay session created",
		zap.String("session_id", sessionID),
		zap.String("name", name),
		zap.Int("signals", len(ids)))
	return sessionID, nil
}

// StartReplay запускает сессию в фоне. Стартовать можно только из pending.
func (e *Engine) StartReplay(ctx context.Context, sessionID string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.data.Status != domain.ReplayPending {
		status := sess.data.Status
		sess.mu.Unlock()
		return fmt.Errorf("replay: cannot start session in status %s", status)
	}
	now := time.Now()
	sess.data.Status = domain.ReplayRunning
	sess.data.StartedAt = &now
	sess.mu.Unlock()

	e.logger.Info("replay started",
		zap.String("session_id", sessionID), zap.String("name", sess.data.Name))

	go e.run(ctx, sess)
	return nil
}

func (e *Engine) run(ctx context.Context, sess *session) {
	started := time.Now()
	var lastReplayed time.Time

	ids := sess.data.SignalIDs
	total := len(ids)

loop:
	for i, id := range ids {
		if !e.awaitRunning(ctx, sess) {
			break loop
		}

		// Настройки меняются на лету (SetSpeed), поэтому снимок под замком
		// раз на итерацию: новый темп действует со следующего сигнала
		sess.mu.Lock()
		settings := sess.data.Settings
		sess.mu.Unlock()

		signal, err := e.src.GetSignal(ctx, id)
		if err != nil {
			e.recordFailure(sess, id, err)
			if settings.AutoPauseOnErrors {
				e.autoPause(sess)
			}
			continue
		}
		if signal == nil {
			e.logger.Warn("signal missing, skipping", zap.Int64("signal_id", id))
			sess.mu.Lock()
			sess.data.Results.SkippedSignals++
			sess.mu.Unlock()
			continue
		}

		var gap time.Duration
		if !lastReplayed.IsZero() {
			gap = time.Since(lastReplayed)
		}
		delay := delayFor(gap, settings.Speed)
		if delay > 0 && settings.IncludeBreaks {
			if !e.sleep(ctx, sess, delay) {
				break loop
			}
		}

		if err := e.replaySignal(ctx, signal, sess, i, total); err != nil {
			e.recordFailure(sess, id, err)
			if settings.AutoPauseOnErrors {
				e.autoPause(sess)
			}
			continue
		}

		lastReplayed = time.Now()
		sess.mu.Lock()
		sess.data.Results.SuccessfulSignals++
		outputLogs := sess.data.Settings.OutputLogs
		sess.mu.Unlock()

		if outputLogs && i%10 == 0 {
			e.logger.Info("replay progress",
				zap.String("session_id", sess.data.ID),
				zap.Int("done", i+1), zap.Int("total", total))
		}
	}

	e.finalize(sess, started)
}

// awaitRunning блокируется, пока сессия на паузе. false — сессия остановлена
// или контекст отменен.
func (e *Engine) awaitRunning(ctx context.Context, sess *session) bool {
	sess.mu.Lock()
	resume := sess.resume
	status := sess.data.Status
	sess.mu.Unlock()

	if status == domain.ReplayStopped {
		return false
	}
	if resume == nil {
		return true
	}

	select {
	case <-resume:
		return true
	case <-sess.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// sleep ждет паузу между сигналами, прерываясь на stop и отмену контекста.
func (e *Engine) sleep(ctx context.Context, sess *session, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-sess.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// replaySignal воспроизводит один сигнал: статистика агента, симуляция
// ответа для CALL_AGENT и отметка replayed.
func (e *Engine) replaySignal(ctx context.Context, signal *domain.Signal, sess *session, index, total int) error {
	sess.mu.Lock()
	stats, ok := sess.data.Results.AgentStats[signal.FromAgent]
	if !ok {
		stats = &domain.AgentReplayStats{}
		sess.data.Results.AgentStats[signal.FromAgent] = stats
	}
	stats.Calls++
	simulate := sess.data.Settings.SimulateResponses
	outputLogs := sess.data.Settings.OutputLogs
	sess.mu.Unlock()

	if outputLogs {
		to := signal.ToAgent
		if signal.IsBroadcast() {
			to = "BROADCAST"
		}
		e.logger.Debug("replaying signal",
			zap.String("session_id", sess.data.ID),
			zap.Int("position", index+1), zap.Int("total", total),
			zap.String("type", signal.SignalType),
			zap.String("from", signal.FromAgent), zap.String("to", to))
	}

	if simulate && signal.SignalType == domain.SignalCallAgent {
		simulated := simulateResponse(signal)

		sess.mu.Lock()
		stats.AvgResponseTime = (stats.AvgResponseTime + float64(simulated)) / 2
		stats.Successes++
		sess.mu.Unlock()

		msg := fmt.Sprintf("Simulated response in %dms", simulated)
		if err := e.src.UpdateSignalStatus(ctx, signal.ID, domain.StatusReplayed, msg); err != nil {
			sess.mu.Lock()
			stats.Successes--
			stats.Failures++
			sess.mu.Unlock()
			return err
		}
		e.metrics.ReplayedSignals.Inc()
	}

	if signal.Priority == domain.PriorityCritical && signal.Status == domain.StatusFailed {
		e.logger.Warn("critical failed signal replayed",
			zap.String("session_id", sess.data.ID),
			zap.Int64("signal_id", signal.ID),
			zap.String("type", signal.SignalType))
	}
	return nil
}

// simulateResponse — время ответа: база 100мс, случайная добавка до 200мс
// и фактор размера полезной нагрузки.
func simulateResponse(signal *domain.Signal) int64 {
	base := int64(100)
	variance := rand.Int63n(200)
	complexity := int64(domain.PayloadSize(signal.Content) / 100)
	return base + variance + complexity
}

func (e *Engine) recordFailure(sess *session, signalID int64, err error) {
	msg := fmt.Sprintf("Signal %d failed: %v", signalID, err)

	sess.mu.Lock()
	sess.data.Results.FailedSignals++
	sess.data.Results.Errors = append(sess.data.Results.Errors, msg)
	sess.mu.Unlock()

	e.logger.Error("replay signal failed",
		zap.String("session_id", sess.data.ID),
		zap.Int64("signal_id", signalID), zap.Error(err))
}

func (e *Engine) autoPause(sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Status != domain.ReplayRunning {
		return
	}
	sess.data.Status = domain.ReplayPaused
	sess.resume = make(chan struct{})
	e.logger.Warn("replay auto-paused on error", zap.String("session_id", sess.data.ID))
}

func (e *Engine) finalize(sess *session, started time.Time) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.data.Results.TotalDuration = time.Since(started)
	sess.data.Results.TotalSignals = len(sess.data.SignalIDs)
	if sess.data.Results.TotalSignals > 0 {
		sess.data.Results.AverageSignalDelay =
			float64(sess.data.Results.TotalDuration.Milliseconds()) / float64(sess.data.Results.TotalSignals)
	}

	// Остановленная вручную сессия сохраняет stopped; авто-пауза на последнем
	// сигнале сохраняет paused (ручное возобновление или Stop — решение
	// оператора); упавшая — failed
	switch sess.data.Status {
	case domain.ReplayRunning:
		now := time.Now()
		sess.data.CompletedAt = &now
		if sess.data.Results.FailedSignals > 0 && sess.data.Results.SuccessfulSignals == 0 {
			sess.data.Status = domain.ReplayFailed
		} else {
			sess.data.Status = domain.ReplayCompleted
		}
	case domain.ReplayPaused:
	default:
		now := time.Now()
		sess.data.CompletedAt = &now
	}

	e.logger.Info("replay finished",
		zap.String("session_id", sess.data.ID),
		zap.String("status", string(sess.data.Status)),
		zap.Int("successful", sess.data.Results.SuccessfulSignals),
		zap.Int("total", sess.data.Results.TotalSignals))
}

// delayFor пересчитывает фактическую историческую паузу под выбранный темп.
func delayFor(gap time.Duration, speed domain.ReplaySpeed) time.Duration {
	switch speed {
	case domain.SpeedRealtime:
		if gap < 100*time.Millisecond {
			return 100 * time.Millisecond
		}
		return gap
	case domain.SpeedFast:
		d := gap / 10
		if d > 50*time.Millisecond {
			d = 50 * time.Millisecond
		}
		return d
	case domain.SpeedSuperfast:
		d := gap / 100
		if d > 5*time.Millisecond {
			d = 5 * time.Millisecond
		}
		return d
	default:
		return 10 * time.Millisecond
	}
}

// Pause ставит бегущую сессию на паузу.
func (e *Engine) Pause(sessionID string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Status != domain.ReplayRunning {
		return fmt.Errorf("replay: cannot pause session in status %s", sess.data.Status)
	}
	sess.data.Status = domain.ReplayPaused
	sess.resume = make(chan struct{})
	e.logger.Info("replay paused", zap.String("session_id", sessionID))
	return nil
}

// Resume снимает сессию с паузы.
func (e *Engine) Resume(sessionID string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Status != domain.ReplayPaused {
		return fmt.Errorf("replay: cannot resume session in status %s", sess.data.Status)
	}
	sess.data.Status = domain.ReplayRunning
	close(sess.resume)
	sess.resume = nil
	e.logger.Info("replay resumed", zap.String("session_id", sessionID))
	return nil
}

// Stop навсегда останавливает сессию. Идемпотентен.
func (e *Engine) Stop(sessionID string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	switch sess.data.Status {
	case domain.ReplayRunning, domain.ReplayPaused, domain.ReplayPending:
		sess.data.Status = domain.ReplayStopped
	}
	sess.mu.Unlock()

	sess.stopOnce.Do(func() { close(sess.stop) })
	e.logger.Info("replay stopped", zap.String("session_id", sessionID))
	return nil
}

// SetSpeed меняет темп на лету, действует со следующего сигнала.
func (e *Engine) SetSpeed(sessionID string, speed domain.ReplaySpeed) error {
	switch speed {
	case domain.SpeedRealtime, domain.SpeedFast, domain.SpeedSuperfast:
	default:
		return fmt.Errorf("replay: unknown speed %q", speed)
	}

	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.data.Settings.Speed = speed
	sess.mu.Unlock()
	return nil
}

// GetSession возвращает снимок сессии.
func (e *Engine) GetSession(sessionID string) (*domain.ReplaySession, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

// ListSessions — снимки всех сессий, новые первыми.
func (e *Engine) ListSessions() []*domain.ReplaySession {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.ReplaySession, 0, len(e.sessions))
	for _, sess := range e.sessions {
		out = append(out, sess.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CleanupSessions удаляет завершенные сессии старше окна ретенции.
func (e *Engine) CleanupSessions() int {
	cutoff := time.Now().Add(-e.cfg.SessionRetention)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, sess := range e.sessions {
		sess.mu.Lock()
		expired := sess.data.Status == domain.ReplayCompleted && sess.data.CreatedAt.Before(cutoff)
		sess.mu.Unlock()
		if expired {
			delete(e.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Info("old replay sessions cleaned up", zap.Int("count", removed))
	}
	return removed
}

func (e *Engine) session(sessionID string) (*session, error) {
	e.mu.RLock()
	sess, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("replay: session not found: %s", sessionID)
	}
	return sess, nil
}

// snapshot — глубокая копия доменной сессии для безопасного чтения.
func (s *session) snapshot() *domain.ReplaySession {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *s.data
	copied.SignalIDs = append([]int64(nil), s.data.SignalIDs...)
	copied.Results.Errors = append([]string(nil), s.data.Results.Errors...)
	copied.Results.AgentStats = make(map[string]*domain.AgentReplayStats, len(s.data.Results.AgentStats))
	for agent, stats := range s.data.Results.AgentStats {
		st := *stats
		copied.Results.AgentStats[agent] = &st
	}
	return &copied
}
