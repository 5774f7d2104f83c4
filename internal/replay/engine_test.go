package replay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource хранит сигналы в памяти и записывает обновления статусов.
type fakeSource struct {
	mu       sync.Mutex
	signals  map[int64]*domain.Signal
	statuses map[int64]domain.SignalStatus
	failIDs  map[int64]bool
}

func newFakeSource(signals ...*domain.Signal) *fakeSource {
	f := &fakeSource{
		signals:  make(map[int64]*domain.Signal),
		statuses: make(map[int64]domain.SignalStatus),
	}
	for _, s := range signals {
		f.signals[s.ID] = s
	}
	return f
}

func (f *fakeSource) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Signal
	for _, s := range f.signals {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSource) GetSignal(ctx context.Context, id int64) (*domain.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return nil, fmt.Errorf("storage unavailable for signal %d", id)
	}
	return f.signals[id], nil
}

func (f *fakeSource) UpdateSignalStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.signals[id]; !ok {
		return fmt.Errorf("signal %d not found", id)
	}
	f.statuses[id] = status
	return nil
}

func testEngine(src Source) *Engine {
	return NewEngine(infra.ReplayConfig{
		SessionRetention: 24 * time.Hour,
		FetchLimit:       1000,
	}, src, nil, zap.NewNop())
}

func callSignal(id int64) *domain.Signal {
	return &domain.Signal{
		ID:         id,
		SignalType: domain.SignalCallAgent,
		FromAgent:  "caller",
		ToAgent:    "worker",
		Status:     domain.StatusCompleted,
		Content:    domain.TaskPayload{Description: "replay me"},
	}
}

func TestDelayFor(t *testing.T) {
	gap := time.Second

	tests := []struct {
		name  string
		gap   time.Duration
		speed domain.ReplaySpeed
		want  time.Duration
	}{
		{"realtime keeps gap", gap, domain.SpeedRealtime, time.Second},
		{"realtime floor 100ms", 20 * time.Millisecond, domain.SpeedRealtime, 100 * time.Millisecond},
		{"fast capped at 50ms", gap, domain.SpeedFast, 50 * time.Millisecond},
		{"fast divides by 10", 200 * time.Millisecond, domain.SpeedFast, 20 * time.Millisecond},
		{"superfast capped at 5ms", gap, domain.SpeedSuperfast, 5 * time.Millisecond},
		{"superfast divides by 100", 200 * time.Millisecond, domain.SpeedSuperfast, 2 * time.Millisecond},
		{"unknown speed default", gap, domain.ReplaySpeed("warp"), 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, delayFor(tt.gap, tt.speed))
		})
	}
}

func TestCreateSessionSortsIDs(t *testing.T) {
	src := newFakeSource(callSignal(30), callSignal(10), callSignal(20))
	e := testEngine(src)

	id, err := e.CreateSession(context.Background(), "debug run", domain.SignalFilter{}, DefaultSettings())
	require.NoError(t, err)

	session, err := e.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, session.SignalIDs)
	assert.Equal(t, domain.ReplayPending, session.Status)
}

func TestCreateSessionEmptyFilterFails(t *testing.T) {
	e := testEngine(newFakeSource())

	_, err := e.CreateSession(context.Background(), "empty", domain.SignalFilter{}, DefaultSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signals found")
}

func waitForStatus(t *testing.T, e *Engine, sessionID string, want domain.ReplayStatus) *domain.ReplaySession {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		session, err := e.GetSession(sessionID)
		require.NoError(t, err)
		if session.Status == want {
			return session
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s did not reach status %s", sessionID, want)
	return nil
}

func TestReplayRunToCompletion(t *testing.T) {
	src := newFakeSource(callSignal(1), callSignal(2), callSignal(3))
	e := testEngine(src)

	settings := DefaultSettings()
	settings.Speed = domain.SpeedSuperfast

	id, err := e.CreateSession(context.Background(), "full run", domain.SignalFilter{}, settings)
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))

	session := waitForStatus(t, e, id, domain.ReplayCompleted)

	assert.Equal(t, 3, session.Results.TotalSignals)
	assert.Equal(t, 3, session.Results.SuccessfulSignals)
	assert.Equal(t, 0, session.Results.FailedSignals)
	assert.Empty(t, session.Results.Errors)

	// Все CALL_AGENT отмечены replayed
	src.mu.Lock()
	defer src.mu.Unlock()
	for _, sid := range []int64{1, 2, 3} {
		assert.Equal(t, domain.StatusReplayed, src.statuses[sid])
	}

	stats := session.Results.AgentStats["caller"]
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Calls)
	assert.Equal(t, 3, stats.Successes)
	assert.Greater(t, stats.AvgResponseTime, 0.0)
}

func TestReplayCannotStartTwice(t *testing.T) {
	src := newFakeSource(callSignal(1))
	e := testEngine(src)

	id, err := e.CreateSession(context.Background(), "once", domain.SignalFilter{}, DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))

	err = e.StartReplay(context.Background(), id)
	require.Error(t, err)

	waitForStatus(t, e, id, domain.ReplayCompleted)
}

func TestReplayStop(t *testing.T) {
	// Длинная сессия с реальными паузами, чтобы успеть остановить
	var signals []*domain.Signal
	for i := int64(1); i <= 50; i++ {
		signals = append(signals, callSignal(i))
	}
	src := newFakeSource(signals...)
	e := testEngine(src)

	settings := DefaultSettings()
	settings.Speed = domain.SpeedRealtime
	settings.IncludeBreaks = true

	id, err := e.CreateSession(context.Background(), "stopped run", domain.SignalFilter{}, settings)
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))

	require.NoError(t, e.Stop(id))
	session := waitForStatus(t, e, id, domain.ReplayStopped)
	assert.Less(t, session.Results.SuccessfulSignals, 50)
}

func TestPauseResumeStateMachine(t *testing.T) {
	src := newFakeSource(callSignal(1))
	e := testEngine(src)

	id, err := e.CreateSession(context.Background(), "pause", domain.SignalFilter{}, DefaultSettings())
	require.NoError(t, err)

	// Из pending нельзя ни паузить, ни резюмить
	assert.Error(t, e.Pause(id))
	assert.Error(t, e.Resume(id))
	assert.Error(t, e.SetSpeed(id, domain.ReplaySpeed("warp")))
	require.NoError(t, e.SetSpeed(id, domain.SpeedRealtime))
}

func TestSetSpeedDuringRun(t *testing.T) {
	var signals []*domain.Signal
	for i := int64(1); i <= 40; i++ {
		signals = append(signals, callSignal(i))
	}
	src := newFakeSource(signals...)
	e := testEngine(src)

	settings := DefaultSettings()
	settings.Speed = domain.SpeedFast
	settings.IncludeBreaks = true

	id, err := e.CreateSession(context.Background(), "speed change", domain.SignalFilter{}, settings)
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))

	// Смена темпа конкурентно с рабочим циклом: цикл читает снимок настроек
	// под замком, гонки быть не должно
	done := make(chan struct{})
	go func() {
		defer close(done)
		speeds := []domain.ReplaySpeed{domain.SpeedRealtime, domain.SpeedSuperfast, domain.SpeedFast}
		for i := 0; i < 100; i++ {
			_ = e.SetSpeed(id, speeds[i%len(speeds)])
		}
	}()
	<-done

	require.NoError(t, e.SetSpeed(id, domain.SpeedSuperfast))
	session := waitForStatus(t, e, id, domain.ReplayCompleted)
	assert.Equal(t, 40, session.Results.SuccessfulSignals)
	assert.Equal(t, domain.SpeedSuperfast, session.Settings.Speed)
}

func TestAutoPauseOnLastSignalStaysPaused(t *testing.T) {
	src := newFakeSource(callSignal(1), callSignal(2))
	src.failIDs = map[int64]bool{2: true}
	e := testEngine(src)

	id, err := e.CreateSession(context.Background(), "tail failure", domain.SignalFilter{}, DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))

	// Авто-пауза на последнем сигнале не перетирается в completed:
	// возобновление или остановка остаются за оператором
	session := waitForStatus(t, e, id, domain.ReplayPaused)
	assert.Equal(t, 1, session.Results.SuccessfulSignals)
	assert.Equal(t, 1, session.Results.FailedSignals)
	assert.Nil(t, session.CompletedAt)

	require.NoError(t, e.Stop(id))
	session = waitForStatus(t, e, id, domain.ReplayStopped)
	assert.Equal(t, domain.ReplayStopped, session.Status)
}

func TestCleanupSessionsKeepsRecent(t *testing.T) {
	src := newFakeSource(callSignal(1))
	e := testEngine(src)

	id, err := e.CreateSession(context.Background(), "fresh", domain.SignalFilter{}, DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, e.StartReplay(context.Background(), id))
	waitForStatus(t, e, id, domain.ReplayCompleted)

	// Свежая завершенная сессия переживает чистку
	assert.Equal(t, 0, e.CleanupSessions())
	_, err = e.GetSession(id)
	require.NoError(t, err)
}
