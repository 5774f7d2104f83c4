package domain

import "time"

// ReplaySpeed — темп воспроизведения исторических пауз между сигналами.
type ReplaySpeed string

const (
	SpeedRealtime  ReplaySpeed = "realtime"  // реальные паузы, минимум 100ms
	SpeedFast      ReplaySpeed = "fast"      // в 10 раз быстрее, максимум 50ms
	SpeedSuperfast ReplaySpeed = "superfast" // в 100 раз быстрее, максимум 5ms
)

// ReplayStatus — машина состояний сессии:
// pending -> running -> {paused <-> running} -> {stopped | completed | failed}
type ReplayStatus string

const (
	ReplayPending   ReplayStatus = "pending"
	ReplayRunning   ReplayStatus = "running"
	ReplayPaused    ReplayStatus = "paused"
	ReplayStopped   ReplayStatus = "stopped"
	ReplayCompleted ReplayStatus = "completed"
	ReplayFailed    ReplayStatus = "failed"
)

// ReplaySettings — настройки воспроизведения.
type ReplaySettings struct {
	Speed             ReplaySpeed   `json:"speed"`
	SimulateResponses bool          `json:"simulate_responses"`
	IncludeBreaks     bool          `json:"include_breaks"`
	BreakDuration     time.Duration `json:"break_duration"`
	AutoPauseOnErrors bool          `json:"auto_pause_on_errors"`
	OutputLogs        bool          `json:"output_logs"`
}

// AgentReplayStats — накопленная статистика по одному агенту в рамках сессии.
type AgentReplayStats struct {
	Calls           int     `json:"calls"`
	Successes       int     `json:"successes"`
	Failures        int     `json:"failures"`
	AvgResponseTime float64 `json:"avg_response_time_ms"`
}

// ReplayResults — аккумулятор результатов сессии.
type ReplayResults struct {
	TotalSignals       int                          `json:"total_signals"`
	SuccessfulSignals  int                          `json:"successful_signals"`
	FailedSignals      int                          `json:"failed_signals"`
	SkippedSignals     int                          `json:"skipped_signals"`
	AverageSignalDelay float64                      `json:"average_signal_delay_ms"`
	TotalDuration      time.Duration                `json:"total_duration"`
	Errors             []string                     `json:"errors"`
	AgentStats         map[string]*AgentReplayStats `json:"agent_response_stats"`
}

// ReplaySession — ограниченное воспроизведение исторической последовательности.
// SignalIDs неизменяем и отсортирован по возрастанию: порядок доставки
// определяется идентичностью, исторические паузы влияют только на темп.
type ReplaySession struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	SignalIDs   []int64        `json:"signal_ids"`
	Status      ReplayStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Settings    ReplaySettings `json:"settings"`
	Results     ReplayResults  `json:"results"`
}

// ReplayExport — выгрузка сессии вместе с отчетом.
type ReplayExport struct {
	Session    *ReplaySession `json:"session"`
	Report     string         `json:"report"`
	ExportedAt time.Time      `json:"exported_at"`
}
