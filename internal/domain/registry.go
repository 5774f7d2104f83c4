package domain

import (
	"encoding/json"
	"time"
)

// AgentRecord — запись реестра агентов. Upsert по имени, каждый upsert
// освежает heartbeat.
type AgentRecord struct {
	AgentName     string          `json:"agent_name"`
	AgentType     string          `json:"agent_type"`
	Status        string          `json:"status"`
	Capabilities  []string        `json:"capabilities"`
	LastHeartbeat time.Time       `json:"last_heartbeat"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InteractionOutcome — исход взаимодействия двух агентов.
type InteractionOutcome string

const (
	OutcomeSuccess InteractionOutcome = "success"
	OutcomeFailure InteractionOutcome = "failure"
	OutcomePartial InteractionOutcome = "partial"
)

// Interaction — запись истории обучения. Пишется асинхронно для
// офлайн-анализа, классификатор ее синхронно не читает.
type Interaction struct {
	FromAgent       string             `json:"from_agent"`
	ToAgent         string             `json:"to_agent"`
	InteractionType string             `json:"interaction_type"`
	TaskID          string             `json:"task_id,omitempty"`
	TaskDescription string             `json:"task_description,omitempty"`
	Outcome         InteractionOutcome `json:"outcome"`
	DurationMs      int64              `json:"duration_ms,omitempty"`
	Context         json.RawMessage    `json:"context,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// MetricSample — один сырой замер производительности.
// Агрегацию выполняет дашборд.
type MetricSample struct {
	AgentName  string    `json:"agent_name"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	TimeWindow string    `json:"time_window"`
	CreatedAt  time.Time `json:"created_at"`
}
