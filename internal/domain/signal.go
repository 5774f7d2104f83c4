package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignalPriority — заявленный приоритет сигнала (не путать с EvalOrder правил).
type SignalPriority string

const (
	PriorityCritical SignalPriority = "critical"
	PriorityHigh     SignalPriority = "high"
	PriorityNormal   SignalPriority = "normal"
	PriorityLow      SignalPriority = "low"
)

// SignalStatus — жизненный цикл сигнала. Движение только вперед:
// pending -> processing -> {completed | failed | replayed}
type SignalStatus string

const (
	StatusPending    SignalStatus = "pending"
	StatusProcessing SignalStatus = "processing"
	StatusCompleted  SignalStatus = "completed"
	StatusFailed     SignalStatus = "failed"
	StatusReplayed   SignalStatus = "replayed"
)

// Хорошо известные типы сигналов. Поле SignalType свободное,
// но эти константы участвуют в скоринге и детекции критических событий.
const (
	SignalCallAgent        = "CALL_AGENT"
	SignalBroadcast        = "BROADCAST"
	SignalFailure          = "FAILURE"
	SignalTimeout          = "TIMEOUT"
	SignalPerformanceAlert = "PERFORMANCE_ALERT"
	SignalSecurityAlert    = "SECURITY_ALERT"
)

// Signal — атомарная единица межагентного обмена.
// ToAgent == "" означает broadcast: адресовано всем активным агентам, кроме отправителя.
type Signal struct {
	ID          int64           `json:"id"`
	SignalType  string          `json:"signal_type"`
	FromAgent   string          `json:"from_agent"`
	ToAgent     string          `json:"to_agent,omitempty"`
	Content     Payload         `json:"content,omitempty"`
	Priority    SignalPriority  `json:"priority"`
	Status      SignalStatus    `json:"status"`
	ErrorMsg    string          `json:"error_message,omitempty"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// IsBroadcast возвращает true, если у сигнала нет адресата.
func (s *Signal) IsBroadcast() bool {
	return s.ToAgent == ""
}

// AddressedTo проверяет, должен ли агент обработать этот сигнал.
// Broadcast адресован всем, кроме самого отправителя.
func (s *Signal) AddressedTo(agent string) bool {
	if s.IsBroadcast() {
		return s.FromAgent != agent
	}
	return s.ToAgent == agent
}

// CanTransition проверяет легальность перехода статуса.
// Терминальные статусы могут переходить только в replayed (идемпотентность реплея).
func (s SignalStatus) CanTransition(next SignalStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted ||
			next == StatusFailed || next == StatusReplayed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusReplayed
	case StatusCompleted, StatusFailed:
		return next == StatusReplayed
	case StatusReplayed:
		return false
	default:
		return false
	}
}

// ValidStatus проверяет принадлежность строки к словарю статусов.
func ValidStatus(s SignalStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusReplayed:
		return true
	}
	return false
}

// NormalizePriority возвращает normal для пустого/неизвестного приоритета.
func NormalizePriority(p SignalPriority) SignalPriority {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return p
	default:
		return PriorityNormal
	}
}

// SignalFilter — комбинируемые условия выборки из хранилища.
// Agents матчит отправителя ИЛИ адресата.
type SignalFilter struct {
	SignalTypes []string         `json:"signal_types,omitempty"`
	Agents      []string         `json:"agents,omitempty"`
	Priorities  []SignalPriority `json:"priorities,omitempty"`
	Statuses    []SignalStatus   `json:"statuses,omitempty"`
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
}

// Payload — типизированное содержимое сигнала (tagged union по kind).
// Заменяет нетипизированный content исходных клиентов.
type Payload interface {
	Kind() string
}

// TaskPayload — задача для точечного вызова агента (CALL_AGENT).
type TaskPayload struct {
	Description string          `json:"description"`
	Goal        string          `json:"goal,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

func (TaskPayload) Kind() string { return "task" }

// NoticePayload — произвольное широковещательное уведомление.
type NoticePayload struct {
	Subject string          `json:"subject"`
	Body    string          `json:"body,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (NoticePayload) Kind() string { return "notice" }

// MetricPayload — показатель производительности внутри сигнала
// (PERFORMANCE_ALERT и родственные типы).
type MetricPayload struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold,omitempty"`
	Window    string  `json:"window,omitempty"`
}

func (MetricPayload) Kind() string { return "metric" }

// ErrorPayload — описание сбоя (FAILURE, TIMEOUT).
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Origin  string `json:"origin,omitempty"`
}

func (ErrorPayload) Kind() string { return "error" }

// RawPayload — запасной вариант для неизвестных kind.
// Сохраняет исходную гибкость content: any без потери данных.
type RawPayload struct {
	Data json.RawMessage `json:"data"`
}

func (RawPayload) Kind() string { return "raw" }

// Size возвращает размер сериализованного содержимого в байтах.
// Используется реплеем для оценки сложности симулируемого ответа.
func PayloadSize(p Payload) int {
	if p == nil {
		return 0
	}
	b, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(b)
}

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload упаковывает содержимое в конверт {kind, data} для БД.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal payload: %w", err)
	}
	return json.Marshal(payloadEnvelope{Kind: p.Kind(), Data: data})
}

// UnmarshalPayload распаковывает конверт. Неизвестный kind приходит как RawPayload.
func UnmarshalPayload(b []byte) (Payload, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		// Старые записи без конверта читаем как raw
		return RawPayload{Data: append(json.RawMessage(nil), b...)}, nil
	}
	switch env.Kind {
	case "task":
		var p TaskPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("domain: unmarshal task payload: %w", err)
		}
		return p, nil
	case "notice":
		var p NoticePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("domain: unmarshal notice payload: %w", err)
		}
		return p, nil
	case "metric":
		var p MetricPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("domain: unmarshal metric payload: %w", err)
		}
		return p, nil
	case "error":
		var p ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("domain: unmarshal error payload: %w", err)
		}
		return p, nil
	default:
		return RawPayload{Data: env.Data}, nil
	}
}
