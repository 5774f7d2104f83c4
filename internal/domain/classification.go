package domain

import "time"

// Urgency — срочность обработки, производная от правил.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyStandard  Urgency = "standard"
	UrgencyDeferred  Urgency = "deferred"
)

// Category — функциональная категория сигнала.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryAgent       Category = "agent"
	CategoryBusiness    Category = "business"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryUser        Category = "user"
)

// Impact — радиус поражения.
type Impact string

const (
	ImpactGlobal  Impact = "global"
	ImpactSystem  Impact = "system"
	ImpactAgent   Impact = "agent"
	ImpactTask    Impact = "task"
	ImpactMinimal Impact = "minimal"
)

// Classification — производное суждение классификатора по одному сигналу.
// Не персистится. EscalationLevel только растет, правила не понижают его.
type Classification struct {
	Priority        SignalPriority `json:"priority"`
	Urgency         Urgency        `json:"urgency"`
	Category        Category       `json:"category"`
	Impact          Impact         `json:"impact"`
	RequiresAlert   bool           `json:"requires_alert"`
	EscalationLevel int            `json:"escalation_level"`
}

// Escalate поднимает уровень эскалации до max(текущий, запрошенный).
func (c *Classification) Escalate(level int) {
	if level > c.EscalationLevel {
		c.EscalationLevel = level
	}
}

// ConditionField — поле сигнала, по которому матчится условие.
type ConditionField string

const (
	FieldSignalType ConditionField = "signal_type"
	FieldFromAgent  ConditionField = "from_agent"
	FieldToAgent    ConditionField = "to_agent"
	FieldPriority   ConditionField = "priority"
	FieldContent    ConditionField = "content"
	FieldMetadata   ConditionField = "metadata"
	FieldStatus     ConditionField = "status"
)

// ConditionOp — оператор сравнения условия.
type ConditionOp string

const (
	OpEquals      ConditionOp = "equals"
	OpContains    ConditionOp = "contains"
	OpRegex       ConditionOp = "regex"
	OpGreaterThan ConditionOp = "greater_than"
	OpLessThan    ConditionOp = "less_than"
	OpIn          ConditionOp = "in"
	OpNotIn       ConditionOp = "not_in"
)

// FilterCondition — одно условие правила. Условия внутри правила объединяются по AND.
// CaseSensitive по умолчанию false для contains/regex.
type FilterCondition struct {
	Field         ConditionField `json:"field"`
	Op            ConditionOp    `json:"op"`
	Value         string         `json:"value,omitempty"`
	Values        []string       `json:"values,omitempty"` // для in / not_in
	Number        float64        `json:"number,omitempty"` // для greater_than / less_than
	CaseSensitive bool           `json:"case_sensitive,omitempty"`
}

// ActionType — тип действия правила.
type ActionType string

const (
	ActionSetPriority ActionType = "set_priority"
	ActionSetCategory ActionType = "set_category"
	ActionSetUrgency  ActionType = "set_urgency"
	ActionEscalate    ActionType = "escalate"
	ActionAlert       ActionType = "alert"
	ActionForward     ActionType = "forward"
	ActionDuplicate   ActionType = "duplicate"
	ActionDrop        ActionType = "drop"
)

// FilterAction — действие, применяемое при совпадении правила.
type FilterAction struct {
	Type        ActionType     `json:"type"`
	Priority    SignalPriority `json:"priority,omitempty"`
	Category    Category       `json:"category,omitempty"`
	Urgency     Urgency        `json:"urgency,omitempty"`
	Level       int            `json:"level,omitempty"`
	Channels    []string       `json:"channels,omitempty"`
	Destination string         `json:"destination,omitempty"`
}

// FilterRule — именованная единица политики классификации.
// EvalOrder задает порядок вычисления (меньше — раньше) и намеренно
// лексически отделен от приоритета классификации.
type FilterRule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Enabled     bool              `json:"enabled"`
	EvalOrder   int               `json:"eval_order"`
	Description string            `json:"description,omitempty"`
	Conditions  []FilterCondition `json:"conditions"`
	Actions     []FilterAction    `json:"actions"`
}

// EventType — класс критического события.
type EventType string

const (
	EventFailure       EventType = "failure"
	EventTimeout       EventType = "timeout"
	EventPerformance   EventType = "performance"
	EventSecurity      EventType = "security"
	EventCapacity      EventType = "capacity"
	EventConfiguration EventType = "configuration"
)

// EventStatus — машина состояний инцидента:
// active -> investigating -> resolved, ветка active -> escalated.
type EventStatus string

const (
	EventActive        EventStatus = "active"
	EventInvestigating EventStatus = "investigating"
	EventResolved      EventStatus = "resolved"
	EventEscalated     EventStatus = "escalated"
)

// EventSeverity — серьезность инцидента.
type EventSeverity string

const (
	SeverityCritical EventSeverity = "critical"
	SeverityHigh     EventSeverity = "high"
	SeverityMedium   EventSeverity = "medium"
	SeverityLow      EventSeverity = "low"
)

// CriticalEvent — дедуплицированная запись инцидента.
// Повторный сигнал с тем же исходным ID расширяет существующее событие,
// а не создает новое.
type CriticalEvent struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Type              EventType     `json:"type"`
	Severity          EventSeverity `json:"severity"`
	SourceSignalID    int64         `json:"source_signal_id"`
	CorrelatedSignals []int64       `json:"correlated_signals"`
	AffectedAgents    []string      `json:"affected_agents"`
	Status            EventStatus   `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
}

// ProcessResult — ответ классификатора на один сигнал (контракт Classify из §6).
type ProcessResult struct {
	Filtered       bool           `json:"filtered"`
	Classification Classification `json:"classification"`
	Modified       bool           `json:"modified"`
	Actions        []string       `json:"actions"`
	PriorityScore  int            `json:"priority_score"`
}
