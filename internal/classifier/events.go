package classifier

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piata-ai/signalcore/internal/domain"
)

// eventPattern — один детектор критического события. Порядок паттернов
// фиксирован, срабатывает первый совпавший.
type eventPattern struct {
	match    func(*domain.Signal) bool
	evtType  domain.EventType
	severity domain.EventSeverity
	title    string
}

var eventPatterns = []eventPattern{
	{
		match: func(s *domain.Signal) bool {
			return s.SignalType == domain.SignalCallAgent && s.Status == domain.StatusFailed
		},
		evtType:  domain.EventFailure,
		severity: domain.SeverityHigh,
		title:    "Agent Execution Failed",
	},
	{
		match: func(s *domain.Signal) bool {
			return s.SignalType == domain.SignalPerformanceAlert && s.Priority == domain.PriorityHigh
		},
		evtType:  domain.EventPerformance,
		severity: domain.SeverityMedium,
		title:    "Performance Degradation Detected",
	},
	{
		// Сравнение с литералом: таймаут приезжает из внешних интеграций
		// как статус, а не как отдельный тип.
		match: func(s *domain.Signal) bool {
			return string(s.Status) == "timeout"
		},
		evtType:  domain.EventTimeout,
		severity: domain.SeverityHigh,
		title:    "Agent Timeout",
	},
	{
		match: func(s *domain.Signal) bool {
			return strings.Contains(s.SignalType, "SECURITY")
		},
		evtType:  domain.EventSecurity,
		severity: domain.SeverityCritical,
		title:    "Security Alert",
	},
}

// Разрешенные переходы статусов инцидента.
var eventTransitions = map[domain.EventStatus][]domain.EventStatus{
	domain.EventActive:        {domain.EventInvestigating, domain.EventEscalated, domain.EventResolved},
	domain.EventInvestigating: {domain.EventEscalated, domain.EventResolved},
	domain.EventEscalated:     {domain.EventInvestigating, domain.EventResolved},
	domain.EventResolved:      {},
}

// eventRegistry хранит инциденты в памяти и дедуплицирует их по исходному
// сигналу: повторная классификация того же сигнала расширяет событие,
// а не создает новое.
type eventRegistry struct {
	mu           sync.Mutex
	events       map[string]*domain.CriticalEvent
	correlations map[int64]string // signal ID -> event ID
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{
		events:       make(map[string]*domain.CriticalEvent),
		correlations: make(map[int64]string),
	}
}

// detect проверяет сигнал по паттернам. nil — не критический.
func (r *eventRegistry) detect(s *domain.Signal) *domain.CriticalEvent {
	var hit *eventPattern
	for i := range eventPatterns {
		if eventPatterns[i].match(s) {
			hit = &eventPatterns[i]
			break
		}
	}
	if hit == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if eventID, ok := r.correlations[s.ID]; ok {
		event := r.events[eventID]
		event.CorrelatedSignals = appendUnique(event.CorrelatedSignals, s.ID)
		event.AffectedAgents = appendUniqueStr(event.AffectedAgents, s.FromAgent)
		return event
	}

	event := &domain.CriticalEvent{
		ID:                uuid.NewString(),
		Title:             hit.title,
		Description:       fmt.Sprintf("%s: signal %d from %s", hit.title, s.ID, s.FromAgent),
		Type:              hit.evtType,
		Severity:          hit.severity,
		SourceSignalID:    s.ID,
		CorrelatedSignals: []int64{s.ID},
		AffectedAgents:    affectedAgents(s),
		Status:            domain.EventActive,
		CreatedAt:         time.Now(),
	}
	r.events[event.ID] = event
	r.correlations[s.ID] = event.ID
	return event
}

// list возвращает инциденты, новые первыми. status == "" — без фильтра.
func (r *eventRegistry) list(status domain.EventStatus) []*domain.CriticalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*domain.CriticalEvent
	for _, e := range r.events {
		if status == "" || e.Status == status {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	return events
}

func (r *eventRegistry) updateStatus(eventID string, status domain.EventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("classifier: event %s not found", eventID)
	}
	allowed := false
	for _, next := range eventTransitions[event.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("classifier: illegal event transition %s -> %s", event.Status, status)
	}
	event.Status = status
	if status == domain.EventResolved {
		now := time.Now()
		event.ResolvedAt = &now
	}
	return nil
}

func affectedAgents(s *domain.Signal) []string {
	agents := []string{s.FromAgent}
	if !s.IsBroadcast() && s.ToAgent != s.FromAgent {
		agents = append(agents, s.ToAgent)
	}
	return agents
}

func appendUnique(list []int64, v int64) []int64 {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func appendUniqueStr(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
