package classifier

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"go.uber.org/zap"
)

// Веса типов сигналов для базового score. Неизвестный тип дает 0.
var signalTypeScores = map[string]int{
	domain.SignalCallAgent:        20,
	domain.SignalBroadcast:        15,
	domain.SignalFailure:          40,
	domain.SignalTimeout:          35,
	domain.SignalPerformanceAlert: 30,
	domain.SignalSecurityAlert:    50,
}

// Веса тиров приоритета. Неизвестный тир дает 10 (как normal).
var priorityScores = map[domain.SignalPriority]int{
	domain.PriorityCritical: 40,
	domain.PriorityHigh:     25,
	domain.PriorityNormal:   10,
	domain.PriorityLow:      0,
}

func priorityBoost(p domain.SignalPriority) int {
	if boost, ok := priorityScores[p]; ok {
		return boost
	}
	return 10
}

// FilterStats — сводка состояния классификатора.
type FilterStats struct {
	TotalRules   int `json:"total_rules"`
	EnabledRules int `json:"enabled_rules"`
	ActiveEvents int `json:"active_events"`
	QueueSize    int `json:"queue_size"`
}

// Classifier оценивает правила по каждому входящему сигналу, ведет
// дедуплицированные критические события и очередь приоритетов.
// Чисто in-memory, на I/O не блокируется.
type Classifier struct {
	mu      sync.RWMutex
	rules   map[string]*domain.FilterRule
	queue   *PriorityQueue
	events  *eventRegistry
	metrics *infra.Metrics
	logger  *zap.Logger
}

func New(metrics *infra.Metrics, logger *zap.Logger) *Classifier {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Classifier{
		rules:   make(map[string]*domain.FilterRule),
		queue:   NewPriorityQueue(),
		events:  newEventRegistry(),
		metrics: metrics,
		logger:  logger.Named("classifier"),
	}
}

// LoadDefaultRules регистрирует встроенный набор правил.
func (c *Classifier) LoadDefaultRules() {
	for _, rule := range defaultRules() {
		c.AddRule(rule)
	}
	c.logger.Info("default filter rules loaded", zap.Int("count", len(defaultRules())))
}

// ProcessSignal — контракт Classify: классификация, критические события,
// вставка в очередь. Для отфильтрованных сигналов классификация и список
// примененных правил все равно возвращаются (аудит).
func (c *Classifier) ProcessSignal(s *domain.Signal) domain.ProcessResult {
	// 1. Затравочная классификация
	cls := domain.Classification{
		Priority:        domain.NormalizePriority(s.Priority),
		Urgency:         domain.UrgencyStandard,
		Category:        domain.CategorySystem,
		Impact:          domain.ImpactMinimal,
		RequiresAlert:   false,
		EscalationLevel: 0,
	}

	// 2. Базовый score
	score := 50 + signalTypeScores[s.SignalType] + priorityBoost(s.Priority)

	// 3-4. Совпавшие правила в порядке EvalOrder, действия кумулятивны
	var applied []string
	dropped := false
	for _, rule := range c.matchingRules(s) {
		modified, boost, drop := applyRule(rule, &cls, c.logger)
		if modified {
			applied = append(applied, rule.Name)
			score += boost
		}
		if drop {
			dropped = true
		}
	}

	// 5. Детекция критических событий независима от правил
	if event := c.events.detect(s); event != nil {
		cls.Priority = domain.PriorityCritical
		cls.Urgency = domain.UrgencyImmediate
		cls.RequiresAlert = true
		cls.Escalate(2)
		score += 100
		c.metrics.CriticalEvents.WithLabelValues(string(event.Type)).Inc()
		c.logger.Warn("critical event",
			zap.String("event_id", event.ID),
			zap.String("title", event.Title),
			zap.Int64("signal_id", s.ID))
	}

	// 6. Drop исключает сигнал из доставки, но результат отдаем полностью
	if dropped {
		c.metrics.SignalsFiltered.Inc()
		c.logger.Info("signal filtered out",
			zap.Int64("id", s.ID), zap.String("type", s.SignalType))
		return domain.ProcessResult{
			Filtered:       true,
			Classification: cls,
			Modified:       true,
			Actions:        applied,
			PriorityScore:  score,
		}
	}

	// 7. В очередь
	c.queue.Add(s, score, cls.Priority)
	c.metrics.QueueDepth.Set(float64(c.queue.Size()))

	c.logger.Debug("signal processed",
		zap.Int64("id", s.ID),
		zap.String("priority", string(cls.Priority)),
		zap.Int("score", score))

	return domain.ProcessResult{
		Filtered:       false,
		Classification: cls,
		Modified:       len(applied) > 0,
		Actions:        applied,
		PriorityScore:  score,
	}
}

// NextSignal снимает сигнал с наибольшим score (FIFO при равенстве).
func (c *Classifier) NextSignal() (*domain.Signal, int) {
	s, score := c.queue.Pop()
	c.metrics.QueueDepth.Set(float64(c.queue.Size()))
	return s, score
}

func (c *Classifier) QueueStats() QueueStats { return c.queue.Stats() }

func (c *Classifier) ClearQueue() {
	c.queue.Clear()
	c.metrics.QueueDepth.Set(0)
	c.logger.Info("priority queue cleared")
}

// --- Управление правилами ---

func (c *Classifier) AddRule(rule *domain.FilterRule) {
	c.mu.Lock()
	c.rules[rule.ID] = rule
	c.mu.Unlock()
	c.logger.Info("filter rule added", zap.String("rule", rule.Name))
}

func (c *Classifier) RemoveRule(ruleID string) bool {
	c.mu.Lock()
	_, ok := c.rules[ruleID]
	delete(c.rules, ruleID)
	c.mu.Unlock()
	if ok {
		c.logger.Info("filter rule removed", zap.String("rule_id", ruleID))
	}
	return ok
}

func (c *Classifier) UpdateRule(ruleID string, update func(*domain.FilterRule)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rule, ok := c.rules[ruleID]
	if !ok {
		return false
	}
	update(rule)
	return true
}

// Rules возвращает копии правил: хендлеры сериализуют их без замка,
// а UpdateRule мутирует оригиналы.
func (c *Classifier) Rules() []*domain.FilterRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := make([]*domain.FilterRule, 0, len(c.rules))
	for _, r := range c.rules {
		rules = append(rules, copyRule(r))
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].EvalOrder < rules[j].EvalOrder })
	return rules
}

func copyRule(r *domain.FilterRule) *domain.FilterRule {
	cp := *r
	cp.Conditions = append([]domain.FilterCondition(nil), r.Conditions...)
	cp.Actions = append([]domain.FilterAction(nil), r.Actions...)
	return &cp
}

// CriticalEvents возвращает инциденты, новые первыми. status == "" — все.
func (c *Classifier) CriticalEvents(status domain.EventStatus) []*domain.CriticalEvent {
	return c.events.list(status)
}

// UpdateEventStatus двигает машину состояний инцидента.
func (c *Classifier) UpdateEventStatus(eventID string, status domain.EventStatus) error {
	return c.events.updateStatus(eventID, status)
}

func (c *Classifier) Stats() FilterStats {
	c.mu.RLock()
	enabled := 0
	for _, r := range c.rules {
		if r.Enabled {
			enabled++
		}
	}
	total := len(c.rules)
	c.mu.RUnlock()

	return FilterStats{
		TotalRules:   total,
		EnabledRules: enabled,
		ActiveEvents: len(c.events.list(domain.EventActive)),
		QueueSize:    c.queue.Size(),
	}
}

// matchingRules — включенные правила, у которых совпали ВСЕ условия,
// отсортированные по возрастанию EvalOrder.
func (c *Classifier) matchingRules(s *domain.Signal) []*domain.FilterRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*domain.FilterRule
	for _, rule := range c.rules {
		if !rule.Enabled {
			continue
		}
		all := true
		for _, cond := range rule.Conditions {
			if !evalCondition(s, cond) {
				all = false
				break
			}
		}
		if all {
			matched = append(matched, rule)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].EvalOrder < matched[j].EvalOrder })
	return matched
}

// applyRule применяет действия правила к классификации.
// set_priority добавляет вес тира только если значение реально сменилось —
// иначе score задваивается. escalate никогда не понижает уровень.
func applyRule(rule *domain.FilterRule, cls *domain.Classification, logger *zap.Logger) (modified bool, boost int, drop bool) {
	for _, action := range rule.Actions {
		switch action.Type {
		case domain.ActionSetPriority:
			if action.Priority != "" && cls.Priority != action.Priority {
				cls.Priority = action.Priority
				boost += priorityBoost(action.Priority)
				modified = true
			}
		case domain.ActionSetCategory:
			if action.Category != "" {
				cls.Category = action.Category
			}
			modified = true
		case domain.ActionSetUrgency:
			if action.Urgency != "" {
				cls.Urgency = action.Urgency
			}
			modified = true
		case domain.ActionEscalate:
			level := action.Level
			if level == 0 {
				level = 1
			}
			cls.Escalate(level)
			boost += level * 10
			modified = true
		case domain.ActionAlert:
			cls.RequiresAlert = true
			boost += 5
			modified = true
		case domain.ActionForward:
			// Хук маршрутизации: только лог, в score не входит
			logger.Info("forward action", zap.String("destination", action.Destination))
		case domain.ActionDuplicate:
			logger.Info("duplicate action", zap.String("rule", rule.Name))
		case domain.ActionDrop:
			drop = true
			modified = true
		default:
			// Неизвестные действия молча игнорируются
		}
	}
	return modified, boost, drop
}

// evalCondition вычисляет одно условие. Битый regex или нечисловое значение
// при числовом операторе дают non-match, классификация не падает.
func evalCondition(s *domain.Signal, cond domain.FilterCondition) bool {
	fieldValue := fieldValue(s, cond.Field)

	switch cond.Op {
	case domain.OpEquals:
		return fieldValue == cond.Value
	case domain.OpContains:
		if cond.CaseSensitive {
			return strings.Contains(fieldValue, cond.Value)
		}
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(cond.Value))
	case domain.OpRegex:
		pattern := cond.Value
		if !cond.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(fieldValue)
	case domain.OpGreaterThan:
		n, err := strconv.ParseFloat(fieldValue, 64)
		if err != nil {
			return false
		}
		return n > cond.Number
	case domain.OpLessThan:
		n, err := strconv.ParseFloat(fieldValue, 64)
		if err != nil {
			return false
		}
		return n < cond.Number
	case domain.OpIn:
		for _, v := range cond.Values {
			if fieldValue == v {
				return true
			}
		}
		return false
	case domain.OpNotIn:
		for _, v := range cond.Values {
			if fieldValue == v {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func fieldValue(s *domain.Signal, field domain.ConditionField) string {
	switch field {
	case domain.FieldSignalType:
		return s.SignalType
	case domain.FieldFromAgent:
		return s.FromAgent
	case domain.FieldToAgent:
		return s.ToAgent
	case domain.FieldPriority:
		return string(s.Priority)
	case domain.FieldStatus:
		return string(s.Status)
	case domain.FieldContent:
		b, err := domain.MarshalPayload(s.Content)
		if err != nil {
			return ""
		}
		return string(b)
	case domain.FieldMetadata:
		return string(s.Metadata)
	default:
		return ""
	}
}
