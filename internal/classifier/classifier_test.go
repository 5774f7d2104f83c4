package classifier

import (
	"testing"

	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return New(nil, zap.NewNop())
}

func TestProcessSignalBaseScore(t *testing.T) {
	c := newTestClassifier(t)

	result := c.ProcessSignal(&domain.Signal{
		ID:         1,
		SignalType: "CUSTOM_PING",
		FromAgent:  "scout",
		Priority:   domain.PriorityNormal,
	})

	// 50 базовых + 0 за неизвестный тип + 10 за normal
	assert.Equal(t, 60, result.PriorityScore)
	assert.False(t, result.Filtered)
	assert.False(t, result.Modified)
	assert.Equal(t, domain.PriorityNormal, result.Classification.Priority)
	assert.Equal(t, domain.UrgencyStandard, result.Classification.Urgency)
	assert.Equal(t, 1, c.QueueStats().TotalSignals)
}

func TestProcessSignalEmptyPriorityNormalized(t *testing.T) {
	c := newTestClassifier(t)

	result := c.ProcessSignal(&domain.Signal{ID: 2, SignalType: "PING", FromAgent: "a"})

	assert.Equal(t, domain.PriorityNormal, result.Classification.Priority)
	assert.Equal(t, 60, result.PriorityScore)
}

func TestDefaultRuleCriticalAgentFailure(t *testing.T) {
	c := newTestClassifier(t)
	c.LoadDefaultRules()

	result := c.ProcessSignal(&domain.Signal{
		ID:         7,
		SignalType: domain.SignalCallAgent,
		FromAgent:  "worker-1",
		ToAgent:    "worker-2",
		Priority:   domain.PriorityNormal,
		Status:     domain.StatusFailed,
	})

	// База: 50 + 20 (CALL_AGENT) + 10 (normal) = 80
	// Правило: set_priority critical (+40) + escalate 1 (+10) + alert (+5) = +55
	// Критическое событие: +100
	assert.Equal(t, 235, result.PriorityScore)
	assert.False(t, result.Filtered)
	assert.True(t, result.Modified)
	assert.Contains(t, result.Actions, "Critical Agent Failure")

	cls := result.Classification
	assert.Equal(t, domain.PriorityCritical, cls.Priority)
	assert.Equal(t, domain.UrgencyImmediate, cls.Urgency)
	assert.True(t, cls.RequiresAlert)
	assert.Equal(t, 2, cls.EscalationLevel) // событие поднимает до 2

	events := c.CriticalEvents("")
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailure, events[0].Type)
	assert.Equal(t, domain.SeverityHigh, events[0].Severity)
	assert.Equal(t, "Agent Execution Failed", events[0].Title)
}

func TestCriticalEventDeduplication(t *testing.T) {
	c := newTestClassifier(t)

	signal := &domain.Signal{
		ID:         42,
		SignalType: domain.SignalCallAgent,
		FromAgent:  "worker-1",
		Status:     domain.StatusFailed,
	}

	c.ProcessSignal(signal)
	c.ProcessSignal(signal)

	// Повторная классификация того же сигнала не создает второе событие
	events := c.CriticalEvents("")
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].SourceSignalID)
	assert.Equal(t, []int64{42}, events[0].CorrelatedSignals)
}

func TestSecurityPatternMatchesByTypeSubstring(t *testing.T) {
	c := newTestClassifier(t)

	result := c.ProcessSignal(&domain.Signal{
		ID:         9,
		SignalType: "SECURITY_BREACH_ATTEMPT",
		FromAgent:  "gateway",
		Priority:   domain.PriorityLow,
	})

	assert.Equal(t, domain.PriorityCritical, result.Classification.Priority)
	events := c.CriticalEvents(domain.EventActive)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSecurity, events[0].Type)
	assert.Equal(t, domain.SeverityCritical, events[0].Severity)
}

func TestDropActionFiltersSignal(t *testing.T) {
	c := newTestClassifier(t)
	c.AddRule(&domain.FilterRule{
		ID:        "mute_noise",
		Name:      "Mute Noise",
		Enabled:   true,
		EvalOrder: 1,
		Conditions: []domain.FilterCondition{
			{Field: domain.FieldSignalType, Op: domain.OpEquals, Value: "HEARTBEAT"},
		},
		Actions: []domain.FilterAction{{Type: domain.ActionDrop}},
	})

	result := c.ProcessSignal(&domain.Signal{ID: 3, SignalType: "HEARTBEAT", FromAgent: "a"})

	assert.True(t, result.Filtered)
	assert.True(t, result.Modified)
	assert.Contains(t, result.Actions, "Mute Noise")
	// Отфильтрованный сигнал не попадает в очередь
	assert.Equal(t, 0, c.QueueStats().TotalSignals)
}

func TestDisabledRuleIgnored(t *testing.T) {
	c := newTestClassifier(t)
	c.AddRule(&domain.FilterRule{
		ID:        "disabled",
		Name:      "Disabled",
		Enabled:   false,
		EvalOrder: 1,
		Conditions: []domain.FilterCondition{
			{Field: domain.FieldSignalType, Op: domain.OpEquals, Value: "PING"},
		},
		Actions: []domain.FilterAction{{Type: domain.ActionDrop}},
	})

	result := c.ProcessSignal(&domain.Signal{ID: 4, SignalType: "PING", FromAgent: "a"})
	assert.False(t, result.Filtered)
	assert.Empty(t, result.Actions)
}

func TestSetPriorityBoostOnlyOnChange(t *testing.T) {
	c := newTestClassifier(t)
	c.AddRule(&domain.FilterRule{
		ID:        "noop_priority",
		Name:      "Noop Priority",
		Enabled:   true,
		EvalOrder: 1,
		Conditions: []domain.FilterCondition{
			{Field: domain.FieldPriority, Op: domain.OpEquals, Value: string(domain.PriorityHigh)},
		},
		Actions: []domain.FilterAction{
			{Type: domain.ActionSetPriority, Priority: domain.PriorityHigh},
		},
	})

	result := c.ProcessSignal(&domain.Signal{
		ID: 5, SignalType: "PING", FromAgent: "a", Priority: domain.PriorityHigh,
	})

	// Приоритет не изменился, веса за set_priority нет: 50 + 0 + 25
	assert.Equal(t, 75, result.PriorityScore)
	assert.False(t, result.Modified)
}

func TestEvalCondition(t *testing.T) {
	signal := &domain.Signal{
		SignalType: "CALL_AGENT",
		FromAgent:  "Scout-One",
		Priority:   domain.PriorityHigh,
		Metadata:   []byte(`{"source":"user_request"}`),
	}

	tests := []struct {
		name string
		cond domain.FilterCondition
		want bool
	}{
		{"equals match", domain.FilterCondition{Field: domain.FieldSignalType, Op: domain.OpEquals, Value: "CALL_AGENT"}, true},
		{"equals miss", domain.FilterCondition{Field: domain.FieldSignalType, Op: domain.OpEquals, Value: "BROADCAST"}, false},
		{"contains default case-insensitive", domain.FilterCondition{Field: domain.FieldFromAgent, Op: domain.OpContains, Value: "scout"}, true},
		{"contains case-sensitive miss", domain.FilterCondition{Field: domain.FieldFromAgent, Op: domain.OpContains, Value: "scout", CaseSensitive: true}, false},
		{"regex match", domain.FilterCondition{Field: domain.FieldFromAgent, Op: domain.OpRegex, Value: `^scout-\w+$`}, true},
		{"invalid regex is non-match", domain.FilterCondition{Field: domain.FieldFromAgent, Op: domain.OpRegex, Value: `([`}, false},
		{"metadata contains", domain.FilterCondition{Field: domain.FieldMetadata, Op: domain.OpContains, Value: "user_request"}, true},
		{"in", domain.FilterCondition{Field: domain.FieldPriority, Op: domain.OpIn, Values: []string{"high", "critical"}}, true},
		{"not_in", domain.FilterCondition{Field: domain.FieldPriority, Op: domain.OpNotIn, Values: []string{"low"}}, true},
		{"not_in miss", domain.FilterCondition{Field: domain.FieldPriority, Op: domain.OpNotIn, Values: []string{"high"}}, false},
		{"unknown op", domain.FilterCondition{Field: domain.FieldPriority, Op: "between"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalCondition(signal, tt.cond))
		})
	}
}

func TestRuleManagement(t *testing.T) {
	c := newTestClassifier(t)
	c.LoadDefaultRules()

	stats := c.Stats()
	assert.Equal(t, 4, stats.TotalRules)
	assert.Equal(t, 4, stats.EnabledRules)

	ok := c.UpdateRule("security_alerts", func(r *domain.FilterRule) { r.Enabled = false })
	require.True(t, ok)
	assert.Equal(t, 3, c.Stats().EnabledRules)

	assert.True(t, c.RemoveRule("user_critical_requests"))
	assert.False(t, c.RemoveRule("user_critical_requests"))
	assert.Equal(t, 3, c.Stats().TotalRules)

	// Rules отсортированы по EvalOrder
	rules := c.Rules()
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].EvalOrder, rules[i].EvalOrder)
	}
}

func TestRulesReturnsCopies(t *testing.T) {
	c := newTestClassifier(t)
	c.LoadDefaultRules()

	rules := c.Rules()
	require.NotEmpty(t, rules)

	// Мутация снимка не трогает живые правила классификатора
	rules[0].Enabled = false
	rules[0].Conditions[0].Value = "tampered"
	assert.Equal(t, 4, c.Stats().EnabledRules)

	fresh := c.Rules()
	assert.True(t, fresh[0].Enabled)
	assert.NotEqual(t, "tampered", fresh[0].Conditions[0].Value)

	// И наоборот: UpdateRule не меняет ранее выданный снимок
	before := c.Rules()
	c.UpdateRule(before[0].ID, func(r *domain.FilterRule) { r.Name = "renamed" })
	assert.NotEqual(t, "renamed", before[0].Name)
}

func TestEventStatusTransitions(t *testing.T) {
	c := newTestClassifier(t)
	c.ProcessSignal(&domain.Signal{
		ID: 11, SignalType: domain.SignalCallAgent, FromAgent: "a", Status: domain.StatusFailed,
	})

	events := c.CriticalEvents("")
	require.Len(t, events, 1)
	id := events[0].ID

	require.NoError(t, c.UpdateEventStatus(id, domain.EventInvestigating))
	require.NoError(t, c.UpdateEventStatus(id, domain.EventResolved))
	assert.NotNil(t, c.CriticalEvents("")[0].ResolvedAt)

	// Из resolved дороги назад нет
	assert.Error(t, c.UpdateEventStatus(id, domain.EventActive))
	assert.Error(t, c.UpdateEventStatus("missing", domain.EventResolved))
}
