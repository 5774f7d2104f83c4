package classifier

import "github.com/piata-ai/signalcore/internal/domain"

// defaultRules — встроенный набор политики. Загружается при старте,
// если classifier.load_default_rules не выключен в конфиге.
func defaultRules() []*domain.FilterRule {
	return []*domain.FilterRule{
		{
			ID:          "critical_agent_failure",
			Name:        "Critical Agent Failure",
			Enabled:     true,
			EvalOrder:   1,
			Description: "Immediately escalate agent failures",
			Conditions: []domain.FilterCondition{
				{Field: domain.FieldSignalType, Op: domain.OpEquals, Value: domain.SignalCallAgent},
				{Field: domain.FieldStatus, Op: domain.OpEquals, Value: string(domain.StatusFailed)},
			},
			Actions: []domain.FilterAction{
				{Type: domain.ActionSetPriority, Priority: domain.PriorityCritical},
				{Type: domain.ActionSetCategory, Category: domain.CategorySystem},
				{Type: domain.ActionEscalate, Level: 1},
				{Type: domain.ActionAlert, Channels: []string{"email", "slack"}},
			},
		},
		{
			ID:          "performance_degradation",
			Name:        "Performance Degradation",
			Enabled:     true,
			EvalOrder:   2,
			Description: "Detect and escalate performance issues",
			Conditions: []domain.FilterCondition{
				{Field: domain.FieldSignalType, Op: domain.OpContains, Value: "performance"},
				{Field: domain.FieldContent, Op: domain.OpContains, Value: "response_time"},
			},
			Actions: []domain.FilterAction{
				{Type: domain.ActionSetPriority, Priority: domain.PriorityHigh},
				{Type: domain.ActionSetCategory, Category: domain.CategoryPerformance},
				{Type: domain.ActionAlert, Channels: []string{"dashboard"}},
			},
		},
		{
			ID:          "security_alerts",
			Name:        "Security Alerts",
			Enabled:     true,
			EvalOrder:   1,
			Description: "Prioritize security-related signals",
			Conditions: []domain.FilterCondition{
				{Field: domain.FieldSignalType, Op: domain.OpContains, Value: "security"},
				{Field: domain.FieldMetadata, Op: domain.OpContains, Value: "authentication"},
			},
			Actions: []domain.FilterAction{
				{Type: domain.ActionSetPriority, Priority: domain.PriorityCritical},
				{Type: domain.ActionSetCategory, Category: domain.CategorySecurity},
				{Type: domain.ActionEscalate, Level: 2},
				{Type: domain.ActionAlert, Channels: []string{"email", "slack", "sms"}},
			},
		},
		{
			ID:          "user_critical_requests",
			Name:        "User Critical Requests",
			Enabled:     true,
			EvalOrder:   3,
			Description: "Prioritize user-generated critical requests",
			Conditions: []domain.FilterCondition{
				{Field: domain.FieldMetadata, Op: domain.OpContains, Value: "user_request"},
				{Field: domain.FieldPriority, Op: domain.OpEquals, Value: string(domain.PriorityHigh)},
			},
			Actions: []domain.FilterAction{
				{Type: domain.ActionSetUrgency, Urgency: domain.UrgencyUrgent},
				{Type: domain.ActionSetCategory, Category: domain.CategoryUser},
			},
		},
	}
}
