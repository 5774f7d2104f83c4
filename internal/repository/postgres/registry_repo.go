package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/piata-ai/signalcore/internal/domain"
)

// RegistryRepo — реестр агентов, история обучения и сырые замеры
// производительности (agent_registry, agent_learning_history,
// agent_performance_metrics).
type RegistryRepo struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) *RegistryRepo {
	return &RegistryRepo{pool: pool}
}

// UpsertAgent регистрирует или обновляет агента по имени.
// Каждый вызов освежает last_heartbeat.
func (r *RegistryRepo) UpsertAgent(ctx context.Context, a *domain.AgentRecord) error {
	query := `
		INSERT INTO agent_registry (agent_name, agent_type, status, capabilities, last_heartbeat, metadata, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), $5, NOW())
		ON CONFLICT (agent_name) DO UPDATE SET
			agent_type = EXCLUDED.agent_type,
			status = EXCLUDED.status,
			capabilities = EXCLUDED.capabilities,
			last_heartbeat = NOW(),
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		a.AgentName, a.AgentType, a.Status, a.Capabilities, a.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert agent %s: %w", a.AgentName, err)
	}
	return nil
}

// ListAgents возвращает всех агентов, свежие heartbeat первыми.
func (r *RegistryRepo) ListAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	query := `
		SELECT agent_name, agent_type, status, capabilities, last_heartbeat, metadata, updated_at
		FROM agent_registry ORDER BY last_heartbeat DESC NULLS LAST`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.AgentRecord
	for rows.Next() {
		a := &domain.AgentRecord{}
		if err := rows.Scan(&a.AgentName, &a.AgentType, &a.Status,
			&a.Capabilities, &a.LastHeartbeat, &a.Metadata, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetAgent возвращает запись реестра. nil, nil — если агент не зарегистрирован.
func (r *RegistryRepo) GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error) {
	query := `
		SELECT agent_name, agent_type, status, capabilities, last_heartbeat, metadata, updated_at
		FROM agent_registry WHERE agent_name = $1`

	a := &domain.AgentRecord{}
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&a.AgentName, &a.AgentType, &a.Status,
		&a.Capabilities, &a.LastHeartbeat, &a.Metadata, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get agent %s: %w", name, err)
	}
	return a, nil
}

// LogInteraction пишет запись истории обучения. Синхронно никем не читается.
func (r *RegistryRepo) LogInteraction(ctx context.Context, i *domain.Interaction) error {
	query := `
		INSERT INTO agent_learning_history
			(from_agent, to_agent, interaction_type, task_id, task_description, outcome, duration_ms, context)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		i.FromAgent, i.ToAgent, i.InteractionType, i.TaskID, i.TaskDescription,
		string(i.Outcome), i.DurationMs, i.Context)
	if err != nil {
		return fmt.Errorf("postgres: failed to log interaction: %w", err)
	}
	return nil
}

// RecordMetric добавляет один сырой замер; агрегацию делает дашборд.
func (r *RegistryRepo) RecordMetric(ctx context.Context, m *domain.MetricSample) error {
	query := `
		INSERT INTO agent_performance_metrics (agent_name, metric_type, metric_value, time_window)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, m.AgentName, m.MetricType, m.Value, m.TimeWindow)
	if err != nil {
		return fmt.Errorf("postgres: failed to record metric: %w", err)
	}
	return nil
}

// GetAgentPerformance возвращает последние замеры агента в заданном окне.
func (r *RegistryRepo) GetAgentPerformance(ctx context.Context, agent, timeWindow string, limit int) ([]*domain.MetricSample, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT agent_name, metric_type, metric_value, time_window, timestamp
		FROM agent_performance_metrics
		WHERE agent_name = $1 AND time_window = $2
		ORDER BY timestamp DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, agent, timeWindow, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get agent performance: %w", err)
	}
	defer rows.Close()

	var samples []*domain.MetricSample
	for rows.Next() {
		m := &domain.MetricSample{}
		if err := rows.Scan(&m.AgentName, &m.MetricType, &m.Value, &m.TimeWindow, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan metric sample: %w", err)
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}
