package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/piata-ai/signalcore/internal/domain"
)

// SignalRepo — хранилище сигналов (таблица a2a_signals).
// Единственный писатель статусов; политика ретраев принадлежит вызывающему.
type SignalRepo struct {
	pool *pgxpool.Pool
}

func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

func (r *SignalRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// LogSignal добавляет запись со статусом pending и возвращает присвоенный ID.
// Недоступность базы отдается вызывающему без повторов и фолбэков.
func (r *SignalRepo) LogSignal(ctx context.Context, s *domain.Signal) (int64, error) {
	content, err := domain.MarshalPayload(s.Content)
	if err != nil {
		return 0, err
	}

	var toAgent *string
	if s.ToAgent != "" {
		toAgent = &s.ToAgent
	}

	query := `
		INSERT INTO a2a_signals (signal_type, from_agent, to_agent, content, priority, status, retry_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		RETURNING id, created_at`

	var id int64
	var createdAt time.Time
	err = r.pool.QueryRow(ctx, query,
		s.SignalType, s.FromAgent, toAgent, content,
		string(domain.NormalizePriority(s.Priority)), string(domain.StatusPending), s.Metadata,
	).Scan(&id, &createdAt)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to log signal: %w", err)
	}

	s.ID = id
	s.CreatedAt = createdAt
	s.Status = domain.StatusPending
	return id, nil
}

// UpdateStatus ставит новый статус, отметку времени обработки и текст ошибки.
func (r *SignalRepo) UpdateStatus(ctx context.Context, id int64, status domain.SignalStatus, errMsg string) error {
	query := `
		UPDATE a2a_signals
		SET status = $1, error_message = NULLIF($2, ''), processed_at = NOW()
		WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update signal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: signal %d not found", id)
	}
	return nil
}

// GetSignal возвращает один сигнал по ID. nil, nil — если записи нет.
func (r *SignalRepo) GetSignal(ctx context.Context, id int64) (*domain.Signal, error) {
	query := `
		SELECT id, signal_type, from_agent, to_agent, content, priority, status,
		       error_message, retry_count, created_at, processed_at, metadata
		FROM a2a_signals WHERE id = $1`

	s, err := scanSignal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get signal %d: %w", id, err)
	}
	return s, nil
}

// GetSignals возвращает сигналы от новых к старым по комбинации условий.
// Agents матчит отправителя ИЛИ адресата. Дефолтный лимит 100.
func (r *SignalRepo) GetSignals(ctx context.Context, filter domain.SignalFilter, limit int) ([]*domain.Signal, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.SignalTypes) > 0 {
		where = append(where, fmt.Sprintf("signal_type = ANY(%s)", arg(filter.SignalTypes)))
	}
	if len(filter.Agents) > 0 {
		p := arg(filter.Agents)
		where = append(where, fmt.Sprintf("(from_agent = ANY(%s) OR to_agent = ANY(%s))", p, p))
	}
	if len(filter.Priorities) > 0 {
		vals := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			vals[i] = string(p)
		}
		where = append(where, fmt.Sprintf("priority = ANY(%s)", arg(vals)))
	}
	if len(filter.Statuses) > 0 {
		vals := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			vals[i] = string(s)
		}
		where = append(where, fmt.Sprintf("status = ANY(%s)", arg(vals)))
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("created_at >= %s", arg(*filter.From)))
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("created_at <= %s", arg(*filter.To)))
	}

	query := `
		SELECT id, signal_type, from_agent, to_agent, content, priority, status,
		       error_message, retry_count, created_at, processed_at, metadata
		FROM a2a_signals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s", arg(limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// RequeueStale возвращает в pending сигналы, зависшие в processing дольше
// olderThan, и инкрементирует retry_count. Явная операторская операция,
// автоматического TTL у сигналов нет.
func (r *SignalRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE a2a_signals
		SET status = $1, retry_count = retry_count + 1, error_message = NULL
		WHERE status = $2 AND created_at < NOW() - $3::interval`

	tag, err := r.pool.Exec(ctx, query,
		string(domain.StatusPending), string(domain.StatusProcessing),
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to requeue stale signals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountStale считает зависшие незавершенные сигналы по агенту (для дашборда).
func (r *SignalRepo) CountStale(ctx context.Context, agent string, olderThan time.Duration) (int, error) {
	query := `
		SELECT COUNT(*) FROM a2a_signals
		WHERE (from_agent = $1 OR to_agent = $1)
		  AND status IN ($2, $3)
		  AND created_at < NOW() - $4::interval`

	var n int
	err := r.pool.QueryRow(ctx, query,
		agent, string(domain.StatusPending), string(domain.StatusProcessing),
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count stale signals: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*domain.Signal, error) {
	var (
		s        domain.Signal
		toAgent  *string
		errMsg   *string
		content  []byte
		priority string
		status   string
	)
	if err := row.Scan(
		&s.ID, &s.SignalType, &s.FromAgent, &toAgent, &content, &priority, &status,
		&errMsg, &s.RetryCount, &s.CreatedAt, &s.ProcessedAt, &s.Metadata,
	); err != nil {
		return nil, err
	}
	if toAgent != nil {
		s.ToAgent = *toAgent
	}
	if errMsg != nil {
		s.ErrorMsg = *errMsg
	}
	s.Priority = domain.SignalPriority(priority)
	s.Status = domain.SignalStatus(status)

	payload, err := domain.UnmarshalPayload(content)
	if err != nil {
		return nil, err
	}
	s.Content = payload
	return &s, nil
}
