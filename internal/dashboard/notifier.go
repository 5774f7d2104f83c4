package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier доставляет новые алерты во внешние каналы. Вебхуки защищены
// предохранителем и лимитером: упавший приемник не тормозит тик сбора.
type Notifier struct {
	cfg     infra.DashboardConfig
	rdb     *redis.Client
	httpc   *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewNotifier(cfg infra.DashboardConfig, rdb *redis.Client, logger *zap.Logger) *Notifier {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert-webhook",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Notifier{
		cfg:     cfg,
		rdb:     rdb,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		logger:  logger.Named("notifier"),
	}
}

// Notify разносит алерт по настроенным каналам. Сбои доставки логируются,
// алертинг от них не падает.
func (n *Notifier) Notify(ctx context.Context, alert *domain.PerformanceAlert) {
	body, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("failed to marshal alert", zap.Error(err))
		return
	}

	for _, channel := range n.cfg.NotifyChannels {
		switch channel {
		case "redis":
			n.publishRedis(ctx, body)
		case "webhook":
			for _, url := range n.cfg.WebhookURLs {
				n.postWebhook(ctx, url, body)
			}
		default:
			n.logger.Warn("unknown notify channel", zap.String("channel", channel))
		}
	}
}

func (n *Notifier) publishRedis(ctx context.Context, body []byte) {
	if n.rdb == nil {
		return
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
	)
	err := r.Do(func() error {
		return n.rdb.Publish(ctx, infra.RedisChanAlerts, body).Err()
	})
	if err != nil {
		n.logger.Warn("redis alert publish failed", zap.Error(err))
	}
}

func (n *Notifier) postWebhook(ctx context.Context, url string, body []byte) {
	if err := n.limiter.Wait(ctx); err != nil {
		n.logger.Warn("webhook rate limit wait aborted", zap.Error(err))
		return
	}

	_, err := n.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(tCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("webhook %s returned %d", url, resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("url", url), zap.Error(err))
	}
}
