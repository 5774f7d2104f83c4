package bus

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notification — разобранное уведомление о новом сигнале из Redis.
// Содержит только конверт; тело при необходимости дочитывается через GetSignal.
type Notification struct {
	SignalID   int64
	SignalType string
	ToAgent    string
}

// listen — "живучий" цикл подписки на канал уведомлений.
// Обрабатывает переподключения, логирование и разбор payload.
func listen(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(n Notification),
) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Синхронизация при каждом успешном коннекте: за время обрыва
		// могли появиться сигналы, которые подписчик не видел
		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // канал закрыт, идем на переподключение
				}

				n, ok := parseNotification(msg.Payload)
				if !ok {
					logger.Error("invalid signal notification", zap.String("payload", msg.Payload))
					continue
				}
				onMessage(n)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// parseNotification разбирает формат "id:signal_type:to_agent".
// to_agent пуст для broadcast.
func parseNotification(payload string) (Notification, bool) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 {
		return Notification{}, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Notification{}, false
	}
	return Notification{SignalID: id, SignalType: parts[1], ToAgent: parts[2]}, true
}

// SubscribeSignals блокируется и вызывает fn на каждое уведомление о новом
// сигнале. Пустой agent подписывает на общий канал, непустой — на персональный
// канал пробуждения агента. Возвращается по отмене контекста.
func (b *Bus) SubscribeSignals(ctx context.Context, agent string, onReconnect func() error, fn func(Notification)) error {
	if b.rdb == nil {
		return ErrNotificationsDisabled
	}

	channel := infra.RedisChanSignalLogged
	if agent != "" {
		channel = infra.GetAgentChannel(agent)
	}

	b.logger.Info("signal subscription started",
		zap.String("channel", channel), zap.String("agent", agent))
	listen(ctx, b.rdb, b.logger, channel, onReconnect, fn)
	return nil
}
