package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "sigcore"
)

// Ключи для Sets (состояние)
const (
	// RedisKeyAgentHeartbeats — set имен агентов с живым heartbeat.
	RedisKeyAgentHeartbeats = RedisNamespace + ":agents:heartbeat_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSignalLogged — уведомление потребителей о новом сигнале.
	// Payload: "id:signal_type:to_agent" (to_agent пуст для broadcast).
	RedisChanSignalLogged = RedisNamespace + ":signals:logged"

	// RedisChanAlerts — трансляция новых performance-алертов дашборда.
	RedisChanAlerts = RedisNamespace + ":alerts:raised"
)

// GetAgentChannel — персональный канал пробуждения конкретного агента.
func GetAgentChannel(agent string) string {
	return fmt.Sprintf("%s:agents:wake:%s", RedisNamespace, agent)
}
