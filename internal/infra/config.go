package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса координации сигналов.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub уведомления).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

// ThresholdPair — пара порогов warning/critical для одной метрики.
type ThresholdPair struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// DashboardConfig — настройки сборщика метрик и алертинга.
type DashboardConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	SampleWindow    time.Duration `mapstructure:"sample_window"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`

	ResponseTime ThresholdPair `mapstructure:"response_time"` // миллисекунды
	SuccessRate  ThresholdPair `mapstructure:"success_rate"`  // доля [0..1], пороги снизу
	ErrorRate    ThresholdPair `mapstructure:"error_rate"`    // доля [0..1], пороги сверху

	MetricsRetention time.Duration `mapstructure:"metrics_retention"`
	AlertsRetention  time.Duration `mapstructure:"alerts_retention"`

	// Куда доставлять уведомления о новых алертах
	NotifyChannels []string `mapstructure:"notify_channels"` // напр. ["redis", "webhook"]
	WebhookURLs    []string `mapstructure:"webhook_urls"`
}

// ReplayConfig — настройки движка воспроизведения.
type ReplayConfig struct {
	SessionRetention time.Duration `mapstructure:"session_retention"`
	FetchLimit       int           `mapstructure:"fetch_limit"`
}

// ClassifierConfig — настройки классификатора.
type ClassifierConfig struct {
	LoadDefaultRules bool `mapstructure:"load_default_rules"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения перекрывают файл: SERVER_PORT=9000 -> server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из файла ИЛИ напрямую из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("dashboard.refresh_interval", 5*time.Second)
	v.SetDefault("dashboard.sample_window", 5*time.Minute)
	v.SetDefault("dashboard.stale_after", 10*time.Minute)
	v.SetDefault("dashboard.response_time.warning", 1000.0)
	v.SetDefault("dashboard.response_time.critical", 3000.0)
	v.SetDefault("dashboard.success_rate.warning", 0.8)
	v.SetDefault("dashboard.success_rate.critical", 0.6)
	v.SetDefault("dashboard.error_rate.warning", 0.1)
	v.SetDefault("dashboard.error_rate.critical", 0.2)
	v.SetDefault("dashboard.metrics_retention", 24*time.Hour)
	v.SetDefault("dashboard.alerts_retention", 7*24*time.Hour)
	v.SetDefault("dashboard.notify_channels", []string{"redis"})

	v.SetDefault("replay.session_retention", 24*time.Hour)
	v.SetDefault("replay.fetch_limit", 1000)

	v.SetDefault("classifier.load_default_rules", true)
}

// loadKeyResource — ключ либо лежит напрямую в ENV (PEM), либо читается из файла.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
