package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ORDERFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Queue        QueueConfig
	Worker       WorkerConfig
	Payment      PaymentConfig
	Email        EmailConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" default:"dev"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ORDERFLOW_DB_HOST"`
	Port     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"ORDERFLOW_DB_USER"`
	Password string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	Name     string `envconfig:"ORDERFLOW_DB_NAME"`
	SSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either ORDERFLOW_DB_DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// QueueConfig tunes the priority job queue shared by all processes.
type QueueConfig struct {
	Driver         string        `envconfig:"ORDERFLOW_QUEUE_DRIVER" default:"redis"`
	Namespace      string        `envconfig:"ORDERFLOW_QUEUE_NAMESPACE" default:"orderflow"`
	DequeueTimeout time.Duration `envconfig:"ORDERFLOW_QUEUE_DEQUEUE_TIMEOUT" default:"2s"`
	RetryBaseDelay time.Duration `envconfig:"ORDERFLOW_QUEUE_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"ORDERFLOW_QUEUE_RETRY_MAX_DELAY" default:"2m"`
}

type WorkerConfig struct {
	Concurrency int           `envconfig:"ORDERFLOW_WORKER_CONCURRENCY" default:"5"`
	MetricsPort string        `envconfig:"ORDERFLOW_WORKER_METRICS_PORT" default:"9090"`
	DrainGrace  time.Duration `envconfig:"ORDERFLOW_WORKER_DRAIN_GRACE" default:"15s"`
}

// PaymentConfig tunes the simulated payment gateway.
type PaymentConfig struct {
	Mode        string  `envconfig:"ORDERFLOW_PAYMENT_MODE" default:"simulated"`
	ApproveRate float64 `envconfig:"ORDERFLOW_PAYMENT_APPROVE_RATE" default:"0.9"`
}

type EmailConfig struct {
	FromAddress string `envconfig:"ORDERFLOW_EMAIL_FROM" default:"orders@lifecart.example"`
	FromName    string `envconfig:"ORDERFLOW_EMAIL_FROM_NAME" default:"Lifecart Orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig tunes the scheduled cleanup worker.
type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_MAINTENANCE_INTERVAL" default:"24h"`
	CartTTLDays         int           `envconfig:"ORDERFLOW_MAINTENANCE_CART_TTL_DAYS" default:"7"`
	OutboxRetentionDays int           `envconfig:"ORDERFLOW_MAINTENANCE_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"ORDERFLOW_MAINTENANCE_DLQ_RETENTION_DAYS" default:"90"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_FEATURE_AUTO_MIGRATE" default:"false"`
}
