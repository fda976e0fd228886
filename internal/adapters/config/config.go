package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Engine     EngineConfig     `envconfig:"ENGINE"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"pulsewatch"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// ClickHouseConfig represents the optional measurement history archive
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"pulsewatch"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// RedisConfig represents Redis connection parameters (locks + live trigger cache)
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// TelegramConfig represents the notification bridge consumer
type TelegramConfig struct {
	BotToken        string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID          int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnTriggers bool   `envconfig:"TELEGRAM_ALERT_ON_TRIGGERS" default:"true"`
}

// EngineConfig represents rule engine parameters
type EngineConfig struct {
	// MinBaselineSamples is the minimum history size before a baseline exists
	MinBaselineSamples int `envconfig:"ENGINE_MIN_BASELINE_SAMPLES" default:"14"`
	// BaselineWindowDays is the history window fed into baseline recomputation
	BaselineWindowDays int `envconfig:"ENGINE_BASELINE_WINDOW_DAYS" default:"60"`
	// MatchPolicy is "all" (every determinate rule must match) or "any"
	MatchPolicy string `envconfig:"ENGINE_MATCH_POLICY" default:"all"`
	// EqualityAbsTolerance is the absolute floor of the "=" tolerance band
	EqualityAbsTolerance float64 `envconfig:"ENGINE_EQUALITY_ABS_TOLERANCE" default:"0.000001"`
	// EqualitySigmaTolerance widens the "=" band proportionally to sigma
	EqualitySigmaTolerance float64 `envconfig:"ENGINE_EQUALITY_SIGMA_TOLERANCE" default:"0.1"`
	// EvalConcurrency bounds how many athletes are evaluated in parallel
	EvalConcurrency int `envconfig:"ENGINE_EVAL_CONCURRENCY" default:"8"`
	// EvalInterval is how often the evaluation worker scans for new daily records
	EvalInterval time.Duration `envconfig:"ENGINE_EVAL_INTERVAL" default:"1h"`
	// BaselineInterval is how often baselines are recomputed
	BaselineInterval time.Duration `envconfig:"ENGINE_BASELINE_INTERVAL" default:"24h"`
	// TriggerLockTTL bounds how long a per-(athlete,symptom) lock is held
	TriggerLockTTL time.Duration `envconfig:"ENGINE_TRIGGER_LOCK_TTL" default:"30s"`
	// TriggerCacheTTL is the TTL of the live trigger summary in Redis
	TriggerCacheTTL time.Duration `envconfig:"ENGINE_TRIGGER_CACHE_TTL" default:"5m"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Engine.MinBaselineSamples < 2 {
		return fmt.Errorf("ENGINE_MIN_BASELINE_SAMPLES must be at least 2 (sample stddev needs n-1)")
	}

	if c.Engine.MatchPolicy != "all" && c.Engine.MatchPolicy != "any" {
		return fmt.Errorf("ENGINE_MATCH_POLICY must be \"all\" or \"any\", got %q", c.Engine.MatchPolicy)
	}

	if c.Engine.EvalConcurrency < 1 {
		return fmt.Errorf("ENGINE_EVAL_CONCURRENCY must be positive")
	}

	if c.Engine.EqualityAbsTolerance < 0 || c.Engine.EqualitySigmaTolerance < 0 {
		return fmt.Errorf("equality tolerances must be non-negative")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when a bot token is configured")
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// Addr returns host:port for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
