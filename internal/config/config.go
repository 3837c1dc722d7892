package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the BeaRiOT dashboard and the document
// proxy. Each binary reads the sections it needs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Docstore  DocstoreConfig  `yaml:"docstore"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// DocstoreConfig points the dashboard at the document proxy. An empty
// BaseURL selects the in-memory store, for development without a proxy.
type DocstoreConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// SchedulerConfig holds the tag scheduler's cadences.
type SchedulerConfig struct {
	TickPeriod           time.Duration `yaml:"tick_period"`
	HistoryFlushInterval time.Duration `yaml:"history_flush_interval"`
	EvalTimeout          time.Duration `yaml:"eval_timeout"`
}

// AlertsConfig holds threshold alarm configuration.
type AlertsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Cooldown     time.Duration `yaml:"cooldown"`
	LineEndpoint string        `yaml:"line_endpoint"`
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	Webhook      WebhookConfig `yaml:"webhook"`
}

// WebhookConfig holds a generic alarm webhook target.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// DatabaseConfig holds the document proxy's Postgres backing store. An
// empty URL selects in-memory storage.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the document proxy's read cache.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig holds token issuing and validation settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Load loads configuration from a YAML file, expanding environment
// variables first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 3300),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Docstore: DocstoreConfig{
			BaseURL: getEnv("DOCSTORE_URL", ""),
			Token:   getEnv("DOCSTORE_TOKEN", ""),
		},
		Scheduler: SchedulerConfig{
			TickPeriod:           getEnvDuration("SCHEDULER_TICK", time.Second),
			HistoryFlushInterval: getEnvDuration("HISTORY_FLUSH_INTERVAL", time.Minute),
			EvalTimeout:          getEnvDuration("EVAL_TIMEOUT", 10*time.Second),
		},
		Alerts: AlertsConfig{
			Enabled:      getEnvBool("ALERTS_ENABLED", true),
			Cooldown:     getEnvDuration("ALERT_COOLDOWN", 5*time.Minute),
			LineEndpoint: getEnv("LINE_ENDPOINT", "https://notify-api.line.me/api/notify"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", false),
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "beariot"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
