// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Database  DatabaseConfig `mapstructure:"database"`
	Queue     QueueConfig    `mapstructure:"queue"`
	Webhooks  WebhookConfig  `mapstructure:"webhooks"`
	Platforms PlatformConfig `mapstructure:"platforms"`
	Security  SecurityConfig `mapstructure:"security"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// QueueConfig holds the durable job queue settings.
type QueueConfig struct {
	Name              string `mapstructure:"name"`
	Workers           int    `mapstructure:"workers"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	BackoffBaseMS     int    `mapstructure:"backoff_base_ms"`
	CompletedRetained int    `mapstructure:"completed_retained"`
	JobTimeoutMS      int    `mapstructure:"job_timeout_ms"`
}

// WebhookConfig holds the notifier settings.
type WebhookConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	TimeoutMS        int     `mapstructure:"timeout_ms"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	RatePerSec       float64 `mapstructure:"rate_per_sec"`
	RetentionDays    int     `mapstructure:"retention_days"`
	CleanupSchedule  string  `mapstructure:"cleanup_schedule"`
	AllowPrivateURLs bool    `mapstructure:"allow_private_urls"`
}

// PlatformConfig holds settings for the built-in platform adapters.
type PlatformConfig struct {
	AWSRegion string `mapstructure:"aws_region"`
	FromEmail string `mapstructure:"from_email"`
}

type SecurityConfig struct {
	// EncryptionKey is a 64-char hex string (32 bytes) for AES-256-GCM.
	// Always injected via environment, never committed to config files.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
