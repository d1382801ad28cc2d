// Package config loads and validates bookfeed configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backend names accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
	BackendLocal    = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Updater UpdaterConfig `mapstructure:"updater"`
	RSS     RSSConfig     `mapstructure:"rss"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig guards the operator endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CatalogConfig configures the openBD client.
type CatalogConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	BatchSize     int           `mapstructure:"batch_size"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// UpdaterConfig governs the update cycle.
type UpdaterConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	HistoryRetention int           `mapstructure:"history_retention"`
	FeedTimeout      time.Duration `mapstructure:"feed_timeout"`
	CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
}

// RSSConfig controls generated channel metadata.
type RSSConfig struct {
	SiteLink    string `mapstructure:"site_link"`
	SelfBaseURL string `mapstructure:"self_base_url"`
	ItemBaseURL string `mapstructure:"item_base_url"`
	Language    string `mapstructure:"language"`
	Generator   string `mapstructure:"generator"`
}

// StorageConfig selects and configures the feed store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Local    LocalConfig    `mapstructure:"local"`
}

// RedisConfig addresses a Redis-compatible KV server.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// GCSConfig names the bucket holding feed objects.
type GCSConfig struct {
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	PublishRSS bool   `mapstructure:"publish_rss"`
}

// LocalConfig roots the filesystem store.
type LocalConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	PublishRSS bool   `mapstructure:"publish_rss"`
}

// PubSubConfig holds metadata for cycle summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("catalog.base_url", "https://api.openbd.jp/v1")
	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.retry_interval", "500ms")
	v.SetDefault("catalog.rate_per_second", 1.0)
	v.SetDefault("catalog.batch_size", 1000)
	v.SetDefault("catalog.user_agent", "bookfeed/1.0")
	v.SetDefault("updater.concurrency", 4)
	v.SetDefault("updater.history_retention", 1000)
	v.SetDefault("updater.feed_timeout", "30s")
	v.SetDefault("updater.cycle_timeout", "10m")
	v.SetDefault("rss.site_link", "https://openbd.jp/")
	v.SetDefault("rss.self_base_url", "http://localhost:8080/feeds")
	v.SetDefault("rss.item_base_url", "https://openbd.jp")
	v.SetDefault("rss.language", "ja")
	v.SetDefault("rss.generator", "Book Feed Generator v3.0")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.redis.url", "")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.migrate", true)
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.gcs.publish_rss", true)
	v.SetDefault("storage.local.base_dir", "./data")
	v.SetDefault("storage.local.publish_rss", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
		return fmt.Errorf("catalog.base_url is invalid: %w", err)
	}
	if c.Catalog.BatchSize <= 0 {
		return fmt.Errorf("catalog.batch_size must be > 0")
	}
	if c.Catalog.MaxRetries < 0 {
		return fmt.Errorf("catalog.max_retries must be >= 0")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be > 0")
	}
	if c.Updater.Concurrency <= 0 {
		return fmt.Errorf("updater.concurrency must be > 0")
	}
	if c.Updater.HistoryRetention < 500 {
		return fmt.Errorf("updater.history_retention must be >= 500")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.URL == "" && c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.url or storage.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}
