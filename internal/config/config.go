// Package config defines the top-level configuration for the position
// monitoring engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUTOTRADE_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Broker   BrokerConfig   `toml:"broker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the monitoring and execution parameters.
type EngineConfig struct {
	MonitorInterval duration `toml:"monitor_interval"`
	FeedTimeout     duration `toml:"feed_timeout"`
	OrderTimeout    duration `toml:"order_timeout"`
	QueueSize       int      `toml:"queue_size"`

	// MarketClose is the intraday square-off cutoff as wall-clock "HH:MM" in
	// Timezone. Empty disables the market-close exit rule.
	MarketClose string `toml:"market_close"`
	Timezone    string `toml:"timezone"`

	SnapshotPath string `toml:"snapshot_path"`

	Retry RetryConfig `toml:"retry"`
}

// RetryConfig bounds the executor's retries of failed exit orders.
type RetryConfig struct {
	MaxTries        int      `toml:"max_tries"`
	InitialInterval duration `toml:"initial_interval"`
	MaxInterval     duration `toml:"max_interval"`
}

// BrokerConfig holds broker bridge endpoints and trading mode.
type BrokerConfig struct {
	// BridgeURL is the REST root of the broker bridge service used for live
	// exit orders.
	BridgeURL string `toml:"bridge_url"`
	APIKey    string `toml:"api_key"`

	// TickWSURL is the broker tick stream; when set the engine runs its own
	// feed ingestor writing into the Redis price cache.
	TickWSURL string `toml:"tick_ws_url"`

	// PaperOnly withholds the live gateway entirely. With no live gateway
	// wired the engine rejects non-paper entries at admission, so every
	// position it manages exits through the simulated gateway.
	PaperOnly bool `toml:"paper_only"`

	// PaperSlippageBps worsens simulated fills by this many basis points.
	PaperSlippageBps float64 `toml:"paper_slippage_bps"`
}

// PostgresConfig holds PostgreSQL connection parameters for the exit log and
// snapshot mirror. Disabled when Host and DSN are both empty.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price cache and
// event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for snapshot
// archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MonitorInterval: duration{5 * time.Second},
			FeedTimeout:     duration{3 * time.Second},
			OrderTimeout:    duration{10 * time.Second},
			QueueSize:       1024,
			MarketClose:     "15:20",
			Timezone:        "Asia/Kolkata",
			SnapshotPath:    "data/positions_snapshot.json",
			Retry: RetryConfig{
				MaxTries:        3,
				InitialInterval: duration{500 * time.Millisecond},
				MaxInterval:     duration{5 * time.Second},
			},
		},
		Broker: BrokerConfig{
			PaperOnly:        true,
			PaperSlippageBps: 2,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "autotrade",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "autotrade-snapshots",
			Prefix:         "",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"exit_executed", "exit_failed"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.MonitorInterval.Duration <= 0 {
		errs = append(errs, "engine: monitor_interval must be > 0")
	}
	if c.Engine.FeedTimeout.Duration <= 0 {
		errs = append(errs, "engine: feed_timeout must be > 0")
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, "engine: queue_size must be >= 1")
	}
	if c.Engine.SnapshotPath == "" {
		errs = append(errs, "engine: snapshot_path must not be empty")
	}
	if c.Engine.MarketClose != "" {
		if _, err := time.Parse("15:04", c.Engine.MarketClose); err != nil {
			errs = append(errs, fmt.Sprintf("engine: market_close %q is not HH:MM", c.Engine.MarketClose))
		}
		if c.Engine.Timezone != "" {
			if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
				errs = append(errs, fmt.Sprintf("engine: unknown timezone %q", c.Engine.Timezone))
			}
		}
	}
	if c.Engine.Retry.MaxTries < 1 {
		errs = append(errs, "engine: retry.max_tries must be >= 1")
	}

	// Broker: live trading needs the bridge; paper-only runs do not.
	if !c.Broker.PaperOnly && c.Broker.BridgeURL == "" {
		errs = append(errs, "broker: bridge_url is required unless paper_only is set")
	}
	if c.Broker.PaperSlippageBps < 0 {
		errs = append(errs, "broker: paper_slippage_bps must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
