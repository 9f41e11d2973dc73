package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUTOTRADE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUTOTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.MonitorInterval, "AUTOTRADE_ENGINE_MONITOR_INTERVAL")
	setDuration(&cfg.Engine.FeedTimeout, "AUTOTRADE_ENGINE_FEED_TIMEOUT")
	setDuration(&cfg.Engine.OrderTimeout, "AUTOTRADE_ENGINE_ORDER_TIMEOUT")
	setInt(&cfg.Engine.QueueSize, "AUTOTRADE_ENGINE_QUEUE_SIZE")
	setStr(&cfg.Engine.MarketClose, "AUTOTRADE_ENGINE_MARKET_CLOSE")
	setStr(&cfg.Engine.Timezone, "AUTOTRADE_ENGINE_TIMEZONE")
	setStr(&cfg.Engine.SnapshotPath, "AUTOTRADE_ENGINE_SNAPSHOT_PATH")
	setInt(&cfg.Engine.Retry.MaxTries, "AUTOTRADE_ENGINE_RETRY_MAX_TRIES")
	setDuration(&cfg.Engine.Retry.InitialInterval, "AUTOTRADE_ENGINE_RETRY_INITIAL_INTERVAL")
	setDuration(&cfg.Engine.Retry.MaxInterval, "AUTOTRADE_ENGINE_RETRY_MAX_INTERVAL")

	// ── Broker ──
	setStr(&cfg.Broker.BridgeURL, "AUTOTRADE_BROKER_BRIDGE_URL")
	setStr(&cfg.Broker.APIKey, "AUTOTRADE_BROKER_API_KEY")
	setStr(&cfg.Broker.TickWSURL, "AUTOTRADE_BROKER_TICK_WS_URL")
	setBool(&cfg.Broker.PaperOnly, "AUTOTRADE_BROKER_PAPER_ONLY")
	setFloat64(&cfg.Broker.PaperSlippageBps, "AUTOTRADE_BROKER_PAPER_SLIPPAGE_BPS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AUTOTRADE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AUTOTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUTOTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUTOTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUTOTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUTOTRADE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUTOTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUTOTRADE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUTOTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUTOTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUTOTRADE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AUTOTRADE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUTOTRADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUTOTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUTOTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUTOTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUTOTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUTOTRADE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUTOTRADE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUTOTRADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUTOTRADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUTOTRADE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "AUTOTRADE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "AUTOTRADE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUTOTRADE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUTOTRADE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUTOTRADE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUTOTRADE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUTOTRADE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUTOTRADE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUTOTRADE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUTOTRADE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUTOTRADE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUTOTRADE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "AUTOTRADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
