package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/awsshrinath/autotrade/internal/blob/s3"
	"github.com/awsshrinath/autotrade/internal/cache/redis"
	"github.com/awsshrinath/autotrade/internal/config"
	"github.com/awsshrinath/autotrade/internal/domain"
	"github.com/awsshrinath/autotrade/internal/engine"
	"github.com/awsshrinath/autotrade/internal/feed"
	"github.com/awsshrinath/autotrade/internal/gateway"
	"github.com/awsshrinath/autotrade/internal/notify"
	"github.com/awsshrinath/autotrade/internal/store/file"
	"github.com/awsshrinath/autotrade/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the engine and the API
// server need. Optional backends (Postgres, Redis, S3, live gateway) stay nil
// when unconfigured; the engine degrades gracefully around them.
type Dependencies struct {
	Feed      domain.PriceFeed
	PriceSink feed.PriceSink

	PaperGateway domain.OrderGateway
	LiveGateway  domain.OrderGateway

	Snapshots domain.SnapshotStore
	Archiver  domain.SnapshotArchiver
	ExitLog   domain.ExitLogStore
	Bus       domain.EventBus

	Notifier *notify.Notifier

	// Clients kept for health checks.
	RedisClient *redis.Client
	PgPing      func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Snapshots: local disk is the recovery source of truth ---
	snapStore, err := file.NewSnapshotStore(cfg.Engine.SnapshotPath)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: snapshot store: %w", err)
	}
	deps.Snapshots = snapStore

	// --- PostgreSQL: durable exit history plus a snapshot mirror ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ExitLog = postgres.NewExitLogStore(pool)
		deps.Snapshots = newMirroredSnapshotStore(snapStore, postgres.NewSnapshotStore(pool), logger)
		deps.PgPing = pool.Ping
	}

	// --- Redis: shared price cache and outbound event bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.Connect(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		ltp := redis.NewLTPCache(redisClient)
		deps.Feed = ltp
		deps.PriceSink = ltp
		deps.Bus = redis.NewEventBus(redisClient)
		deps.RedisClient = redisClient
	} else {
		mem := feed.NewMemoryFeed()
		deps.Feed = mem
		deps.PriceSink = mem
	}

	// --- S3: off-host snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Broker gateways ---
	deps.PaperGateway = gateway.NewPaperGateway(cfg.Broker.PaperSlippageBps, logger)
	if !cfg.Broker.PaperOnly && cfg.Broker.BridgeURL != "" {
		deps.LiveGateway = gateway.NewBridgeGateway(cfg.Broker.BridgeURL, cfg.Broker.APIKey)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// EngineOptions maps the engine section of the configuration onto engine
// options.
func EngineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		MonitorInterval: cfg.Engine.MonitorInterval.Duration,
		FeedTimeout:     cfg.Engine.FeedTimeout.Duration,
		OrderTimeout:    cfg.Engine.OrderTimeout.Duration,
		QueueSize:       cfg.Engine.QueueSize,
		MarketClose:     cfg.Engine.MarketClose,
		Timezone:        cfg.Engine.Timezone,
		Retry: engine.RetryPolicy{
			MaxTries:        uint(cfg.Engine.Retry.MaxTries),
			InitialInterval: cfg.Engine.Retry.InitialInterval.Duration,
			MaxInterval:     cfg.Engine.Retry.MaxInterval.Duration,
		},
	}
}

// mirroredSnapshotStore saves to disk first and mirrors to Postgres
// best-effort. Loads prefer disk and fall back to the mirror, so recovery
// survives the loss of either backend.
type mirroredSnapshotStore struct {
	primary domain.SnapshotStore
	mirror  domain.SnapshotStore
	logger  *slog.Logger
}

func newMirroredSnapshotStore(primary, mirror domain.SnapshotStore, logger *slog.Logger) *mirroredSnapshotStore {
	return &mirroredSnapshotStore{
		primary: primary,
		mirror:  mirror,
		logger:  logger.With(slog.String("component", "snapshot_mirror")),
	}
}

func (s *mirroredSnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := s.primary.Save(ctx, snap); err != nil {
		return err
	}
	if err := s.mirror.Save(ctx, snap); err != nil {
		s.logger.Warn("snapshot mirror write failed", slog.String("error", err.Error()))
	}
	return nil
}

func (s *mirroredSnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.primary.Load(ctx)
	if err == nil {
		return snap, nil
	}
	s.logger.Warn("primary snapshot load failed, trying mirror", slog.String("error", err.Error()))
	return s.mirror.Load(ctx)
}

var _ domain.SnapshotStore = (*mirroredSnapshotStore)(nil)
