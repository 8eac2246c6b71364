package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/binaryoptions/internal/blob/s3"
	"github.com/alanyoungcy/binaryoptions/internal/cache/redis"
	"github.com/alanyoungcy/binaryoptions/internal/config"
	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/events"
	"github.com/alanyoungcy/binaryoptions/internal/events/kafka"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/notify"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/server/ws"
	"github.com/alanyoungcy/binaryoptions/internal/service"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
	"github.com/alanyoungcy/binaryoptions/internal/store/postgres"
	"github.com/alanyoungcy/binaryoptions/internal/store/sqlite"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	ProgramID solana.PublicKey

	// Storage
	Accounts domain.AccountStore
	Audit    domain.AuditStore

	// Redis-backed, nil when redis is disabled
	Cache       domain.AccountCache
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   *redis.SignalBus

	// Event sinks
	Events   *events.Fanout
	Notifier *notify.Notifier
	Hub      *ws.Hub

	// Archive, nil unless enabled
	Archiver domain.Archiver

	Registry *prometheus.Registry
	Ledger   *ledger.Ledger
	Markets  *service.MarketService

	// Admin is nil when no admin key is configured.
	Admin *crypto.Signer

	// Health lists the connectivity checks exposed on /api/health.
	Health map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		ProgramID: program.DefaultProgramID,
		Health:    make(map[string]handler.HealthCheck),
	}
	if cfg.Ledger.ProgramID != "" {
		id, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
		if err != nil {
			return fail(fmt.Errorf("wire: program id: %w", err))
		}
		deps.ProgramID = id
	}

	// --- Account store ---
	switch cfg.Ledger.Store {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			ConnString: cfg.Postgres.ConnString(),
			MaxConns:   cfg.Postgres.PoolMaxConns,
			MinConns:   cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Accounts = pgClient.Accounts()
		deps.Audit = pgClient.Audit()
		deps.Health["postgres"] = pgClient.Ping
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Accounts = db.Accounts()
		deps.Audit = db.Audit()
	default:
		deps.Accounts = memory.NewAccountStore()
		logger.Warn("using the in-memory account store; state is lost on exit")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewAccountCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Ledger.DistributedLocks {
			deps.Locks = redis.NewLockManager(redisClient)
		}
		deps.Health["redis"] = redisClient.Ping
	}

	// --- Event sinks ---
	deps.Events = events.NewFanout(logger)

	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Events.Add("kafka", pub)
	}

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
	if len(senders) > 0 {
		deps.Events.Add("notify", deps.Notifier)
	}

	// With redis every host's hub reads the shared bus; otherwise the hub
	// only sees local commits.
	if deps.SignalBus != nil {
		deps.Events.Add("redis", deps.SignalBus)
		deps.Hub = ws.NewHub(deps.SignalBus.SubscribeEvents, logger)
	} else {
		deps.Hub = ws.NewHub(nil, logger)
		deps.Events.Add("ws", deps.Hub)
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled || cfg.Mode == "archive" {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		bucket := s3blob.NewBucket(s3Client)
		deps.Archiver = s3blob.NewArchiver(bucket, bucket, deps.Audit, cfg.Archive.Prefix)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- Ledger ---
	l := ledger.New(deps.Accounts, ledger.Options{
		RecentHashWindow: cfg.Ledger.RecentHashWindow,
		MaxCommitRetries: cfg.Ledger.MaxCommitRetries,
		LockTTL:          cfg.Ledger.LockTTL.Duration,
		LockWait:         cfg.Ledger.LockWait.Duration,
		Locks:            deps.Locks,
		Publisher:        deps.Events,
		Cache:            deps.Cache,
		Audit:            deps.Audit,
		Metrics:          ledger.NewMetrics(deps.Registry),
	}, logger)
	l.Register(token.NewProgram())
	prog, err := program.NewProgram(deps.ProgramID)
	if err != nil {
		return fail(fmt.Errorf("wire: options program: %w", err))
	}
	l.Register(prog)
	deps.Ledger = l

	deps.Markets, err = service.NewMarketService(deps.Accounts, deps.Cache, deps.ProgramID, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: market service: %w", err))
	}

	// --- Admin key ---
	if cfg.Admin.HasKey() {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Admin.PrivateKey,
			EncryptedKeyPath: cfg.Admin.EncryptedKeyPath,
			KeyPassword:      cfg.Admin.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: admin key: %w", err))
		}
		deps.Admin = crypto.NewSigner(key)
		logger.Info("admin key loaded", slog.String("admin", deps.Admin.PublicKey().String()))
	}

	return deps, cleanup, nil
}
