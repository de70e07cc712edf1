package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/boldengine/internal/blob/s3"
	"github.com/alanyoungcy/boldengine/internal/cache/redis"
	"github.com/alanyoungcy/boldengine/internal/config"
	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/ledger/solana"
	"github.com/alanyoungcy/boldengine/internal/metrics"
	"github.com/alanyoungcy/boldengine/internal/notify"
	"github.com/alanyoungcy/boldengine/internal/server/handler"
	"github.com/alanyoungcy/boldengine/internal/store/postgres"
	"github.com/alanyoungcy/boldengine/internal/vault"
)

// Dependencies bundles everything the engine's tasks and ops server need. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional dependencies are left nil when not configured.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	BetStore    domain.BetStore
	AuditStore  domain.AuditStore
	VaultKeys   domain.VaultKeyStore

	// Ledger, only in modes that settle bets.
	Ledger domain.LedgerClient

	// Redis-backed coordination, only when redis.addr is set.
	LockManager domain.LockManager
	EventBus    domain.EventPublisher

	Notifier *notify.Notifier
	Metrics  *metrics.Recorder

	// Checks are the dependency probes reported by /api/health.
	Checks map[string]handler.Check
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

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
		AppName:  cfg.Supabase.AppName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BetStore = postgres.NewBetStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Checks["postgres"] = pgClient.Ping

	// --- Vault key store (only for modes that provision) ---
	if cfg.Provisions() {
		keys, closeKeys, check, err := openVaultStore(ctx, cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		closers = append(closers, closeKeys)
		deps.VaultKeys = keys
		if check != nil {
			deps.Checks["s3"] = check
		}
	}

	// --- Solana ledger (only for modes that settle) ---
	if cfg.Settles() {
		ledger, err := solana.New(ctx, solana.ClientConfig{
			Endpoint:   cfg.Solana.RPCEndpoint,
			Commitment: cfg.Solana.Commitment,
			Timeout:    cfg.Solana.Timeout.Duration,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		closers = append(closers, ledger.Close)
		deps.Ledger = ledger
		deps.Checks["solana"] = ledger.Health
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
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

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("provisions", cfg.Provisions()),
		slog.Bool("settles", cfg.Settles()),
		slog.Bool("redis", cfg.Redis.Enabled()),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)

	return deps, cleanup, nil
}

// OpenVaultStore opens the configured vault key store on its own, for tools
// that inspect keys without running the engine.
func OpenVaultStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*vault.Store, func(), error) {
	store, closeFn, _, err := openVaultStore(ctx, cfg, logger)
	return store, closeFn, err
}

// openVaultStore builds the key store for cfg.Vault.Backend. The returned
// check is non-nil when the backend has a remote dependency worth probing.
func openVaultStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*vault.Store, func(), handler.Check, error) {
	opts := []vault.Option{vault.WithLogger(logger)}
	if cfg.Vault.KeyPassword != "" {
		opts = append(opts, vault.WithPassword(cfg.Vault.KeyPassword))
	}

	switch cfg.Vault.Backend {
	case config.VaultBackendFile:
		return vault.NewStore(vault.NewFileBackend(cfg.Vault.Path), opts...), func() {}, nil, nil

	case config.VaultBackendS3:
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
			return nil, nil, nil, fmt.Errorf("vault: s3: %w", err)
		}
		backend := s3blob.NewKeyBackend(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.Vault.S3Key)
		closeFn := func() { _ = s3Client.Close() }
		return vault.NewStore(backend, opts...), closeFn, s3Client.Health, nil

	default:
		return nil, nil, nil, fmt.Errorf("vault: unknown backend %q", cfg.Vault.Backend)
	}
}
