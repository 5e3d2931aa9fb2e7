package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/poolbet/internal/blob/s3"
	"github.com/alanyoungcy/poolbet/internal/cache/redis"
	"github.com/alanyoungcy/poolbet/internal/config"
	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/indexer"
	"github.com/alanyoungcy/poolbet/internal/ledger"
	"github.com/alanyoungcy/poolbet/internal/oracle"
	"github.com/alanyoungcy/poolbet/internal/registry"
	"github.com/alanyoungcy/poolbet/internal/store/postgres"
	"github.com/alanyoungcy/poolbet/internal/swap"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PoolStore  domain.PoolStore
	OrderStore domain.OrderStore
	FillStore  domain.FillStore
	ClaimStore domain.ClaimStore
	EventStore domain.EventStore

	// Caches
	PriceCache  domain.PriceCache
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Engine
	Ledger   domain.Ledger
	Oracles  *oracle.Factory
	Swapper  domain.Swapper
	Indexer  *indexer.Indexer
	Registry *registry.Registry
}

// needsS3 returns true when the configuration requires object storage: the
// archival sweep is the only S3 consumer.
func needsS3(cfg *config.Config) bool {
	return cfg.Indexer.ArchiveEnabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (event and state mirror) ---
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
	deps.PoolStore = postgres.NewPoolStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.ClaimStore = postgres.NewClaimStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.BookCache = redis.NewBookCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (archival only) ---
	if needsS3(cfg) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.FillStore, deps.EventStore)
	}

	// --- Engine collaborators ---
	deps.Ledger = ledger.New()
	deps.Oracles = oracle.NewFactory(deps.Ledger)
	if cfg.Engine.SwapEnabled {
		deps.Swapper = swap.New(deps.Ledger)
	} else {
		deps.Swapper = swap.NewDisabled(deps.Ledger)
	}

	// The indexer is the registry's event sink; it reads live pool state back
	// through the registry, so the source is bound after both exist.
	deps.Indexer = indexer.New(indexer.Config{
		Stores: indexer.Stores{
			Pools:  deps.PoolStore,
			Orders: deps.OrderStore,
			Fills:  deps.FillStore,
			Claims: deps.ClaimStore,
			Events: deps.EventStore,
		},
		Prices:    deps.PriceCache,
		Books:     deps.BookCache,
		Bus:       deps.SignalBus,
		Logger:    logger,
		QueueSize: cfg.Indexer.QueueSize,
	})

	deps.Registry = registry.New(registry.Config{
		Ledger:   deps.Ledger,
		Oracles:  deps.Oracles,
		Swapper:  deps.Swapper,
		Sink:     deps.Indexer,
		Treasury: common.HexToAddress(cfg.Engine.Treasury),
		Now:      func() time.Time { return time.Now().UTC() },
	})
	deps.Indexer.BindSource(deps.Registry)

	return deps, cleanup, nil
}
