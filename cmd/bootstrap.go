package cmd

import (
	"context"
	"fmt"

	"directory-sync/core/config"
	"directory-sync/core/database"
	"directory-sync/core/kvstore"
	"directory-sync/core/logger"
	"directory-sync/core/reconcile"
	"directory-sync/core/storage"
	"directory-sync/feature/directory"
	"directory-sync/feature/sync"
	"directory-sync/feature/users"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store backends for persisted configuration and cache.
const (
	StoreBackendDatabase = "database"
	StoreBackendStorage  = "storage"
)

// runtime is the wired application shared by every command.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	client  storage.Client
	repo    *users.Repository
	engine  *reconcile.Engine
	service *sync.Service
}

// load reads the configuration and builds the logger, then bootstraps the runtime.
func load(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return bootstrap(ctx, cfg, logg)
}

// bootstrap connects the database and object storage and builds the engine.
// The engine is initialized before returning.
func bootstrap(ctx context.Context, cfg *config.Config, logg *zap.Logger) (*runtime, error) {
	engineCfg, err := cfg.Sync.Config()
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection required: %w", err)
	}

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
		return nil, err
	}

	repo := users.NewRepository(db, logger.Component(logg, "users"))
	if err := repo.Prepare(ctx); err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg, db, client)
	if err != nil {
		return nil, err
	}

	dir := directory.New(client, cfg.Storage.Bucket, cfg.Directory, engineCfg.DirectoryKeyFields, logger.Component(logg, "directory"))

	engine, err := reconcile.New(engineCfg, reconcile.Dependencies{
		Directory: dir,
		Mirror:    repo,
		Store:     store,
		Logger:    logger.Component(logg, "sync"),
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	service := sync.NewService(engine, client, sync.ArchiveOptions{
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.AuditPrefix,
		Retention: cfg.Storage.AuditRetention,
	}, logg)

	return &runtime{
		cfg:     cfg,
		logger:  logg,
		db:      db,
		client:  client,
		repo:    repo,
		engine:  engine,
		service: service,
	}, nil
}

// newStore selects the key-value store holding configuration and cache.
func newStore(ctx context.Context, cfg *config.Config, db *gorm.DB, client storage.Client) (reconcile.Store, error) {
	switch cfg.Sync.StoreBackend {
	case StoreBackendDatabase, "":
		store := kvstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case StoreBackendStorage:
		return storage.NewKV(client, cfg.Storage.Bucket, cfg.Storage.StatePrefix), nil
	default:
		return nil, &reconcile.ConfigurationError{Field: "store_backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Sync.StoreBackend)}
	}
}

// close stops the engine, persisting its state, and closes the database.
func (r *runtime) close(ctx context.Context) error {
	r.engine.Cleanup(ctx)

	var errs error
	if sqlDB, err := r.db.DB(); err == nil {
		errs = multierr.Append(errs, sqlDB.Close())
	} else {
		errs = multierr.Append(errs, err)
	}
	_ = r.logger.Sync()
	return errs
}
