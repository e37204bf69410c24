package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/cache"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/config"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/credits"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/localize"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/localpipeline"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/orchestrator"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/pages"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/remotejob"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/storage"
)

// cacheBackend is satisfied by both the memory and the Redis cache.
type cacheBackend interface {
	cache.Client
	cache.Locker
}

// services holds everything a command may need. Fields unused by a
// command are still built so every command sees the same configuration.
type services struct {
	cfg          *config.Config
	logger       *observability.Logger
	cache        cacheBackend
	db           *sql.DB
	store        *storage.Store
	guard        *credits.Guard // nil without an API key
	orchestrator *orchestrator.Orchestrator
}

// loadConfig loads the config file named by --config, or defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

// cliLogger writes human-readable logs to stderr so stdout stays clean.
func cliLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}

func newCache(cfg *config.Config) (cacheBackend, error) {
	switch cfg.Cache.Driver {
	case "redis":
		c, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, domain.ConfigError("connect redis", err)
		}
		return c, nil
	default:
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}
}

func openCatalog(ctx context.Context, cfg *config.Config) (*sql.DB, *storage.Catalog, error) {
	dbCfg := cfg.Storage.Database
	if dbCfg.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dbCfg.SQLite.Path), 0o755); err != nil {
			return nil, nil, domain.IOError("create catalog directory", err)
		}
	}

	db, dialect, err := storage.OpenDB(dbCfg.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, nil, err
	}
	switch dbCfg.Driver {
	case "sqlite":
		if dbCfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(dbCfg.SQLite.MaxOpenConns)
		}
	case "postgres":
		db.SetMaxOpenConns(dbCfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(dbCfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(dbCfg.Postgres.ConnMaxLifetime)
	}

	catalog := storage.NewCatalog(db, dialect)
	if err := catalog.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, catalog, nil
}

// buildServices wires storage, backends and the orchestrator from cfg.
func buildServices(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*services, error) {
	svc := &services{cfg: cfg, logger: logger}

	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	svc.cache = c

	db, catalog, err := openCatalog(ctx, cfg)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.db = db

	blobs, err := storage.NewFSBlobs(cfg.Storage.RootDir)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.store = storage.NewStore(catalog, blobs, logger)

	pdf := pages.NewPDF()
	backends := map[domain.Backend]orchestrator.Extractor{}

	if cfg.Remote.APIKey != "" {
		client := remotejob.NewClient(remotejob.Config{
			TriggerURL:     cfg.Remote.TriggerURL,
			ResultURL:      cfg.Remote.ResultURL,
			UsageURL:       cfg.Remote.UsageURL,
			PollInterval:   cfg.Remote.PollInterval,
			RequestTimeout: cfg.Remote.RequestTimeout,
		}, remotejob.WithLogger(logger))
		svc.guard = credits.NewGuard(client, cfg.Remote.APIKey, logger)
		backends[domain.BackendRemoteJob] = remotejob.NewExtractor(pdf, svc.guard, client, cfg.Remote.APIKey, cfg.Remote.MinCredits)
	} else {
		logger.Debug().Msg("no remote API key configured, remote_job backend disabled")
	}

	if cfg.Local.DetectorURL != "" && cfg.Local.ExtractorURL != "" {
		hc := &http.Client{Timeout: cfg.Local.Timeout}
		backends[domain.BackendLocalPipeline] = localpipeline.NewAdapter(
			pdf,
			localpipeline.NewFitzDetector(cfg.Local.DetectorURL, cfg.Local.RenderDPI, cfg.Local.PaddingFactor, hc),
			localpipeline.NewHTTPCellExtractor(cfg.Local.ExtractorURL, hc),
			logger,
		)
	}

	localizer := localize.NewCached(
		localize.NewHTTPLocalizer(cfg.Localizer.URL, cfg.Localizer.Timeout),
		svc.cache, cfg.Localizer.CacheTTL, logger,
	)

	orc, err := orchestrator.New(orchestrator.Deps{
		Store:     svc.store,
		Localizer: localizer,
		Pages:     pdf,
		Locker:    svc.cache,
		Backends:  backends,
		Logger:    logger,
	}, orchestrator.Config{LockTTL: cfg.Cache.LockTTL})
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.orchestrator = orc

	return svc, nil
}

// Close releases the database and cache connections.
func (s *services) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	return errors.Join(errs...)
}

// withServices loads config, wires services and runs fn.
func withServices(ctx context.Context, fn func(*services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer svc.Close()
	return fn(svc)
}
