package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/database"
	"github.com/aristath/etfscope/internal/pricecache"
)

// InitializeStorage opens the configured price cache backend
func InitializeStorage(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Cache.Backend {
	case config.CacheFile:
		store := pricecache.NewFileStore(cfg.Cache.Dir)
		container.PriceCache = store
		container.CacheLister = store

	case config.CacheSQLite:
		// cache.db - re-downloadable price history, tuned for speed
		cacheDB, err := database.New(database.Config{
			Path:    filepath.Join(cfg.Cache.Dir, "cache.db"),
			Profile: database.ProfileCache,
			Name:    "cache",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize cache database: %w", err)
		}
		if err := cacheDB.Migrate(); err != nil {
			cacheDB.Close()
			return fmt.Errorf("failed to migrate cache database: %w", err)
		}
		store := pricecache.NewSQLiteStore(cacheDB.Conn())
		container.CacheDB = cacheDB
		container.PriceCache = store
		container.CacheLister = store

	case config.CacheS3:
		store, err := pricecache.NewS3Store(ctx, pricecache.S3Config{
			Bucket:    cfg.Cache.S3.Bucket,
			Prefix:    cfg.Cache.S3.Prefix,
			Endpoint:  cfg.Cache.S3.Endpoint,
			Region:    cfg.Cache.S3.Region,
			AccessKey: cfg.Cache.S3.AccessKey,
			SecretKey: cfg.Cache.S3.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize s3 cache: %w", err)
		}
		container.PriceCache = store
		container.CacheLister = store

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	log.Info().Str("backend", cfg.Cache.Backend).Msg("Price cache initialized")
	return nil
}
