package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
)

var openGorm = gorm.Open

// Open builds the backend selected by STORE_BACKEND. The returned close
// function releases connections.
func Open(ctx context.Context, cfg config.Config) (KV, func() error, error) {
	switch cfg.StoreBackend {
	case "", "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisKV(client), client.Close, nil
	case "postgres", "sqlite":
		var dialector gorm.Dialector
		if cfg.StoreBackend == "postgres" {
			dialector = postgres.Open(cfg.DatabaseURL)
		} else {
			dialector = sqlite.Open(cfg.DatabaseURL)
		}
		db, err := openGorm(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
		}
		closeFn := func() error { return closeGorm(db) }
		kv := NewGormKV(db, cfg.StoreBackend)
		if err := kv.Migrate(ctx); err != nil {
			_ = closeFn()
			return nil, nil, fmt.Errorf("migrate %s store: %w", cfg.StoreBackend, err)
		}
		return kv, closeFn, nil
	case "memory":
		return NewMemoryKV(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
