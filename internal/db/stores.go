package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"auth-api/internal/config"
	"auth-api/internal/repository"
	"auth-api/internal/repository/memory"
)

// OpenStores abre los repositorios segun STORE_DRIVER. close libera el pool cuando aplica.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Stores, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		apps, err := cfg.SeedAppRegistrations()
		if err != nil {
			return repository.Stores{}, nil, err
		}
		if len(apps) == 0 {
			logger.Warn("memory store without SEED_APPS, every origin will be rejected")
		}
		return memory.NewStore(apps...).Stores(), func() {}, nil
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return repository.Stores{}, nil, fmt.Errorf("db connect: %w", err)
	}
	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return repository.Stores{}, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return repository.Stores{}, nil, fmt.Errorf("db migrate: %w", err)
	}
	return repository.NewPgStores(pool), pool.Close, nil
}
