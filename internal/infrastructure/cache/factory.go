package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/infrastructure/config"
)

// NewIdempotencyStore creates the idempotency store for the deployment. It
// tries Redis first and falls back to the in-memory store when Redis is
// unreachable, unless requireRedis is set.
func NewIdempotencyStore(cfg *config.RedisConfig, requireRedis bool, logger *zap.Logger) (shared.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(cfg.Addr(), cfg.Password, cfg.DB)
	if err == nil {
		logger.Info("using Redis idempotency store", zap.String("addr", cfg.Addr()))
		return store, nil
	}

	if requireRedis {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"Webhook replays delivered to another instance will not be deduplicated.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
