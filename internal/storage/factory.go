package storage

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/config"
	"github.com/tinytelemetry/chouette/internal/logging"
)

// KindRedis is the only storage kind currently known.
const KindRedis = "redis"

// Get builds a storage of the given kind and probes it once.
// It returns nil for unknown kinds and when the probe fails; callers treat
// nil as "telemetry disabled". There is no retry: call Get again to retry.
func Get(ctx context.Context, kind string, cfg config.Config, logger *zap.Logger) *RedisStorage {
	logger = logging.OrDefault(logger)

	if !strings.EqualFold(strings.TrimSpace(kind), KindRedis) {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DB:          cfg.RedisDB,
		Password:    cfg.RedisPassword,
		DialTimeout: cfg.DialTimeout,
		PoolSize:    cfg.Workers,
	})
	s := NewRedisStorage(client, logger)

	probeCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := s.Ping(probeCtx); err != nil {
		logger.Warn("Redis is unreachable, telemetry will be dropped",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		_ = s.Close()
		return nil
	}
	return s
}
