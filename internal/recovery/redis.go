package recovery

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

const scanBatch = 100

// RedisConfig holds connection settings for the cache clearing adapter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheClearAdapter drops a service's cache entries from Redis. Keys are
// namespaced by service, so the scan pattern is "<service>:*".
type CacheClearAdapter struct {
	logger *zap.Logger
	client redis.UniversalClient
}

// NewCacheClearAdapter creates the adapter with its own Redis connection
func NewCacheClearAdapter(logger *zap.Logger, cfg RedisConfig) *CacheClearAdapter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &CacheClearAdapter{
		logger: logger.Named("cache"),
		client: client,
	}
}

// Action implements RemediationAdapter.Action.
func (a *CacheClearAdapter) Action() model.RecoveryAction {
	return model.ActionClearCache
}

// Execute implements RemediationAdapter.Execute.
func (a *CacheClearAdapter) Execute(ctx context.Context, service string, _ model.RecoveryAction) (map[string]interface{}, error) {
	pattern := service + ":*"

	var deleted int64
	keys := make([]string, 0, scanBatch)
	iter := a.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			n, err := a.client.Del(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += n
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) > 0 {
		n, err := a.client.Del(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to delete cache keys: %w", err)
		}
		deleted += n
	}

	a.logger.Info("Cache cleared",
		zap.String("service", service),
		zap.Int64("keys_deleted", deleted))

	return map[string]interface{}{
		"pattern":      pattern,
		"keys_deleted": deleted,
	}, nil
}

// Close releases the Redis connection
func (a *CacheClearAdapter) Close() error {
	return a.client.Close()
}
