package eventlock

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dongi/internal/config"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Charges   *config.ChargesConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

// NewLocker picks the backend named by EVENT_LOCK_BACKEND.
func NewLocker(p Params) (Locker, error) {
	if p.Config.Lock.Backend != config.LockBackendRedis {
		p.Log.Info("event lock backend", zap.String("backend", config.LockBackendLocal))
		return NewLocalLocker(p.Charges, p.Metrics), nil
	}

	addr := strings.TrimSpace(p.Config.Lock.RedisAddr)
	if addr == "" {
		return nil, errors.New("event lock redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.Lock.RedisPassword),
		DB:       p.Config.Lock.RedisDB,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	p.Log.Info("event lock backend", zap.String("backend", config.LockBackendRedis), zap.String("addr", addr))
	return NewRedisLocker(client, p.Config.Lock.KeyPrefix, p.Charges, p.Metrics, p.Log), nil
}

var Module = fx.Module("eventlock",
	fx.Provide(NewLocker),
)
