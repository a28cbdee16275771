package eventlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dongi/internal/config"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = 200 * time.Millisecond
)

// RedisLocker shares event locks between replicas. A holder that dies keeps
// the event until the TTL expires.
type RedisLocker struct {
	client  redis.UniversalClient
	script  *redis.Script
	prefix  string
	cfg     timings
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, prefix string, cfg *config.ChargesConfigHolder, m *metrics.Metrics, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client:  client,
		script:  redis.NewScript(lockReleaseScript),
		prefix:  prefix,
		cfg:     cfg,
		metrics: m,
		log:     log.Named("eventlock.redis"),
	}
}

func (l *RedisLocker) Backend() string { return config.LockBackendRedis }

func (l *RedisLocker) Acquire(ctx context.Context, eventID string) (Release, error) {
	if l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, errors.New("lock key is empty")
	}
	ttl := ttlFor(l.cfg)
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	start := time.Now()
	deadline := start.Add(waitFor(l.cfg))
	key := l.prefix + eventID
	token := uuid.NewString()
	delay := minRetryDelay

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			l.metrics.ObserveLockWait(l.Backend(), false, time.Since(start))
			return nil, err
		}
		if ok {
			l.metrics.ObserveLockWait(l.Backend(), true, time.Since(start))
			return l.releaser(key, token), nil
		}

		if !time.Now().Add(delay).Before(deadline) {
			l.metrics.ObserveLockWait(l.Backend(), false, time.Since(start))
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			l.metrics.ObserveLockWait(l.Backend(), false, time.Since(start))
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (l *RedisLocker) releaser(key, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be gone
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Warn("release event lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}
}
