package database

import (
	"context"
	"fmt"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var lockContentionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "novel_fork_lock_contention_total",
		Help: "Number of lock acquisitions rejected because the key was held.",
	},
	[]string{"backend"},
)

var _ interfaces.ForkLocker = (*redisForkLocker)(nil)

// Снимаем блокировку, только если она всё ещё наша.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// redisForkLocker - распределённая блокировка на SET NX PX с токеном владельца.
// TTL ограничивает время жизни блокировки, если процесс упал, не освободив её.
type redisForkLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisForkLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.ForkLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisForkLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond, logger: logger.Named("RedisForkLocker")}
}

func lockKey(key string) string {
	return "lock:" + key
}

func (l *redisForkLocker) acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(key), token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Освобождаем даже если контекст запроса уже отменён.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey(key)}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

func (l *redisForkLocker) TryLock(ctx context.Context, key string) (func(), error) {
	release, ok, err := l.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		lockContentionTotal.WithLabelValues("redis").Inc()
		return nil, models.ErrForkBusy
	}
	return release, nil
}

func (l *redisForkLocker) Lock(ctx context.Context, key string, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		release, ok, err := l.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		if time.Now().After(deadline) {
			lockContentionTotal.WithLabelValues("redis").Inc()
			return nil, models.ErrStoryBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
