package guardlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
)

// RedisLocker guards a guardian across processes with SET NX and a
// token-checked release.
type RedisLocker struct {
	client    redis.UniversalClient
	script    *redis.Script
	ttl       time.Duration
	retryWait time.Duration
	log       *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, log *zap.Logger) *RedisLocker {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client:    client,
		script:    redis.NewScript(lockReleaseScript),
		ttl:       defaultLockTTL,
		retryWait: defaultRetryWait,
		log:       log.Named("guardlock"),
	}
}

// Lock retries SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, orgID, guardianID snowflake.ID) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}

	key := lockKey(orgID, guardianID)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire guardian lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.script.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release guardian lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
