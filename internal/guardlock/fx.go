package guardlock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/jukubill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("guardlock",
	fx.Provide(NewLocker),
)

// NewLocker always serializes in process and adds the redis lock when redis is configured.
func NewLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	local := NewLocalLocker()
	if !cfg.Redis.Enabled() {
		return local
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return Chain{local, NewRedisLocker(client, log)}
}
