package userlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisConfig configures a Redis lock.
type RedisConfig struct {
	// KeyPrefix namespaces the lock keys.
	KeyPrefix string
	// TTL bounds how long a crashed holder can block a user.
	TTL time.Duration
	// RetryInterval is the polling interval while the lock is held elsewhere.
	RetryInterval time.Duration
}

// DefaultRedisConfig returns the standard lock settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:     "nudge:lock:",
		TTL:           30 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// Redis is a per-user lock shared by every instance talking to the same Redis. Ownership is a
// random token; release only deletes the key when the token still matches.
type Redis struct {
	client redis.Cmdable
	cfg    RedisConfig
}

// NewRedis returns a Redis locker.
func NewRedis(client redis.Cmdable, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &Redis{client: client, cfg: cfg}, nil
}

// Lock polls until the lock is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, userID string) (func(), error) {
	key := r.cfg.KeyPrefix + userID
	token := uuid.NewString()

	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire user lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// The turn's ctx may already be cancelled; release must still go through.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := r.client.Eval(relCtx, releaseScript, []string{key}, token).Err(); err != nil {
			slog.Warn("failed to release user lock", "user_id", userID, "error", err.Error())
		}
	}, nil
}
