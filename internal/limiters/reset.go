// Package limiters holds the optional fixed-window throttle for the reset
// flow. The original system accepts unbounded wrong-answer retries, so the
// throttle only covers begin-reset and ships disabled.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("reset rate limited")
	ErrRedisUnavailable = errors.New("limiter redis unavailable")
)

type ResetConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	Prefix      string
}

type ResetLimiter struct {
	redis  redis.UniversalClient
	config ResetConfig
}

func NewResetLimiter(redisClient redis.UniversalClient, cfg ResetConfig) *ResetLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "grl"
	}
	return &ResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckBegin enforces the per-username and per-IP windows for one
// begin-reset call. Disabled limiters always pass.
func (l *ResetLimiter) CheckBegin(ctx context.Context, username, ip string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	if username != "" {
		if err := l.enforceFixedWindow(ctx, l.config.Prefix+":u:"+username); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := l.enforceFixedWindow(ctx, l.config.Prefix+":ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *ResetLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}

	return nil
}
