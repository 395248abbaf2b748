// Package limiters provides Redis-backed fixed-window rate limiting for the
// security-sensitive flows: login, MFA verification, and refresh. Counters
// use INCR with a conditional EXPIRE on first hit. When the engine runs
// without Redis the limiters are inert.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a counter exceeds its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps Redis transport failures.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Config holds rate limiter tuning parameters. Zero MaxAttempts disables
// the corresponding check.
type Config struct {
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	MaxMfaAttempts     int
	MfaWindow          time.Duration
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
}

// Limiter enforces per-identifier budgets for login, MFA, and refresh.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client. A nil client
// yields a limiter whose checks always pass.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin enforces the per-username login budget.
func (l *Limiter) CheckLogin(ctx context.Context, username string) error {
	return l.check(ctx, "all:"+username, l.config.MaxLoginAttempts, l.config.LoginWindow)
}

// CheckMfa enforces the per-user MFA verification budget.
func (l *Limiter) CheckMfa(ctx context.Context, userID string) error {
	return l.check(ctx, "alm:"+userID, l.config.MaxMfaAttempts, l.config.MfaWindow)
}

// CheckRefresh enforces the per-family refresh budget.
func (l *Limiter) CheckRefresh(ctx context.Context, familyID string) error {
	return l.check(ctx, "alr:"+familyID, l.config.MaxRefreshAttempts, l.config.RefreshWindow)
}

func (l *Limiter) check(ctx context.Context, key string, max int, window time.Duration) error {
	if l == nil || l.redis == nil || max <= 0 || window <= 0 {
		return nil
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}
