package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/portal/internal/config"
)

const (
	keyPublicToken = "portal:token:ip:%s"
	keyIssueLock   = "portal:invitation:issue:%s"

	defaultIssueLockTTL = 10 * time.Second
)

// Limiter throttles public token lookups and serialises invitation issuance
// per target. A nil Limiter, or one built without redis, allows everything.
type Limiter struct {
	window *fixedWindow
	locks  *issueLocks
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	if client == nil {
		return &Limiter{}
	}

	limitCfg := cfg.RateLimit
	lockTTL := time.Duration(limitCfg.IssueLockSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = defaultIssueLockTTL
	}

	l := &Limiter{locks: newIssueLocks(client, lockTTL)}
	if limitCfg.Enabled && limitCfg.PublicTokenLimit > 0 && limitCfg.PublicTokenWindowSeconds > 0 {
		l.window = &fixedWindow{
			client: client,
			limit:  limitCfg.PublicTokenLimit,
			window: time.Duration(limitCfg.PublicTokenWindowSeconds) * time.Second,
			now:    time.Now,
		}
	}
	return l
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.window != nil
}

// LocksEnabled reports whether issuance locks are backed by redis.
func (l *Limiter) LocksEnabled() bool {
	return l != nil && l.locks != nil
}

func (l *Limiter) AllowPublicToken(ctx context.Context, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.window.hit(ctx, fmt.Sprintf(keyPublicToken, strings.TrimSpace(clientIP)))
}

// TryLockIssue returns ok=true without a lease when locks are disabled.
func (l *Limiter) TryLockIssue(ctx context.Context, targetKey string) (string, bool, error) {
	if !l.LocksEnabled() {
		return "", true, nil
	}
	return l.locks.acquire(ctx, fmt.Sprintf(keyIssueLock, targetKey))
}

func (l *Limiter) ReleaseIssue(ctx context.Context, targetKey, lease string) error {
	if !l.LocksEnabled() {
		return nil
	}
	return l.locks.release(ctx, fmt.Sprintf(keyIssueLock, targetKey), lease)
}
