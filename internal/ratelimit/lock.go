package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// issueLocks holds short SET NX leases so only one issuance per target runs at a time.
type issueLocks struct {
	client *redis.Client
	ttl    time.Duration
}

func newIssueLocks(client *redis.Client, ttl time.Duration) *issueLocks {
	if client == nil {
		return nil
	}
	return &issueLocks{client: client, ttl: ttl}
}

// acquire returns the lease value when the lock was taken.
func (l *issueLocks) acquire(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("issue lock key is empty")
	}

	lease := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, lease, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return lease, true, nil
}

// release deletes key only while it still holds lease. An expired or
// re-acquired lock is left alone.
func (l *issueLocks) release(ctx context.Context, key, lease string) error {
	if key == "" || lease == "" {
		return nil
	}

	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != lease {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}
