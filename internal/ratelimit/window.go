package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// fixedWindow counts hits per key in windows aligned to multiples of the window length.
type fixedWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func (w *fixedWindow) hit(ctx context.Context, key string) (*Result, error) {
	now := w.now()
	bucket, reset := windowKey(key, now, w.window)

	var count *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, bucket)
		pipe.Expire(ctx, bucket, w.window+time.Second)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evaluate(count.Val(), w.limit, reset), nil
}

// windowKey returns the counter key for the window containing now and the time left in it.
func windowKey(key string, now time.Time, window time.Duration) (string, time.Duration) {
	start := now.Truncate(window)
	return fmt.Sprintf("%s:%d", key, start.Unix()), start.Add(window).Sub(now)
}

func evaluate(count int64, limit int, reset time.Duration) *Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := &Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
	}
	if !res.Allowed {
		res.RetryAfter = reset
	}
	return res
}
