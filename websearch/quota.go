package websearch

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/higress-group/newsrag/common/logger"
)

// kv is the part of *redis.Client used by the cache and the quota.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

const quotaKeyPrefix = "newsrag:websearch:quota:"

// Quota is a per-day call counter. Redis holds the shared count; when it is
// absent or failing, an in-process counter is used instead.
type Quota struct {
	limit int
	rdb   kv
	loc   *time.Location
	now   func() time.Time

	mu    sync.Mutex
	day   string
	local int
}

func NewQuota(limit int, rdb kv, loc *time.Location) *Quota {
	if loc == nil {
		loc = time.UTC
	}
	return &Quota{limit: limit, rdb: rdb, loc: loc, now: time.Now}
}

// Take consumes one call and returns ErrQuotaExceeded past the limit.
// A limit of zero disables the check.
func (q *Quota) Take(ctx context.Context) error {
	if q == nil || q.limit <= 0 {
		return nil
	}
	day := q.now().In(q.loc).Format("20060102")
	if q.rdb != nil {
		key := quotaKeyPrefix + day
		n, err := q.rdb.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				q.rdb.Expire(ctx, key, 48*time.Hour)
			}
			if n > int64(q.limit) {
				return ErrQuotaExceeded
			}
			return nil
		}
		logger.Warnf("quota counter unavailable, using local count, err: %v", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.day != day {
		q.day, q.local = day, 0
	}
	q.local++
	if q.local > q.limit {
		return ErrQuotaExceeded
	}
	return nil
}
