package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/autoapply-service/internal/model"
)

// keyTTL keeps yesterday's counter around long enough to be inspected.
const keyTTL = 48 * time.Hour

// reserveScript grants min(want, limit-count) units and returns the grant.
var reserveScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local want = tonumber(ARGV[2])
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local grant = math.min(want, limit - cur)
if grant <= 0 then
  return 0
end
redis.call('INCRBY', KEYS[1], grant)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return grant
`)

// releaseScript decrements without going below zero.
var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = math.min(tonumber(ARGV[1]), cur)
if n <= 0 then
  return 0
end
return redis.call('DECRBY', KEYS[1], n)
`)

// Redis is a Tracker shared by every process pointing at the same Redis.
// Counters live under date-stamped keys, so a new UTC date reads as zero.
type Redis struct {
	rdb    *redis.Client
	limits Limits
	prefix string
	now    Clock
}

// NewRedis returns a Redis-backed tracker. A nil clock uses time.Now.
func NewRedis(rdb *redis.Client, limits Limits, now Clock) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{rdb: rdb, limits: limits, prefix: "quota", now: now}
}

func (r *Redis) key(portal model.Portal) string {
	return r.dayKey(portal, day(r.now()))
}

func (r *Redis) dayKey(portal model.Portal, d time.Time) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, portal, d.Format("2006-01-02"))
}

func (r *Redis) count(ctx context.Context, portal model.Portal) (int, error) {
	n, err := r.rdb.Get(ctx, r.key(portal)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get %s: %w", portal, err)
	}
	return n, nil
}

func (r *Redis) Allow(ctx context.Context, portal model.Portal) (bool, error) {
	n, err := r.count(ctx, portal)
	if err != nil {
		return false, err
	}
	return n < r.limits[portal], nil
}

func (r *Redis) Record(ctx context.Context, portal model.Portal, n int) error {
	if n <= 0 {
		return nil
	}
	key := r.key(portal)
	pipe := r.rdb.TxPipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quota record %s: %w", portal, err)
	}
	return nil
}

func (r *Redis) Reserve(ctx context.Context, portal model.Portal, want int) (Reservation, error) {
	res := Reservation{Portal: portal, Day: day(r.now())}
	if want <= 0 || r.limits[portal] <= 0 {
		return res, nil
	}
	granted, err := reserveScript.Run(ctx, r.rdb,
		[]string{r.dayKey(portal, res.Day)},
		r.limits[portal], want, int(keyTTL.Seconds()),
	).Int()
	if err != nil {
		return res, fmt.Errorf("quota reserve %s: %w", portal, err)
	}
	res.Granted = granted
	return res, nil
}

// Release decrements the counter of the reservation's date. Once that date
// has passed its counter no longer gates anything, so nothing is returned.
func (r *Redis) Release(ctx context.Context, res Reservation, n int) error {
	if n <= 0 || !day(res.Day).Equal(day(r.now())) {
		return nil
	}
	if err := releaseScript.Run(ctx, r.rdb, []string{r.dayKey(res.Portal, day(res.Day))}, n).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("quota release %s: %w", res.Portal, err)
	}
	return nil
}

func (r *Redis) Remaining(ctx context.Context, portal model.Portal) (int, error) {
	n, err := r.count(ctx, portal)
	if err != nil {
		return 0, err
	}
	return max(0, r.limits[portal]-n), nil
}
