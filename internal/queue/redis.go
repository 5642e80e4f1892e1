package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a list-backed queue: LPUSH to enqueue, BRPOP to dequeue. Tasks
// survive a process restart and can be shared across replicas.
type Redis struct {
	rdb  *redis.Client
	key  string
	poll time.Duration
}

// NewRedis returns a queue stored under autoapply:queue:<name>.
func NewRedis(rdb *redis.Client, name string) *Redis {
	return &Redis{rdb: rdb, key: "autoapply:queue:" + name, poll: time.Second}
}

var _ Queue = (*Redis)(nil)

func (r *Redis) Enqueue(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := r.rdb.LPush(ctx, r.key, body).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", r.key, err)
	}
	return nil
}

// Dequeue polls with a short BRPOP timeout so that cancellation is noticed
// promptly.
func (r *Redis) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.rdb.BRPop(ctx, r.poll, r.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("brpop %s: %w", r.key, err)
		}
		// res is [key, value].
		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		return &t, nil
	}
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", r.key, err)
	}
	return int(n), nil
}
