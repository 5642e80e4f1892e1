package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/queue"
)

func backends(t *testing.T) map[string]queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]queue.Queue{
		"memory": queue.NewMemory(8),
		"redis":  queue.NewRedis(rdb, "test"),
	}
}

func TestQueue_FIFO(t *testing.T) {
	for name, q := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, q.Enqueue(ctx, queue.NewTask(queue.KindProcessApplication, "a1")))
			require.NoError(t, q.Enqueue(ctx, queue.NewTask(queue.KindProcessApplication, "a2")))

			n, err := q.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			first, err := q.Dequeue(ctx)
			require.NoError(t, err)
			second, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a1", first.Payload)
			assert.Equal(t, "a2", second.Payload)
			assert.Equal(t, queue.KindProcessApplication, first.Kind)
			assert.NotEmpty(t, first.ID)
		})
	}
}

func TestQueue_DequeueHonoursCancellation(t *testing.T) {
	for name, q := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := q.Dequeue(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestMemory_Closed(t *testing.T) {
	q := queue.NewMemory(1)
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), queue.NewTask(queue.KindScrapePass, "u1")), queue.ErrClosed)
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	scrape, apps := queue.NewMemory(4), queue.NewMemory(4)
	d := queue.NewDispatcher(scrape, apps)
	ctx := context.Background()

	require.NoError(t, d.EnqueueScrapePass(ctx, "u1"))
	require.NoError(t, d.EnqueueApplication(ctx, "a1"))

	s, err := scrape.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.KindScrapePass, s.Kind)
	assert.Equal(t, "u1", s.Payload)

	a, err := apps.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.KindProcessApplication, a.Kind)
	assert.Equal(t, "a1", a.Payload)
}

// ─── Pool ────────────────────────────────────────────────────────────────────

func TestPool_ProcessesEveryTaskAndSurvivesFailures(t *testing.T) {
	q := queue.NewMemory(16)
	ctx := context.Background()
	for _, id := range []string{"ok1", "fail", "panic", "ok2"} {
		require.NoError(t, q.Enqueue(ctx, queue.NewTask(queue.KindProcessApplication, id)))
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	var done sync.WaitGroup
	done.Add(4)
	handler := func(_ context.Context, task queue.Task) error {
		defer done.Done()
		mu.Lock()
		seen = append(seen, task.Payload)
		mu.Unlock()
		switch task.Payload {
		case "fail":
			return errors.New("boom")
		case "panic":
			panic("unexpected")
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	pool := queue.NewPool(queue.KindProcessApplication, q, 2, time.Second, handler, logger.NewTest(t))
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(runCtx) }()

	done.Wait()
	cancel()
	require.NoError(t, <-errc)
	assert.ElementsMatch(t, []string{"ok1", "fail", "panic", "ok2"}, seen)
}

func TestPool_TaskTimeout(t *testing.T) {
	q := queue.NewMemory(1)
	require.NoError(t, q.Enqueue(context.Background(), queue.NewTask(queue.KindScrapePass, "u1")))

	var timedOut atomic.Bool
	finished := make(chan struct{})
	handler := func(ctx context.Context, _ queue.Task) error {
		defer close(finished)
		<-ctx.Done()
		timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := queue.NewPool(queue.KindScrapePass, q, 1, 20*time.Millisecond, handler, logger.NewTest(t))
	go func() { _ = pool.Run(ctx) }()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("task never timed out")
	}
	cancel()
	assert.True(t, timedOut.Load())
}

func TestPool_StopsWhenQueueClosed(t *testing.T) {
	q := queue.NewMemory(1)
	require.NoError(t, q.Close())

	pool := queue.NewPool(queue.KindScrapePass, q, 3, 0, func(context.Context, queue.Task) error { return nil }, logger.NewTest(t))
	assert.NoError(t, pool.Run(context.Background()))
}
