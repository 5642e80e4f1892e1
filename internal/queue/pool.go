package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/metrics"
	"jobmate/autoapply-service/internal/pacing"
)

// Handler executes one task.
type Handler func(ctx context.Context, t Task) error

// Pool drains a queue with a fixed number of workers.
type Pool struct {
	kind    Kind
	queue   Queue
	workers int
	timeout time.Duration
	handle  Handler
	log     logger.Logger
}

// NewPool returns a Pool. timeout bounds every task; zero means unbounded.
func NewPool(kind Kind, q Queue, workers int, timeout time.Duration, handle Handler, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Pool{
		kind:    kind,
		queue:   q,
		workers: workers,
		timeout: timeout,
		handle:  handle,
		log:     log.With(logger.Fields{"pool": string(kind)}),
	}
}

// Run blocks until ctx is cancelled or the queue is closed. Tasks already
// taken off the queue are finished under their own timeout.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error { return p.loop(ctx, worker) })
	}
	p.log.Info("worker pool started", logger.Fields{"workers": p.workers})
	err := g.Wait()
	p.log.Info("worker pool stopped", nil)
	return err
}

func (p *Pool) loop(ctx context.Context, worker int) error {
	for {
		t, err := p.queue.Dequeue(ctx)
		switch {
		case ctx.Err() != nil, errors.Is(err, ErrClosed):
			return nil
		case err != nil:
			p.log.Warn("dequeue failed", logger.Fields{"worker": worker, "error": err.Error()})
			if pacing.Sleep(ctx, time.Second) != nil {
				return nil
			}
			continue
		}
		p.run(ctx, *t)
	}
}

func (p *Pool) run(parent context.Context, t Task) {
	metrics.WorkersActive.WithLabelValues(string(p.kind)).Inc()
	defer metrics.WorkersActive.WithLabelValues(string(p.kind)).Dec()

	ctx := context.WithoutCancel(parent)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.safeHandle(ctx, t)
	outcome := "ok"
	fields := logger.Fields{
		"task_id":     t.ID,
		"kind":        string(t.Kind),
		"payload":     t.Payload,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		outcome = "error"
		fields["error"] = err.Error()
		p.log.Error("task failed", fields)
	} else {
		p.log.Debug("task done", fields)
	}
	metrics.QueueTasks.WithLabelValues(string(p.kind), outcome).Inc()
}

func (p *Pool) safeHandle(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.handle(ctx, t)
}
