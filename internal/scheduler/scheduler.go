// Package scheduler wires up the cron job that periodically enqueues a scrape
// pass for every user with an active search filter, and exposes the manual
// start/stop search triggers.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/store"
)

// Enqueuer hands scrape passes to the scrape worker pool.
type Enqueuer interface {
	EnqueueScrapePass(ctx context.Context, userID string) error
}

// Scheduler wraps robfig/cron and manages the scrape loop.
type Scheduler struct {
	cron       *cron.Cron
	store      store.Filters
	queue      Enqueuer
	spec       string // cron spec, e.g. "@every 6h"
	runOnStart bool
	log        logger.Logger
}

// New creates a Scheduler that fires every intervalHours hours.
func New(st store.Filters, q Enqueuer, intervalHours int, runOnStart bool, log logger.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.With(logger.Fields{"component": "scheduler"})
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLogger{log: log})),
		store:      st,
		queue:      q,
		spec:       fmt.Sprintf("@every %dh", intervalHours),
		runOnStart: runOnStart,
		log:        log,
	}
}

// Start registers the job and starts the scheduler. When configured, one
// round is enqueued immediately so results arrive without waiting for the
// first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.tickLogged(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", logger.Fields{"spec": s.spec})

	if s.runOnStart {
		go s.tickLogged(ctx)
	}
	return nil
}

// Stop halts the cron and waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped", nil)
}

func (s *Scheduler) tickLogged(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.log.Error("scheduled round failed", logger.Fields{"error": err.Error()})
	}
}

// Tick enqueues one scrape pass per user with an active filter and returns
// how many were enqueued. A failed enqueue is logged and the round goes on.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	users, err := s.store.ListActiveFilterUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active filter users: %w", err)
	}
	if len(users) == 0 {
		s.log.Info("no active search filters, nothing to schedule", nil)
		return 0, nil
	}

	enqueued := 0
	for _, userID := range users {
		if err := s.queue.EnqueueScrapePass(ctx, userID); err != nil {
			s.log.Warn("enqueue scrape pass failed", logger.Fields{"user_id": userID, "error": err.Error()})
			continue
		}
		enqueued++
	}
	s.log.Info("scheduled round enqueued", logger.Fields{"users": len(users), "enqueued": enqueued})
	return enqueued, nil
}

// ─── Manual triggers ─────────────────────────────────────────────────────────

// StartSearch enqueues an immediate scrape pass for userID. It fails with a
// PreconditionError when the user has no active filter.
func (s *Scheduler) StartSearch(ctx context.Context, userID string) error {
	filters, err := s.store.ListFilters(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("startSearch load filters: %w", err)
	}
	if len(filters) == 0 {
		return &application.PreconditionError{Msg: "cannot start search", Err: application.ErrNoActiveFilter}
	}
	if err := s.queue.EnqueueScrapePass(ctx, userID); err != nil {
		return fmt.Errorf("startSearch enqueue: %w", err)
	}
	s.log.Info("search started", logger.Fields{"user_id": userID, "filters": len(filters)})
	return nil
}

// StopSearch deactivates every filter of userID. Passes already queued find
// no active filter and do nothing; a pass in flight may complete.
func (s *Scheduler) StopSearch(ctx context.Context, userID string) (int, error) {
	n, err := s.store.DeactivateFilters(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("stopSearch: %w", err)
	}
	s.log.Info("search stopped", logger.Fields{"user_id": userID, "deactivated": n})
	return n, nil
}

// ─── cron logging ────────────────────────────────────────────────────────────

// cronLogger routes robfig/cron's own messages to the service logger.
type cronLogger struct{ log logger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	c.log.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) logger.Fields {
	fields := make(logger.Fields, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
