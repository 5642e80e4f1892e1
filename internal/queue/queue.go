// Package queue decouples work intake from execution: scrape passes and
// application processing runs are enqueued as tasks and drained by worker
// pools.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names what a task asks the worker to do.
type Kind string

const (
	KindScrapePass         Kind = "scrape_pass"
	KindProcessApplication Kind = "process_application"
)

// ErrClosed is returned by Dequeue once a queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Task is one unit of work. Payload is the user id of a scrape pass or the
// application id of a processing run.
type Task struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Payload    string    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempt    int       `json:"attempt"`
}

// NewTask stamps a fresh task.
func NewTask(kind Kind, payload string) Task {
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is a FIFO of tasks shared by producers and a worker pool.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)
	Len(ctx context.Context) (int, error)
}

// ─── Dispatcher ──────────────────────────────────────────────────────────────

// Dispatcher routes typed work to the scrape and application queues.
type Dispatcher struct {
	scrape       Queue
	applications Queue
}

// NewDispatcher returns a Dispatcher over the two queues.
func NewDispatcher(scrape, applications Queue) *Dispatcher {
	return &Dispatcher{scrape: scrape, applications: applications}
}

// EnqueueScrapePass asks for one scrape pass on behalf of userID.
func (d *Dispatcher) EnqueueScrapePass(ctx context.Context, userID string) error {
	return d.scrape.Enqueue(ctx, NewTask(KindScrapePass, userID))
}

// EnqueueApplication asks for the processing run of a pending application.
func (d *Dispatcher) EnqueueApplication(ctx context.Context, applicationID string) error {
	return d.applications.Enqueue(ctx, NewTask(KindProcessApplication, applicationID))
}
