// Package events publishes outcome notifications for downstream consumers.
//
// Publishing is best-effort: a failed publish is logged and never fails the
// operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
)

// Channels.
const (
	ChannelApplicationUpdated = "EVENT_APPLICATION_UPDATED"
	ChannelScrapeCompleted    = "EVENT_SCRAPE_COMPLETED"
)

// Event is anything that can be published.
type Event interface {
	Channel() string
}

// ApplicationUpdated is emitted whenever an application changes status.
type ApplicationUpdated struct {
	Type          string `json:"type"`
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
	JobID         string `json:"jobId"`
	From          string `json:"from"`
	To            string `json:"to"`
	Notes         string `json:"notes,omitempty"`
	At            string `json:"at"`
}

func (ApplicationUpdated) Channel() string { return ChannelApplicationUpdated }

// ApplicationChanged builds the event for a that just left status from.
func ApplicationChanged(a *model.JobApplication, from model.ApplicationStatus) ApplicationUpdated {
	return ApplicationUpdated{
		Type:          ChannelApplicationUpdated,
		ApplicationID: a.ID,
		UserID:        a.UserID,
		JobID:         a.JobID,
		From:          string(from),
		To:            string(a.Status),
		Notes:         a.Notes,
		At:            a.LastUpdate.UTC().Format(time.RFC3339),
	}
}

// ScrapeCompleted is emitted at the end of every scrape pass.
type ScrapeCompleted struct {
	Type           string         `json:"type"`
	UserID         string         `json:"userId"`
	PostingsFound  int            `json:"postingsFound"`
	PostingsNew    int            `json:"postingsNew"`
	Applications   int            `json:"applicationsCreated"`
	ByPortal       map[string]int `json:"byPortal"`
	FailedPortals  []string       `json:"failedPortals"`
	SkippedPortals []string       `json:"skippedPortals"`
	DurationMs     int64          `json:"durationMs"`
}

func (ScrapeCompleted) Channel() string { return ChannelScrapeCompleted }

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// ─── Redis ───────────────────────────────────────────────────────────────────

// RedisPublisher publishes JSON events on Redis pub/sub channels.
type RedisPublisher struct {
	rdb *redis.Client
	log logger.Logger
}

// NewRedisPublisher returns a RedisPublisher.
func NewRedisPublisher(rdb *redis.Client, log logger.Logger) *RedisPublisher {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &RedisPublisher{rdb: rdb, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		p.log.Warn("marshal event failed", logger.Fields{"channel": e.Channel(), "error": err.Error()})
		return
	}
	if err := p.rdb.Publish(ctx, e.Channel(), body).Err(); err != nil {
		p.log.Warn("publish event failed", logger.Fields{"channel": e.Channel(), "error": err.Error()})
	}
}

// ─── No-op ───────────────────────────────────────────────────────────────────

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
