// Package quota enforces per-portal daily ceilings on scraped listings.
//
// Counters reset lazily: the first access on a new UTC date starts a fresh
// count. There is no background timer.
package quota

import (
	"context"
	"time"

	"jobmate/autoapply-service/internal/model"
)

// Tracker is the quota contract shared by the in-process and Redis backends.
type Tracker interface {
	// Allow reports whether the portal is still below its daily ceiling.
	Allow(ctx context.Context, portal model.Portal) (bool, error)
	// Record adds n to the portal's count for today.
	Record(ctx context.Context, portal model.Portal, n int) error
	// Reserve atomically grants up to want units of remaining quota. The
	// grant may be zero.
	Reserve(ctx context.Context, portal model.Portal, want int) (Reservation, error)
	// Release returns n unused units of r to the day they were taken from.
	// Units reserved on an earlier UTC date are not returned.
	Release(ctx context.Context, r Reservation, n int) error
	// Remaining is the quota left today.
	Remaining(ctx context.Context, portal model.Portal) (int, error)
}

// Reservation is a grant of quota units on one UTC date.
type Reservation struct {
	Portal  model.Portal
	Day     time.Time
	Granted int
}

// Limits maps a portal to its daily ceiling. A portal with no entry has a
// ceiling of zero and is never allowed.
type Limits map[model.Portal]int

// Clock returns the current time. Injected for tests.
type Clock func() time.Time

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
