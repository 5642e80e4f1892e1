// Package pacing draws the randomized delays inserted between outbound portal
// requests.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Range is an inclusive delay interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer draws uniform delays and sleeps for them. Safe for concurrent use.
type Pacer struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	sleep SleepFunc
}

// New returns a Pacer seeded from the runtime source.
func New() *Pacer {
	return &Pacer{
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep: Sleep,
	}
}

// NewWithSource returns a Pacer with a fixed random source and sleep
// implementation.
func NewWithSource(src rand.Source, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{rnd: rand.New(src), sleep: sleep}
}

// NoDelay returns a Pacer whose waits return immediately unless ctx is done.
func NoDelay() *Pacer {
	return NewWithSource(rand.NewPCG(1, 2), func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	})
}

// Delay returns a duration drawn uniformly from [min, max].
// When max <= min the result is min.
func (p *Pacer) Delay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	p.mu.Lock()
	n := p.rnd.Int64N(span + 1)
	p.mu.Unlock()
	return min + time.Duration(n)
}

// Wait sleeps for a delay drawn from r. It returns ctx.Err() if the context
// is cancelled first.
func (p *Pacer) Wait(ctx context.Context, r Range) error {
	return p.sleep(ctx, p.Delay(r.Min, r.Max))
}

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
