package quota

import (
	"context"
	"sync"
	"time"

	"jobmate/autoapply-service/internal/model"
)

// Memory is a process-local Tracker.
type Memory struct {
	mu        sync.Mutex
	limits    Limits
	counts    map[model.Portal]int
	lastReset time.Time
	now       Clock
}

// NewMemory returns a Memory tracker. A nil clock uses time.Now.
func NewMemory(limits Limits, now Clock) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		limits:    limits,
		counts:    make(map[model.Portal]int),
		lastReset: day(now()),
		now:       now,
	}
}

// resetIfNewDay must be called with mu held.
func (m *Memory) resetIfNewDay() {
	today := day(m.now())
	if today.After(m.lastReset) {
		m.counts = make(map[model.Portal]int)
		m.lastReset = today
	}
}

func (m *Memory) Allow(_ context.Context, portal model.Portal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDay()
	return m.counts[portal] < m.limits[portal], nil
}

func (m *Memory) Record(_ context.Context, portal model.Portal, n int) error {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDay()
	m.counts[portal] += n
	return nil
}

func (m *Memory) Reserve(_ context.Context, portal model.Portal, want int) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDay()

	r := Reservation{Portal: portal, Day: m.lastReset}
	if want <= 0 {
		return r, nil
	}
	granted := min(want, m.limits[portal]-m.counts[portal])
	if granted <= 0 {
		return r, nil
	}
	m.counts[portal] += granted
	r.Granted = granted
	return r, nil
}

func (m *Memory) Release(_ context.Context, r Reservation, n int) error {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDay()
	if !day(r.Day).Equal(m.lastReset) {
		return nil
	}
	m.counts[r.Portal] = max(0, m.counts[r.Portal]-n)
	return nil
}

func (m *Memory) Remaining(_ context.Context, portal model.Portal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDay()
	return max(0, m.limits[portal]-m.counts[portal]), nil
}
