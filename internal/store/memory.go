package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/autoapply-service/internal/model"
)

// Memory is an in-process Store guarded by a single mutex. Records are held
// by value.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	users        map[string]model.UserProfile
	cvs          map[string]model.CVData
	filters      map[string]model.SearchFilter
	postings     map[string]model.JobPosting
	postingIndex map[string]string // dedup key -> posting id
	applications map[string]model.JobApplication
	aiConfigs    map[string]model.AIConfig // by user id
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[string]model.UserProfile),
		cvs:          make(map[string]model.CVData),
		filters:      make(map[string]model.SearchFilter),
		postings:     make(map[string]model.JobPosting),
		postingIndex: make(map[string]string),
		applications: make(map[string]model.JobApplication),
		aiConfigs:    make(map[string]model.AIConfig),
	}
}

// WithClock replaces the store clock. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

var _ Store = (*Memory)(nil)

func page[T any](items []T, limit, offset int) []T {
	limit, offset = pageBounds(limit, offset)
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// ─── Users ───────────────────────────────────────────────────────────────────

func (m *Memory) CreateUser(_ context.Context, u *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// ─── CVs ─────────────────────────────────────────────────────────────────────

func (m *Memory) CreateCV(_ context.Context, cv *model.CVData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cv.ID == "" {
		cv.ID = uuid.NewString()
	}
	now := m.now()
	cv.CreatedAt, cv.UpdatedAt = now, now
	if cv.IsDefault {
		m.unsetDefaultLocked(cv.UserID, cv.ID, now)
	}
	m.cvs[cv.ID] = *cv
	return nil
}

func (m *Memory) unsetDefaultLocked(userID, keepID string, now time.Time) {
	for id, other := range m.cvs {
		if other.UserID == userID && id != keepID && other.IsDefault {
			other.IsDefault = false
			other.UpdatedAt = now
			m.cvs[id] = other
		}
	}
}

func (m *Memory) GetCV(_ context.Context, id string) (*model.CVData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.cvs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &cv, nil
}

func (m *Memory) GetDefaultCV(_ context.Context, userID string) (*model.CVData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cv := range m.cvs {
		if cv.UserID == userID && cv.IsDefault {
			return &cv, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListCVs(_ context.Context, userID string) ([]model.CVData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CVData, 0)
	for _, cv := range m.cvs {
		if cv.UserID == userID {
			out = append(out, cv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetDefaultCV(_ context.Context, userID, cvID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.cvs[cvID]
	if !ok || cv.UserID != userID {
		return ErrNotFound
	}
	now := m.now()
	m.unsetDefaultLocked(userID, cvID, now)
	cv.IsDefault = true
	cv.UpdatedAt = now
	m.cvs[cvID] = cv
	return nil
}

// ─── Filters ─────────────────────────────────────────────────────────────────

func (m *Memory) CreateFilter(_ context.Context, f *model.SearchFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := m.now()
	f.CreatedAt, f.UpdatedAt = now, now
	m.filters[f.ID] = *f
	return nil
}

func (m *Memory) ListFilters(_ context.Context, userID string, activeOnly bool) ([]model.SearchFilter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SearchFilter, 0)
	for _, f := range m.filters {
		if f.UserID != userID || (activeOnly && !f.IsActive) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListActiveFilterUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var users []string
	for _, f := range m.filters {
		if !f.IsActive {
			continue
		}
		if _, ok := seen[f.UserID]; ok {
			continue
		}
		seen[f.UserID] = struct{}{}
		users = append(users, f.UserID)
	}
	sort.Strings(users)
	return users, nil
}

func (m *Memory) DeactivateFilters(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for id, f := range m.filters {
		if f.UserID == userID && f.IsActive {
			f.IsActive = false
			f.UpdatedAt = now
			m.filters[id] = f
			n++
		}
	}
	return n, nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

func (m *Memory) UpsertPosting(_ context.Context, p *model.JobPosting) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p.UpdatedAt = now

	if id, ok := m.postingIndex[p.DedupKey()]; ok {
		stored := m.postings[id]
		p.ID = id
		p.ScrapedAt = stored.ScrapedAt
		if p.Description == "" {
			p.Description = stored.Description
		}
		if p.PostedDate == nil {
			p.PostedDate = stored.PostedDate
		}
		m.postings[id] = *p
		return false, nil
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ScrapedAt.IsZero() {
		p.ScrapedAt = now
	}
	m.postings[p.ID] = *p
	m.postingIndex[p.DedupKey()] = p.ID
	return true, nil
}

func (m *Memory) GetPosting(_ context.Context, id string) (*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.postings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) ListPostings(_ context.Context, q PostingQuery) ([]model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobPosting, 0)
	for _, p := range m.postings {
		if q.Portal != "" && p.Portal != q.Portal {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScrapedAt.After(out[j].ScrapedAt) })
	return page(out, q.Limit, q.Offset), nil
}

func (m *Memory) CountPostingsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.postings {
		if !p.ScrapedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ─── Applications ────────────────────────────────────────────────────────────

func (m *Memory) CreateApplication(_ context.Context, a *model.JobApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.applications {
		if existing.UserID == a.UserID && existing.JobID == a.JobID && existing.Status != model.StatusRejected {
			return ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := m.now()
	a.CreatedAt, a.LastUpdate = now, now
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	m.applications[a.ID] = *a
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) FindActiveApplication(_ context.Context, userID, jobID string) (*model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.applications {
		if a.UserID == userID && a.JobID == jobID && a.Status != model.StatusRejected {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListApplications(_ context.Context, q ApplicationQuery) ([]model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobApplication, 0)
	for _, a := range m.applications {
		if a.UserID != q.UserID || (q.Status != "" && a.Status != q.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, q.Limit, q.Offset), nil
}

func (m *Memory) FinishApplication(_ context.Context, id string, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != model.StatusPending {
		return ErrStaleStatus
	}
	a.Status = o.Status
	a.Notes = o.Notes
	a.CoverLetter = o.CoverLetter
	a.PortalData = o.PortalData
	a.AppliedAt = o.AppliedAt
	a.LastUpdate = o.At
	m.applications[id] = a
	return nil
}

func (m *Memory) TransitionApplication(
	_ context.Context,
	userID, id string,
	from, to model.ApplicationStatus,
	at time.Time,
) (*model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = to
	a.LastUpdate = at
	a.ResponseReceived = a.ResponseReceived || isResponse(to)
	m.applications[id] = a
	return &a, nil
}

func (m *Memory) UpdateNotes(_ context.Context, userID, id, notes string) (*model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	a.Notes = notes
	a.LastUpdate = m.now()
	m.applications[id] = a
	return &a, nil
}

func (m *Memory) CountApplicationsSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.applications {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ApplicationStats(
	_ context.Context,
	userID string,
	since time.Time,
) (map[model.ApplicationStatus]int, map[model.Portal]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus := make(map[model.ApplicationStatus]int)
	byPortal := make(map[model.Portal]int)
	for _, a := range m.applications {
		if a.UserID != userID || a.CreatedAt.Before(since) {
			continue
		}
		byStatus[a.Status]++
		if p, ok := m.postings[a.JobID]; ok {
			byPortal[p.Portal]++
		}
	}
	return byStatus, byPortal, nil
}

// ─── AI configs ──────────────────────────────────────────────────────────────

func (m *Memory) SaveAIConfig(_ context.Context, c *model.AIConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.aiConfigs[c.UserID]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.aiConfigs[c.UserID] = *c
	return nil
}

func (m *Memory) GetAIConfig(_ context.Context, userID string) (*model.AIConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.aiConfigs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
