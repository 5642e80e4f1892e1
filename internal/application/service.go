package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	store.CVs
	store.Postings
	store.Applications
}

// Enqueuer hands a pending application to the processing workers.
type Enqueuer interface {
	EnqueueApplication(ctx context.Context, applicationID string) error
}

// DefaultStatsDays is the window used when Stats is asked for zero days.
const DefaultStatsDays = 30

// ApplyRequest is the input of ApplyToJob. CVID and CustomMessage are
// optional.
type ApplyRequest struct {
	UserID        string `json:"user_id"`
	JobID         string `json:"job_id"`
	CVID          string `json:"cv_id,omitempty"`
	CustomMessage string `json:"custom_message,omitempty"`
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service is transport-agnostic: used by the HTTP API and the scrape worker.
type Service struct {
	store  Store
	queue  Enqueuer
	events events.Publisher
	ai     ai.Provider
	log    logger.Logger
	now    func() time.Time
}

// NewService returns a configured Service.
func NewService(st Store, q Enqueuer, pub events.Publisher, log logger.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Service{
		store:  st,
		queue:  q,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithProvider enables Analyze.
func (s *Service) WithProvider(p ai.Provider) *Service {
	s.ai = p
	return s
}

// ─── Intake ──────────────────────────────────────────────────────────────────

// ApplyToJob creates a pending application and enqueues its processing run.
// The posting must exist; the CV defaults to the user's default one.
func (s *Service) ApplyToJob(ctx context.Context, req ApplyRequest) (*model.JobApplication, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.JobID) == "" {
		return nil, &ValidationError{Msg: "user_id and job_id are required"}
	}

	posting, err := s.store.GetPosting(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("job posting %s: %w", req.JobID, ErrNotFound)
		}
		return nil, fmt.Errorf("applyToJob load posting: %w", err)
	}

	cv, err := s.resolveCV(ctx, req.UserID, req.CVID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, req.UserID, posting, cv, req.CustomMessage)
}

func (s *Service) resolveCV(ctx context.Context, userID, cvID string) (*model.CVData, error) {
	if cvID == "" {
		cv, err := s.store.GetDefaultCV(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &PreconditionError{Msg: "cannot apply", Err: ErrNoDefaultCV}
		}
		if err != nil {
			return nil, fmt.Errorf("load default cv: %w", err)
		}
		return cv, nil
	}

	cv, err := s.store.GetCV(ctx, cvID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cv %s: %w", cvID, ErrNotFound)
		}
		return nil, fmt.Errorf("load cv: %w", err)
	}
	if cv.UserID != userID {
		return nil, fmt.Errorf("cv %s: %w", cvID, ErrNotFound)
	}
	return cv, nil
}

func (s *Service) apply(
	ctx context.Context,
	userID string,
	posting *model.JobPosting,
	cv *model.CVData,
	message string,
) (*model.JobApplication, error) {
	existing, err := s.store.FindActiveApplication(ctx, userID, posting.ID)
	switch {
	case err == nil:
		return nil, &DuplicateError{ApplicationID: existing.ID}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("find active application: %w", err)
	}

	app := &model.JobApplication{
		UserID:        userID,
		JobID:         posting.ID,
		CVID:          cv.ID,
		CustomMessage: message,
		Status:        model.StatusPending,
		PortalData:    map[string]any{},
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race against a concurrent apply for the same posting.
			if winner, ferr := s.store.FindActiveApplication(ctx, userID, posting.ID); ferr == nil {
				return nil, &DuplicateError{ApplicationID: winner.ID}
			}
			return nil, &DuplicateError{}
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	if err := s.queue.EnqueueApplication(ctx, app.ID); err != nil {
		s.log.Error("enqueue application failed", logger.Fields{
			"application_id": app.ID, "user_id": userID, "error": err.Error(),
		})
		s.abandon(ctx, app, "could not be queued: "+err.Error())
		return nil, fmt.Errorf("enqueue application %s: %w", app.ID, err)
	}

	s.log.Info("application created", logger.Fields{
		"application_id": app.ID, "user_id": userID, "job_id": posting.ID, "portal": string(posting.Portal),
	})
	return app, nil
}

// abandon rejects a pending application that will never be processed.
func (s *Service) abandon(ctx context.Context, app *model.JobApplication, reason string) {
	now := s.now()
	err := s.store.FinishApplication(ctx, app.ID, store.Outcome{
		Status:     model.StatusRejected,
		Notes:      reason,
		PortalData: app.PortalData,
		At:         now,
	})
	if err != nil {
		s.log.Warn("reject unqueued application failed", logger.Fields{"application_id": app.ID, "error": err.Error()})
		return
	}
	app.Status, app.Notes, app.LastUpdate = model.StatusRejected, reason, now
	s.events.Publish(ctx, events.ApplicationChanged(app, model.StatusPending))
}

// AutoApply creates applications for the postings of a pass that matched at
// least one keyword of an auto-apply filter, up to the filter's daily bound
// counted from UTC midnight. Postings already applied to are skipped.
func (s *Service) AutoApply(ctx context.Context, filter model.SearchFilter, postings []model.JobPosting) (int, error) {
	if !filter.AutoApply || !filter.IsActive || len(postings) == 0 {
		return 0, nil
	}
	limit := filter.MaxApplicationsPerDay
	if limit <= 0 {
		limit = model.DefaultMaxApplicationsPerDay
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	used, err := s.store.CountApplicationsSince(ctx, filter.UserID, midnight)
	if err != nil {
		return 0, fmt.Errorf("autoApply count: %w", err)
	}
	remaining := limit - used
	if remaining <= 0 {
		s.log.Info("daily application bound reached", logger.Fields{"user_id": filter.UserID, "limit": limit})
		return 0, nil
	}

	cv, err := s.store.GetDefaultCV(ctx, filter.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("auto-apply skipped: no default cv", logger.Fields{"user_id": filter.UserID, "filter_id": filter.ID})
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("autoApply load cv: %w", err)
	}

	created := 0
	for i := range postings {
		if created >= remaining {
			break
		}
		p := &postings[i]
		if len(p.KeywordsMatched) == 0 {
			continue
		}
		_, err := s.apply(ctx, filter.UserID, p, cv, "")
		var dup *DuplicateError
		switch {
		case errors.As(err, &dup):
			continue
		case err != nil:
			s.log.Warn("auto-apply failed", logger.Fields{"user_id": filter.UserID, "job_id": p.ID, "error": err.Error()})
			continue
		}
		created++
	}
	return created, nil
}

// ─── Tracking ────────────────────────────────────────────────────────────────

// Get returns one application of the user.
func (s *Service) Get(ctx context.Context, userID, appID string) (*model.JobApplication, error) {
	app, err := s.store.GetApplication(ctx, appID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && app.UserID != userID) {
		return nil, fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

// List returns the user's applications, newest first. An empty status lists
// every status.
func (s *Service) List(ctx context.Context, userID, status string, limit, offset int) ([]model.JobApplication, error) {
	q := store.ApplicationQuery{UserID: userID, Limit: limit, Offset: offset}
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
		q.Status = st
	}
	apps, err := s.store.ListApplications(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listApplications: %w", err)
	}
	return apps, nil
}

// Advance moves an application along the state machine on behalf of an
// external signal (employer viewed it, interview, offer, rejection).
// Applications still being processed cannot be advanced.
func (s *Service) Advance(ctx context.Context, userID, appID, newStatusStr string) (*model.JobApplication, error) {
	newStatus, err := ParseStatus(newStatusStr)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	current, err := s.Get(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusPending {
		return nil, &PreconditionError{Msg: "application is still being processed"}
	}
	if !IsTransitionAllowed(current.Status, newStatus) {
		return nil, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", current.Status, newStatus),
		}
	}

	app, err := s.store.TransitionApplication(ctx, userID, appID, current.Status, newStatus, s.now())
	if err != nil {
		return nil, fmt.Errorf("advance application: %w", err)
	}

	s.events.Publish(ctx, events.ApplicationChanged(app, current.Status))
	s.log.Info("application advanced", logger.Fields{
		"application_id": appID, "user_id": userID, "from": string(current.Status), "to": string(newStatus),
	})
	return app, nil
}

// AddNote sets or replaces the free-text note on an application.
func (s *Service) AddNote(ctx context.Context, userID, appID, note string) (*model.JobApplication, error) {
	app, err := s.store.UpdateNotes(ctx, userID, appID, note)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("addNote: %w", err)
	}
	return app, nil
}

// Stats summarises the user's activity over the trailing days.
func (s *Service) Stats(ctx context.Context, userID string, days int) (*model.UserStats, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	since := s.now().AddDate(0, 0, -days)

	byStatus, byPortal, err := s.store.ApplicationStats(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("stats applications: %w", err)
	}
	found, err := s.store.CountPostingsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("stats postings: %w", err)
	}

	stats := &model.UserStats{
		PeriodDays:           days,
		ApplicationsByStatus: byStatus,
		ApplicationsByPortal: byPortal,
		JobsFound:            found,
	}
	successes := 0
	for st, n := range byStatus {
		stats.TotalApplications += n
		if IsSuccess(st) {
			successes += n
		}
	}
	if stats.TotalApplications > 0 {
		rate := float64(successes) / float64(stats.TotalApplications) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}
