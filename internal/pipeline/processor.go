// Package pipeline runs one application from pending to its terminal
// pipeline outcome: applied or rejected.
//
// Runs are independent of each other and never retried. Whatever goes wrong
// inside a run, including a panic, ends as rejected with the reason in the
// notes. The terminal write only succeeds while the application is still
// pending, so an external update that landed in the meantime wins.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/metrics"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/notify"
	"jobmate/autoapply-service/internal/portal"
	"jobmate/autoapply-service/internal/queue"
	"jobmate/autoapply-service/internal/store"
)

// NoteIncompleteData is recorded when the posting or CV is gone.
const NoteIncompleteData = "incomplete data"

// finishTimeout bounds the terminal write, which runs even when the task
// context has already expired.
const finishTimeout = 10 * time.Second

// Store is the persistence a run needs.
type Store interface {
	store.Users
	store.CVs
	store.Postings
	store.Applications
}

// Processor executes processing runs.
type Processor struct {
	store    Store
	ai       ai.Provider
	portals  *portal.Registry
	events   events.Publisher
	notifier notify.Notifier
	log      logger.Logger
	now      func() time.Time
}

// NewProcessor returns a Processor. pub and notifier may be nil.
func NewProcessor(
	st Store,
	provider ai.Provider,
	portals *portal.Registry,
	pub events.Publisher,
	notifier notify.Notifier,
	log logger.Logger,
) *Processor {
	if pub == nil {
		pub = events.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Processor{
		store:    st,
		ai:       provider,
		portals:  portals,
		events:   pub,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the processor clock. Intended for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Handle adapts Process to the worker pool.
func (p *Processor) Handle(ctx context.Context, t queue.Task) error {
	return p.Process(ctx, t.Payload)
}

// run carries the state of one processing run.
type run struct {
	app     *model.JobApplication
	posting *model.JobPosting
	start   time.Time
}

// Process drives the application identified by appID. The returned error
// only reports failures to load or persist; submission failures are part of
// the normal outcome and return nil.
func (p *Processor) Process(ctx context.Context, appID string) (err error) {
	app, err := p.store.GetApplication(ctx, appID)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Warn("application to process not found", logger.Fields{"application_id": appID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("load application %s: %w", appID, err)
	}
	if app.Status != model.StatusPending {
		p.log.Info("application already processed", logger.Fields{"application_id": appID, "status": string(app.Status)})
		return nil
	}

	r := &run{app: app, start: time.Now()}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("processing run panicked", logger.Fields{"application_id": appID, "panic": fmt.Sprint(rec)})
			err = p.finish(ctx, r, store.Outcome{
				Status: model.StatusRejected,
				Notes:  fmt.Sprintf("unexpected error: %v", rec),
			})
		}
	}()

	return p.finish(ctx, r, p.execute(ctx, r))
}

func (p *Processor) execute(ctx context.Context, r *run) store.Outcome {
	app := r.app

	posting, err := p.store.GetPosting(ctx, app.JobID)
	if err != nil {
		return p.incomplete(app, "posting", err)
	}
	r.posting = posting

	cv, err := p.store.GetCV(ctx, app.CVID)
	if err != nil {
		return p.incomplete(app, "cv", err)
	}

	variant, err := p.portals.Get(posting.Portal)
	if err != nil {
		return rejected(err)
	}

	coverLetter := app.CoverLetter
	if coverLetter == "" {
		coverLetter = p.ai.GenerateCoverLetter(ctx, app.UserID, *cv, *posting)
	}

	req := portal.SubmitRequest{
		Application: *app,
		Posting:     *posting,
		CV:          *cv,
		CoverLetter: coverLetter,
	}
	if form, ok := variant.(portal.FormPortal); ok {
		req.FormResponses = p.ai.GenerateFormResponses(ctx, app.UserID, *cv, form.FormQuestions())
	}

	res, err := variant.Submit(ctx, req)
	if err != nil {
		out := rejected(fmt.Errorf("submit to %s: %w", posting.Portal, err))
		out.CoverLetter = coverLetter
		return out
	}

	appliedAt := p.now()
	return store.Outcome{
		Status:      model.StatusApplied,
		Notes:       "application sent to " + posting.Company,
		CoverLetter: coverLetter,
		PortalData:  res.PortalData(),
		AppliedAt:   &appliedAt,
	}
}

func (p *Processor) incomplete(app *model.JobApplication, what string, err error) store.Outcome {
	fields := logger.Fields{"application_id": app.ID, "missing": what}
	if !errors.Is(err, store.ErrNotFound) {
		fields["error"] = err.Error()
	}
	p.log.Warn("application data incomplete", fields)
	return store.Outcome{Status: model.StatusRejected, Notes: NoteIncompleteData}
}

func rejected(err error) store.Outcome {
	return store.Outcome{Status: model.StatusRejected, Notes: err.Error()}
}

// finish writes the outcome under the pending guard, then publishes and
// notifies. Only the write can fail the run.
func (p *Processor) finish(ctx context.Context, r *run, out store.Outcome) error {
	app := r.app
	out.At = p.now()
	if out.PortalData == nil {
		out.PortalData = app.PortalData
	}
	if out.CoverLetter == "" {
		out.CoverLetter = app.CoverLetter
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	err := p.store.FinishApplication(wctx, app.ID, out)
	if errors.Is(err, store.ErrStaleStatus) {
		p.log.Info("application changed during processing, outcome dropped", logger.Fields{
			"application_id": app.ID, "outcome": string(out.Status),
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish application %s: %w", app.ID, err)
	}

	from := app.Status
	app.Status = out.Status
	app.Notes = out.Notes
	app.CoverLetter = out.CoverLetter
	app.PortalData = out.PortalData
	app.AppliedAt = out.AppliedAt
	app.LastUpdate = out.At

	portalName := "unknown"
	if r.posting != nil {
		portalName = string(r.posting.Portal)
	}
	metrics.ApplicationsProcessed.WithLabelValues(portalName, string(out.Status)).Inc()
	metrics.ApplicationDuration.Observe(time.Since(r.start).Seconds())

	fields := logger.Fields{
		"application_id": app.ID,
		"user_id":        app.UserID,
		"portal":         portalName,
		"status":         string(out.Status),
	}
	if out.Status == model.StatusRejected {
		fields["reason"] = out.Notes
		p.log.Warn("application rejected", fields)
	} else {
		p.log.Info("application sent", fields)
	}

	p.events.Publish(wctx, events.ApplicationChanged(app, from))
	p.notifyUser(wctx, r)
	return nil
}

func (p *Processor) notifyUser(ctx context.Context, r *run) {
	user, err := p.store.GetUser(ctx, r.app.UserID)
	if err != nil {
		p.log.Debug("outcome email skipped: user not loaded", logger.Fields{"user_id": r.app.UserID, "error": err.Error()})
		return
	}
	if err := p.notifier.ApplicationFinished(ctx, user, r.app, r.posting); err != nil {
		p.log.Warn("outcome email failed", logger.Fields{"application_id": r.app.ID, "error": err.Error()})
	}
}
