package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/metrics"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/pacing"
	"jobmate/autoapply-service/internal/portal"
	"jobmate/autoapply-service/internal/queue"
	"jobmate/autoapply-service/internal/quota"
	"jobmate/autoapply-service/internal/store"
)

// ErrPassInProgress is returned when a pass for the same user is already
// running in this process.
var ErrPassInProgress = errors.New("scrape pass already running for user")

// DefaultFetchLimit caps one portal query when none is configured.
const DefaultFetchLimit = 25

// Store is the persistence a pass needs.
type Store interface {
	store.Filters
	store.Postings
}

// Applier turns new matching postings into applications.
type Applier interface {
	AutoApply(ctx context.Context, filter model.SearchFilter, postings []model.JobPosting) (int, error)
}

// Options tune a pass.
type Options struct {
	FetchLimit   int
	FetchTimeout time.Duration
	PortalDelay  pacing.Range
}

// Skip reasons reported per portal.
const (
	SkipQuota       = "quota_exhausted"
	SkipUnsupported = "unsupported"
)

// PortalResult is what one portal contributed to a pass.
type PortalResult struct {
	Portal    model.Portal `json:"portal"`
	Fetched   int          `json:"fetched"`
	New       int          `json:"new"`
	Refreshed int          `json:"refreshed"`
	Excluded  int          `json:"excluded"`
	Skipped   string       `json:"skipped,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// PassResult summarises one pass.
type PassResult struct {
	UserID       string             `json:"user_id"`
	Filters      int                `json:"filters"`
	Portals      []PortalResult     `json:"portals"`
	Postings     []model.JobPosting `json:"-"`
	New          int                `json:"new"`
	Applications int                `json:"applications"`
	Duration     time.Duration      `json:"duration"`
}

// FailedPortals lists the portals that errored during the pass.
func (r *PassResult) FailedPortals() []string {
	out := make([]string, 0)
	for _, p := range r.Portals {
		if p.Error != "" {
			out = append(out, string(p.Portal))
		}
	}
	return out
}

// SkippedPortals lists the portals that were not queried at all.
func (r *PassResult) SkippedPortals() []string {
	out := make([]string, 0)
	for _, p := range r.Portals {
		if p.Skipped != "" {
			out = append(out, string(p.Portal))
		}
	}
	return out
}

// ─── Worker ──────────────────────────────────────────────────────────────────

// Worker runs scrape passes. Quota counters are the only state shared
// between concurrent passes of different users.
type Worker struct {
	store   Store
	portals *portal.Registry
	quota   quota.Tracker
	pacer   *pacing.Pacer
	applier Applier
	events  events.Publisher
	log     logger.Logger
	opts    Options

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewWorker constructs a Worker. applier and pub may be nil.
func NewWorker(
	st Store,
	portals *portal.Registry,
	tracker quota.Tracker,
	pacer *pacing.Pacer,
	applier Applier,
	pub events.Publisher,
	log logger.Logger,
	opts Options,
) *Worker {
	if pacer == nil {
		pacer = pacing.New()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	return &Worker{
		store:    st,
		portals:  portals,
		quota:    tracker,
		pacer:    pacer,
		applier:  applier,
		events:   pub,
		log:      log,
		opts:     opts,
		inflight: make(map[string]struct{}),
	}
}

// Handle adapts RunPass to the worker pool.
func (w *Worker) Handle(ctx context.Context, t queue.Task) error {
	_, err := w.RunPass(ctx, t.Payload)
	if errors.Is(err, ErrPassInProgress) {
		w.log.Info("scrape pass already running, task dropped", logger.Fields{"user_id": t.Payload})
		return nil
	}
	return err
}

func (w *Worker) acquire(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[userID]; busy {
		return false
	}
	w.inflight[userID] = struct{}{}
	return true
}

func (w *Worker) release(userID string) {
	w.mu.Lock()
	delete(w.inflight, userID)
	w.mu.Unlock()
}

// RunPass executes one scrape pass for userID. Active filters are re-read at
// start, so a pass queued before StopSearch becomes a no-op. A portal that
// fails is reported in the result and the pass moves on. On cancellation the
// work done so far is returned together with the context error.
func (w *Worker) RunPass(ctx context.Context, userID string) (*PassResult, error) {
	if !w.acquire(userID) {
		return nil, ErrPassInProgress
	}
	defer w.release(userID)

	start := time.Now()
	res := &PassResult{UserID: userID, Portals: make([]PortalResult, 0), Postings: make([]model.JobPosting, 0)}

	filters, err := w.store.ListFilters(ctx, userID, true)
	if err != nil {
		metrics.ScrapePasses.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load active filters: %w", err)
	}
	res.Filters = len(filters)
	if len(filters) == 0 {
		w.log.Info("no active filters, nothing to scrape", logger.Fields{"user_id": userID})
		metrics.ScrapePasses.WithLabelValues("noop").Inc()
		return res, nil
	}

	w.log.Info("scrape pass started", logger.Fields{"user_id": userID, "filters": len(filters)})

	newByFilter := make(map[string][]model.JobPosting, len(filters))
	var passErr error
	for i, name := range portalUnion(filters) {
		if i > 0 {
			if err := w.pacer.Wait(ctx, w.opts.PortalDelay); err != nil {
				passErr = err
				break
			}
		}
		pr, collected, fresh := w.visit(ctx, name, filters)
		res.Portals = append(res.Portals, pr)
		res.Postings = append(res.Postings, collected...)
		for filterID, ps := range fresh {
			newByFilter[filterID] = append(newByFilter[filterID], ps...)
		}
		res.New += pr.New
		if err := ctx.Err(); err != nil {
			passErr = err
			break
		}
	}

	if passErr == nil && w.applier != nil {
		for _, f := range filters {
			if !f.AutoApply || len(newByFilter[f.ID]) == 0 {
				continue
			}
			n, err := w.applier.AutoApply(ctx, f, newByFilter[f.ID])
			if err != nil {
				w.log.Warn("auto-apply failed", logger.Fields{"user_id": userID, "filter_id": f.ID, "error": err.Error()})
			}
			res.Applications += n
		}
	}

	res.Duration = time.Since(start)
	w.finish(ctx, res, passErr)
	return res, passErr
}

func (w *Worker) finish(ctx context.Context, res *PassResult, passErr error) {
	outcome := "ok"
	switch {
	case passErr != nil:
		outcome = "cancelled"
	case len(res.FailedPortals()) > 0:
		outcome = "partial"
	}
	metrics.ScrapePasses.WithLabelValues(outcome).Inc()

	w.events.Publish(context.WithoutCancel(ctx), events.ScrapeCompleted{
		Type:           events.ChannelScrapeCompleted,
		UserID:         res.UserID,
		PostingsFound:  len(res.Postings),
		PostingsNew:    res.New,
		Applications:   res.Applications,
		ByPortal:       byPortal(res.Portals),
		FailedPortals:  res.FailedPortals(),
		SkippedPortals: res.SkippedPortals(),
		DurationMs:     res.Duration.Milliseconds(),
	})
	w.log.Info("scrape pass finished", logger.Fields{
		"user_id":      res.UserID,
		"outcome":      outcome,
		"new":          res.New,
		"applications": res.Applications,
		"failed":       res.FailedPortals(),
		"duration_ms":  res.Duration.Milliseconds(),
	})
}

// visit queries one portal once per filter that lists it and ingests the
// results. It returns every stored posting and, per filter, the ones new to
// the store. The portal is abandoned for the rest of the pass on its first
// error or when its quota runs out.
func (w *Worker) visit(ctx context.Context, name model.Portal, filters []model.SearchFilter) (PortalResult, []model.JobPosting, map[string][]model.JobPosting) {
	pr := PortalResult{Portal: name}
	collected := make([]model.JobPosting, 0)
	fresh := make(map[string][]model.JobPosting)
	log := w.log.With(logger.Fields{"portal": string(name)})

	variant, err := w.portals.Get(name)
	if err != nil {
		pr.Skipped = SkipUnsupported
		log.Warn("portal not registered, skipped", nil)
		return pr, collected, fresh
	}

	first := true
	for _, f := range filters {
		if !listsPortal(f, name) {
			continue
		}
		if !first {
			if err := w.pacer.Wait(ctx, w.opts.PortalDelay); err != nil {
				return pr, collected, fresh
			}
		}
		first = false

		postings, stop, err := w.fetch(ctx, variant, f, &pr)
		if err != nil {
			pr.Error = err.Error()
			metrics.PortalFetches.WithLabelValues(string(name), "error").Inc()
			log.Error("portal fetch failed", logger.Fields{"filter_id": f.ID, "kept": len(postings), "error": err.Error()})
		} else if !stop {
			metrics.PortalFetches.WithLabelValues(string(name), "ok").Inc()
		}
		if len(postings) > 0 {
			stored, created := w.ingest(ctx, f, postings, &pr)
			collected = append(collected, stored...)
			if len(created) > 0 {
				fresh[f.ID] = append(fresh[f.ID], created...)
			}
		}
		if stop || err != nil {
			break
		}
	}
	return pr, collected, fresh
}

// fetch reserves quota, queries the portal under the fetch timeout and gives
// back the unused reservation. stop is true when the portal has no quota
// left.
func (w *Worker) fetch(ctx context.Context, variant portal.Portal, f model.SearchFilter, pr *PortalResult) ([]model.JobPosting, bool, error) {
	name := variant.Name()

	allowed, err := w.quota.Allow(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("quota check: %w", err)
	}
	var res quota.Reservation
	if allowed {
		if res, err = w.quota.Reserve(ctx, name, w.opts.FetchLimit); err != nil {
			return nil, false, fmt.Errorf("quota reserve: %w", err)
		}
	}
	granted := res.Granted
	if granted == 0 {
		pr.Skipped = SkipQuota
		metrics.PortalFetches.WithLabelValues(string(name), SkipQuota).Inc()
		w.log.Info("daily quota reached, portal skipped", logger.Fields{"portal": string(name)})
		return nil, true, nil
	}

	fctx := ctx
	if w.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, w.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	postings, err := variant.Fetch(fctx, portal.Query{Filter: f, Limit: granted})
	metrics.PortalFetchDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	if len(postings) > granted {
		postings = postings[:granted]
	}
	pr.Fetched += len(postings)

	if unused := granted - len(postings); unused > 0 {
		if rerr := w.quota.Release(context.WithoutCancel(ctx), res, unused); rerr != nil {
			w.log.Warn("quota release failed", logger.Fields{"portal": string(name), "error": rerr.Error()})
		}
	}
	return postings, false, err
}

// ingest discards excluded postings and upserts the rest. It returns every
// posting stored and, separately, those that were new to the store.
func (w *Worker) ingest(ctx context.Context, f model.SearchFilter, postings []model.JobPosting, pr *PortalResult) (stored, fresh []model.JobPosting) {
	stored = make([]model.JobPosting, 0, len(postings))
	fresh = make([]model.JobPosting, 0, len(postings))
	portalName := string(pr.Portal)
	for _, p := range postings {
		if IsExcluded(p, f.ExcludedKeywords) {
			pr.Excluded++
			metrics.PostingsIngested.WithLabelValues(portalName, "excluded").Inc()
			continue
		}
		created, err := w.store.UpsertPosting(ctx, &p)
		if err != nil {
			metrics.PostingsIngested.WithLabelValues(portalName, "failed").Inc()
			w.log.Warn("posting upsert failed", logger.Fields{
				"portal": portalName, "external_id": p.ExternalID, "error": err.Error(),
			})
			continue
		}
		stored = append(stored, p)
		if created {
			pr.New++
			metrics.PostingsIngested.WithLabelValues(portalName, "new").Inc()
			fresh = append(fresh, p)
		} else {
			pr.Refreshed++
			metrics.PostingsIngested.WithLabelValues(portalName, "refreshed").Inc()
		}
	}
	return stored, fresh
}

// portalUnion lists every portal named by the filters, in first-seen order.
func portalUnion(filters []model.SearchFilter) []model.Portal {
	seen := make(map[model.Portal]struct{})
	out := make([]model.Portal, 0)
	for _, f := range filters {
		for _, p := range f.Portals {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func listsPortal(f model.SearchFilter, name model.Portal) bool {
	for _, p := range f.Portals {
		if p == name {
			return true
		}
	}
	return false
}

func byPortal(results []PortalResult) map[string]int {
	out := make(map[string]int, len(results))
	for _, r := range results {
		out[string(r.Portal)] = r.Fetched
	}
	return out
}
