package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) EnqueueApplication(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type fixture struct {
	st     *store.Memory
	queue  *fakeQueue
	events *recorder
	svc    *application.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	f := &fixture{
		st:     store.NewMemory().WithClock(clock),
		queue:  &fakeQueue{},
		events: &recorder{},
	}
	f.svc = application.NewService(f.st, f.queue, f.events, logger.NewTest(t)).WithClock(clock)
	return f
}

func (f *fixture) posting(t *testing.T, id string, matched ...string) model.JobPosting {
	t.Helper()
	p := model.JobPosting{
		Portal: model.PortalLaborum, ExternalID: id, Title: "Dev " + id, Company: "Acme",
		KeywordsMatched: matched,
	}
	_, err := f.st.UpsertPosting(context.Background(), &p)
	require.NoError(t, err)
	return p
}

func (f *fixture) cv(t *testing.T, userID string, isDefault bool) model.CVData {
	t.Helper()
	cv := model.CVData{UserID: userID, Title: "CV", RawText: "go", IsDefault: isDefault}
	require.NoError(t, f.st.CreateCV(context.Background(), &cv))
	return cv
}

// ─── ApplyToJob ──────────────────────────────────────────────────────────────

func TestApplyToJob_UsesDefaultCVAndEnqueues(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	cv := f.cv(t, "u1", true)

	app, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, app.Status)
	assert.Equal(t, cv.ID, app.CVID)
	assert.Equal(t, []string{app.ID}, f.queue.ids)
}

func TestApplyToJob_NoDefaultCV(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")

	_, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: p.ID})

	var pre *application.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, application.ErrNoDefaultCV)
	assert.Empty(t, f.queue.ids)

	apps, _ := f.svc.List(context.Background(), "u1", "", 0, 0)
	assert.Empty(t, apps)
}

func TestApplyToJob_MissingPosting(t *testing.T) {
	f := newFixture(t)
	f.cv(t, "u1", true)

	_, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: "nope"})
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestApplyToJob_ForeignCV(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	other := f.cv(t, "u2", true)

	_, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: p.ID, CVID: other.ID})
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestApplyToJob_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1"})
	var ve *application.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestApplyToJob_Duplicate(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	f.cv(t, "u1", true)
	ctx := context.Background()

	first, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)

	_, err = f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	var dup *application.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ApplicationID)
	assert.Len(t, f.queue.ids, 1)
}

func TestApplyToJob_AllowedAgainAfterRejection(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	f.cv(t, "u1", true)
	ctx := context.Background()

	first, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)
	require.NoError(t, f.st.FinishApplication(ctx, first.ID, store.Outcome{Status: model.StatusRejected, At: fixedNow}))

	second, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestApplyToJob_EnqueueFailureRejects(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	f.cv(t, "u1", true)
	f.queue.err = errors.New("redis down")
	ctx := context.Background()

	_, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.Error(t, err)

	apps, err := f.svc.List(ctx, "u1", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, model.StatusRejected, apps[0].Status)
	assert.Contains(t, apps[0].Notes, "redis down")
	assert.Len(t, f.events.events, 1)
}

// ─── AutoApply ───────────────────────────────────────────────────────────────

func TestAutoApply_OnlyMatchedPostingsWithinBound(t *testing.T) {
	f := newFixture(t)
	f.cv(t, "u1", true)
	postings := []model.JobPosting{
		f.posting(t, "1", "go"),
		f.posting(t, "2"),
		f.posting(t, "3", "go"),
		f.posting(t, "4", "sql"),
	}
	filter := model.SearchFilter{ID: "f1", UserID: "u1", AutoApply: true, IsActive: true, MaxApplicationsPerDay: 2}

	n, err := f.svc.AutoApply(context.Background(), filter, postings)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.queue.ids, 2)

	// The bound is per day: a second pass the same day creates nothing.
	n, err = f.svc.AutoApply(context.Background(), filter, postings)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoApply_SkipsExistingApplications(t *testing.T) {
	f := newFixture(t)
	f.cv(t, "u1", true)
	p := f.posting(t, "1", "go")
	_, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)

	filter := model.SearchFilter{UserID: "u1", AutoApply: true, IsActive: true}
	n, err := f.svc.AutoApply(context.Background(), filter, []model.JobPosting{p})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoApply_NoDefaultCV(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1", "go")
	filter := model.SearchFilter{UserID: "u1", AutoApply: true, IsActive: true}

	n, err := f.svc.AutoApply(context.Background(), filter, []model.JobPosting{p})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoApply_Disabled(t *testing.T) {
	f := newFixture(t)
	f.cv(t, "u1", true)
	p := f.posting(t, "1", "go")

	n, err := f.svc.AutoApply(context.Background(), model.SearchFilter{UserID: "u1", IsActive: true}, []model.JobPosting{p})
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ─── Advance / notes ─────────────────────────────────────────────────────────

func appliedApplication(t *testing.T, f *fixture) *model.JobApplication {
	t.Helper()
	p := f.posting(t, "1")
	f.cv(t, "u1", true)
	ctx := context.Background()
	app, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)
	require.NoError(t, f.st.FinishApplication(ctx, app.ID, store.Outcome{Status: model.StatusApplied, At: fixedNow}))
	return app
}

func TestAdvance_RefusedWhilePending(t *testing.T) {
	f := newFixture(t)
	p := f.posting(t, "1")
	f.cv(t, "u1", true)
	app, err := f.svc.ApplyToJob(context.Background(), application.ApplyRequest{UserID: "u1", JobID: p.ID})
	require.NoError(t, err)

	_, err = f.svc.Advance(context.Background(), "u1", app.ID, "viewed")
	var pre *application.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestAdvance_FollowsStateMachine(t *testing.T) {
	f := newFixture(t)
	app := appliedApplication(t, f)
	ctx := context.Background()

	_, err := f.svc.Advance(ctx, "u1", app.ID, "offer")
	var ve *application.ValidationError
	require.ErrorAs(t, err, &ve)

	got, err := f.svc.Advance(ctx, "u1", app.ID, "viewed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusViewed, got.Status)
	assert.True(t, got.ResponseReceived)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0].(events.ApplicationUpdated)
	assert.Equal(t, "applied", ev.From)
	assert.Equal(t, "viewed", ev.To)

	_, err = f.svc.Advance(ctx, "u1", app.ID, "bogus")
	assert.ErrorAs(t, err, &ve)
}

func TestAdvance_OtherUser(t *testing.T) {
	f := newFixture(t)
	app := appliedApplication(t, f)

	_, err := f.svc.Advance(context.Background(), "u2", app.ID, "viewed")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t)
	app := appliedApplication(t, f)

	got, err := f.svc.AddNote(context.Background(), "u1", app.ID, "llamar el lunes")
	require.NoError(t, err)
	assert.Equal(t, "llamar el lunes", got.Notes)

	_, err = f.svc.AddNote(context.Background(), "u2", app.ID, "x")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestList_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.List(context.Background(), "u1", "HIRED", 0, 0)
	var ve *application.ValidationError
	assert.ErrorAs(t, err, &ve)
}

// ─── Stats ───────────────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.cv(t, "u1", true)
	ctx := context.Background()

	statuses := []model.ApplicationStatus{
		model.StatusApplied, model.StatusApplied, model.StatusRejected, model.StatusInterview,
	}
	for i, st := range statuses {
		p := f.posting(t, string(rune('a'+i)))
		app, err := f.svc.ApplyToJob(ctx, application.ApplyRequest{UserID: "u1", JobID: p.ID})
		require.NoError(t, err)
		require.NoError(t, f.st.FinishApplication(ctx, app.ID, store.Outcome{Status: st, At: fixedNow}))
	}

	stats, err := f.svc.Stats(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, application.DefaultStatsDays, stats.PeriodDays)
	assert.Equal(t, 4, stats.TotalApplications)
	assert.Equal(t, 4, stats.JobsFound)
	assert.Equal(t, 2, stats.ApplicationsByStatus[model.StatusApplied])
	assert.Equal(t, 4, stats.ApplicationsByPortal[model.PortalLaborum])
	assert.InDelta(t, 25.0, stats.SuccessRate, 0.001)
}

func TestStats_Empty(t *testing.T) {
	f := newFixture(t)
	stats, err := f.svc.Stats(context.Background(), "u1", 7)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalApplications)
	assert.Zero(t, stats.SuccessRate)
}

// ─── Analyze ─────────────────────────────────────────────────────────────────

func TestAnalyze_FallsBackWithoutAIConfig(t *testing.T) {
	f := newFixture(t)
	f.svc.WithProvider(ai.NewService(f.st, nil, time.Second, logger.NewTest(t)))
	p := model.JobPosting{
		Portal: model.PortalBNE, ExternalID: "a1", Title: "Go developer",
		Description: "go services", Requirements: []string{"go", "sql"},
	}
	_, err := f.st.UpsertPosting(context.Background(), &p)
	require.NoError(t, err)
	cv := f.cv(t, "u1", true)

	got, err := f.svc.Analyze(context.Background(), "u1", p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, cv.ID, got.CVID)
	assert.Equal(t, ai.FallbackCompatibility(cv, p), got.Compatibility)
	assert.Equal(t, ai.FallbackPersonalizedCV(cv), got.Summary)

	_, err = f.svc.Analyze(context.Background(), "u1", "missing", "")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = f.svc.Analyze(context.Background(), "u2", p.ID, "")
	var pre *application.PreconditionError
	assert.ErrorAs(t, err, &pre)
}
