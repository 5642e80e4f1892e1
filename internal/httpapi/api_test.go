package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/httpapi"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/profile"
	"jobmate/autoapply-service/internal/scheduler"
	"jobmate/autoapply-service/internal/store"
)

type fakeQueue struct {
	mu     sync.Mutex
	passes []string
	apps   []string
}

func (q *fakeQueue) EnqueueScrapePass(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.passes = append(q.passes, userID)
	return nil
}

func (q *fakeQueue) EnqueueApplication(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.apps = append(q.apps, id)
	return nil
}

type server struct {
	t      *testing.T
	router *gin.Engine
	st     *store.Memory
	queue  *fakeQueue
}

func newServer(t *testing.T, checks map[string]httpapi.Check) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewTest(t)
	st := store.NewMemory()
	q := &fakeQueue{}
	provider := ai.NewService(st, nil, time.Second, log)
	profiles := profile.NewService(st, provider, log)
	apps := application.NewService(st, q, nil, log).WithProvider(provider)
	sched := scheduler.New(st, q, 6, false, log)

	r := httpapi.NewRouter(profiles, apps, sched, httpapi.Options{
		Service: "autoapply-service", Version: "test", MetricsPath: "/metrics", Checks: checks,
	}, log)
	return &server{t: t, router: r, st: st, queue: q}
}

func (s *server) do(method, path, userID, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(httpapi.UserHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) user() string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/users", "", `{"name":"Ana","email":"ana@example.com"}`)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.UserProfile](s.t, rec).ID
}

func (s *server) posting() model.JobPosting {
	s.t.Helper()
	p := model.JobPosting{Portal: model.PortalBNE, ExternalID: "x1", Title: "Go dev", Company: "Acme", Description: "go"}
	_, err := s.st.UpsertPosting(context.Background(), &p)
	require.NoError(s.t, err)
	return p
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	s := newServer(t, map[string]httpapi.Check{"postgres": func(context.Context) error { return nil }})
	rec := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "autoapply-service", body["service"])

	s = newServer(t, map[string]httpapi.Check{"redis": func(context.Context) error { return errors.New("down") }})
	rec = s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]any](t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUserScopedRoutesRequireHeader(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(http.MethodGet, "/applications", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUser_Validation(t *testing.T) {
	s := newServer(t, nil)
	s.user()

	rec := s.do(http.MethodPost, "/users", "", `{"name":"Ana","email":"ana@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicate email")

	rec = s.do(http.MethodPost, "/users", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchStartStop(t *testing.T) {
	s := newServer(t, nil)
	uid := s.user()

	rec := s.do(http.MethodPost, "/search/start", uid, "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code, "no active filter yet")

	rec = s.do(http.MethodPost, "/filters", uid, `{"keywords":["go"],"portals":["bne"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f := decode[model.SearchFilter](t, rec)
	assert.True(t, f.IsActive)

	rec = s.do(http.MethodPost, "/search/start", uid, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{uid}, s.queue.passes)

	rec = s.do(http.MethodPost, "/search/stop", uid, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["filters_deactivated"])

	rec = s.do(http.MethodGet, "/filters?active=true", uid, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.SearchFilter](t, rec))
}

func TestApplyFlow(t *testing.T) {
	s := newServer(t, nil)
	uid := s.user()
	p := s.posting()

	rec := s.do(http.MethodPost, "/jobs/"+p.ID+"/apply", uid, "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code, "no default cv")

	rec = s.do(http.MethodPost, "/cvs", uid, `{"title":"Backend","skills":["go"],"raw_text":"go developer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/jobs/"+p.ID+"/apply", uid, `{"custom_message":"hola"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	app := decode[model.JobApplication](t, rec)
	assert.Equal(t, model.StatusPending, app.Status)
	assert.Equal(t, []string{app.ID}, s.queue.apps)

	rec = s.do(http.MethodPost, "/jobs/"+p.ID+"/apply", uid, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, app.ID, decode[map[string]any](t, rec)["application_id"])

	rec = s.do(http.MethodPost, "/jobs/missing/apply", uid, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/applications/"+app.ID, "someone-else", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/applications/"+app.ID+"/move", uid, `{"status":"viewed"}`)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code, "still pending")
}

func TestMoveAndNote(t *testing.T) {
	s := newServer(t, nil)
	uid := s.user()
	p := s.posting()
	ctx := context.Background()

	app := model.JobApplication{UserID: uid, JobID: p.ID, CVID: "cv", Status: model.StatusPending}
	require.NoError(t, s.st.CreateApplication(ctx, &app))
	require.NoError(t, s.st.FinishApplication(ctx, app.ID, store.Outcome{Status: model.StatusApplied, At: time.Now()}))

	rec := s.do(http.MethodPost, "/applications/"+app.ID+"/move", uid, `{"status":"offer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "skipping viewed and interview")

	rec = s.do(http.MethodPost, "/applications/"+app.ID+"/move", uid, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/applications/"+app.ID+"/move", uid, `{"status":"viewed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusViewed, decode[model.JobApplication](t, rec).Status)

	rec = s.do(http.MethodPost, "/applications/"+app.ID+"/note", uid, `{"note":"llamar el lunes"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "llamar el lunes", decode[model.JobApplication](t, rec).Notes)

	rec = s.do(http.MethodGet, "/applications?status=viewed", uid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.JobApplication](t, rec), 1)

	rec = s.do(http.MethodGet, "/applications?status=bogus", uid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/stats?days=7", uid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.UserStats](t, rec)
	assert.Equal(t, 7, stats.PeriodDays)
	assert.Equal(t, 1, stats.TotalApplications)
}

func TestJobsAndAnalysis(t *testing.T) {
	s := newServer(t, nil)
	uid := s.user()
	p := s.posting()

	rec := s.do(http.MethodGet, "/jobs?portal=bne&limit=10", uid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.JobPosting](t, rec), 1)

	rec = s.do(http.MethodGet, "/jobs?limit=abc", uid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/jobs/"+p.ID, uid, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/cvs", uid, `{"title":"Backend","raw_text":"go developer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/jobs/"+p.ID+"/analysis", uid, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[application.Analysis](t, rec)
	assert.Equal(t, p.ID, a.JobID)
	assert.NotEmpty(t, a.Compatibility.Recommendation)
}

func TestAIConfig(t *testing.T) {
	s := newServer(t, nil)
	uid := s.user()

	rec := s.do(http.MethodGet, "/ai-config", uid, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/ai-config", uid, `{"api_key":"secret-key-9876","response_style":"formal"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret-key")

	rec = s.do(http.MethodGet, "/ai-config", uid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[model.AIConfig](t, rec)
	assert.Equal(t, model.StyleFormal, cfg.ResponseStyle)
	assert.True(t, strings.HasSuffix(cfg.APIKey, "9876"))
	assert.NotContains(t, cfg.APIKey, "secret")

	rec = s.do(http.MethodPut, "/ai-config", uid, `{"response_style":"rude"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
