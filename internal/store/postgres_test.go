package store_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

func newMock(t *testing.T) (*store.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return store.NewPostgres(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestPostgres_CreateCVDefaultUnsetsOthers(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE cvs SET is_default = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO cvs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cv := &model.CVData{UserID: "u1", Title: "Backend", IsDefault: true, Skills: []string{"go"}}
	require.NoError(t, s.CreateCV(context.Background(), cv))
	assert.NotEmpty(t, cv.ID)
}

func TestPostgres_CreateCVNonDefaultSkipsUnset(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO cvs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateCV(context.Background(), &model.CVData{UserID: "u1"}))
}

func TestPostgres_SetDefaultCVNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM cvs WHERE id = $1 AND user_id = $2")).
		WithArgs("cv-x", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := s.SetDefaultCV(context.Background(), "u1", "cv-x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_SetDefaultCV(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM cvs")).
		WithArgs("cv-1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(q("UPDATE cvs SET is_default = FALSE")).
		WithArgs("u1", "cv-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("UPDATE cvs SET is_default = TRUE")).
		WithArgs("cv-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SetDefaultCV(context.Background(), "u1", "cv-1"))
}

func TestPostgres_SetDefaultCVConcurrentConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM cvs")).
		WithArgs("cv-2", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(q("UPDATE cvs SET is_default = FALSE")).
		WithArgs("u1", "cv-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE cvs SET is_default = TRUE")).
		WithArgs("cv-2", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "cvs_one_default_per_user"})
	mock.ExpectRollback()

	err := s.SetDefaultCV(context.Background(), "u1", "cv-2")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestPostgres_UpsertPostingExisting(t *testing.T) {
	s, mock := newMock(t)
	firstSeen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(q("INSERT INTO job_postings")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scraped_at", "inserted"}).
			AddRow("existing-id", firstSeen, false))

	p := &model.JobPosting{Portal: model.PortalLinkedIn, ExternalID: "3812", Title: "Go Developer"}
	created, err := s.UpsertPosting(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "existing-id", p.ID)
	assert.Equal(t, firstSeen, p.ScrapedAt)
}

func TestPostgres_CreateApplicationConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CreateApplication(context.Background(), &model.JobApplication{UserID: "u1", JobID: "j1", CVID: "c1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestPostgres_FinishApplicationStale(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := s.FinishApplication(context.Background(), "app-1", store.Outcome{Status: model.StatusApplied, At: time.Now()})
	assert.ErrorIs(t, err, store.ErrStaleStatus)
}

func TestPostgres_FinishApplicationMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM applications")).
		WillReturnError(sql.ErrNoRows)

	err := s.FinishApplication(context.Background(), "app-1", store.Outcome{Status: model.StatusRejected, At: time.Now()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func applicationRow() *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "user_id", "job_id", "cv_id", "cover_letter", "custom_message", "portal_data",
		"status", "applied_at", "last_update", "response_received", "interview_scheduled", "notes", "created_at",
	}).AddRow(
		"app-1", "u1", "j1", "c1", "Estimados...", "", []byte(`{"method":"bne_portal"}`),
		"applied", now, now, false, nil, "application sent to Acme", now,
	)
}

func TestPostgres_GetApplication(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(applicationRow())

	a, err := s.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, a.Status)
	assert.Equal(t, "bne_portal", a.PortalData["method"])
	require.NotNil(t, a.AppliedAt)
	assert.Nil(t, a.InterviewScheduled)
}

func TestPostgres_TransitionApplication(t *testing.T) {
	s, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectQuery(q("UPDATE applications")).
		WithArgs("app-1", "u1", model.StatusApplied, model.StatusViewed, at, true).
		WillReturnRows(applicationRow())

	a, err := s.TransitionApplication(context.Background(), "u1", "app-1", model.StatusApplied, model.StatusViewed, at)
	require.NoError(t, err)
	assert.Equal(t, "app-1", a.ID)
}

func TestPostgres_DeactivateFilters(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("UPDATE search_filters SET is_active = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeactivateFilters(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgres_ListActiveFilters(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "keywords", "excluded_keywords", "job_types", "work_modes", "locations",
		"salary_min", "salary_max", "experience_years_min", "experience_years_max", "industries", "portals",
		"auto_apply", "max_applications_per_day", "is_active", "created_at", "updated_at",
	}).AddRow(
		"f1", "u1", []byte(`["python","django"]`), []byte(`["call center"]`), []byte(`[]`), []byte(`["remote"]`),
		[]byte(`["Santiago"]`), 1000000, nil, nil, nil, []byte(`[]`), []byte(`["linkedin","bne"]`),
		true, 10, true, now, now,
	)
	mock.ExpectQuery(q("FROM search_filters WHERE user_id = $1 AND is_active")).
		WithArgs("u1").
		WillReturnRows(rows)

	filters, err := s.ListFilters(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, filters, 1)

	f := filters[0]
	assert.Equal(t, []string{"python", "django"}, f.Keywords)
	assert.Equal(t, []model.Portal{model.PortalLinkedIn, model.PortalBNE}, f.Portals)
	require.NotNil(t, f.SalaryMin)
	assert.Equal(t, 1000000, *f.SalaryMin)
	assert.Nil(t, f.SalaryMax)
	assert.Equal(t, 10, f.MaxApplicationsPerDay)
}

func TestPostgres_GetAIConfigMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM ai_configs WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetAIConfig(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_ApplicationStats(t *testing.T) {
	s, mock := newMock(t)
	since := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(q("SELECT status, COUNT(*) FROM applications")).
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("applied", 3).AddRow("interview", 1))
	mock.ExpectQuery(q("SELECT p.portal, COUNT(*) FROM applications a")).
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"portal", "count"}).AddRow("linkedin", 4))

	byStatus, byPortal, err := s.ApplicationStats(context.Background(), "u1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, byStatus[model.StatusApplied])
	assert.Equal(t, 1, byStatus[model.StatusInterview])
	assert.Equal(t, 4, byPortal[model.PortalLinkedIn])
}
