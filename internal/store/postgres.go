package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/autoapply-service/internal/model"
)

// Postgres implements Store on top of database/sql with the pgx driver.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres returns a Postgres store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ Store = (*Postgres)(nil)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// jsonb encodes v for a JSONB parameter, substituting empty for nil.
func jsonb(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unjson(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// ─── Users ───────────────────────────────────────────────────────────────────

func (s *Postgres) CreateUser(ctx context.Context, u *model.UserProfile) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone, location, linkedin_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.Phone, u.Location, u.LinkedInURL, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("createUser: %w", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id string) (*model.UserProfile, error) {
	var u model.UserProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, location, linkedin_url, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Location, &u.LinkedInURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ─── CVs ─────────────────────────────────────────────────────────────────────

const cvColumns = `id, user_id, title, personal_info, experience, education, skills,
	certifications, languages, raw_text, file_path, is_default, created_at, updated_at`

func scanCV(row scanner) (*model.CVData, error) {
	var cv model.CVData
	var personal, exp, edu, skills, certs, langs []byte
	if err := row.Scan(
		&cv.ID, &cv.UserID, &cv.Title, &personal, &exp, &edu, &skills,
		&certs, &langs, &cv.RawText, &cv.FilePath, &cv.IsDefault, &cv.CreatedAt, &cv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{personal, &cv.PersonalInfo}, {exp, &cv.Experience}, {edu, &cv.Education},
		{skills, &cv.Skills}, {certs, &cv.Certifications}, {langs, &cv.Languages},
	} {
		if err := unjson(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode cv %s: %w", cv.ID, err)
		}
	}
	return &cv, nil
}

// CreateCV inserts cv. When cv.IsDefault is set, the user's other CVs lose
// the flag inside the same transaction.
func (s *Postgres) CreateCV(ctx context.Context, cv *model.CVData) error {
	if cv.ID == "" {
		cv.ID = uuid.NewString()
	}
	now := s.now()
	cv.CreatedAt, cv.UpdatedAt = now, now

	args := []any{cv.ID, cv.UserID, cv.Title}
	for _, v := range []struct {
		val   any
		empty string
	}{
		{cv.PersonalInfo, "{}"}, {cv.Experience, "[]"}, {cv.Education, "[]"},
		{cv.Skills, "[]"}, {cv.Certifications, "[]"}, {cv.Languages, "[]"},
	} {
		enc, err := jsonb(v.val, v.empty)
		if err != nil {
			return fmt.Errorf("createCV encode: %w", err)
		}
		args = append(args, enc)
	}
	args = append(args, cv.RawText, cv.FilePath, cv.IsDefault, cv.CreatedAt, cv.UpdatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("createCV begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cv.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cvs SET is_default = FALSE, updated_at = $2 WHERE user_id = $1 AND is_default`,
			cv.UserID, now,
		); err != nil {
			return fmt.Errorf("createCV unset default: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cvs (`+cvColumns+`)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11, $12, $13, $14)`,
		args...,
	); err != nil {
		return fmt.Errorf("createCV insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("createCV commit: %w", err)
	}
	return nil
}

func (s *Postgres) GetCV(ctx context.Context, id string) (*model.CVData, error) {
	cv, err := scanCV(s.db.QueryRowContext(ctx, `SELECT `+cvColumns+` FROM cvs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return cv, nil
}

func (s *Postgres) GetDefaultCV(ctx context.Context, userID string) (*model.CVData, error) {
	cv, err := scanCV(s.db.QueryRowContext(ctx,
		`SELECT `+cvColumns+` FROM cvs WHERE user_id = $1 AND is_default LIMIT 1`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return cv, nil
}

func (s *Postgres) ListCVs(ctx context.Context, userID string) ([]model.CVData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cvColumns+` FROM cvs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listCVs query: %w", err)
	}
	defer rows.Close()

	cvs := make([]model.CVData, 0)
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, fmt.Errorf("listCVs scan: %w", err)
		}
		cvs = append(cvs, *cv)
	}
	return cvs, rows.Err()
}

// SetDefaultCV makes cvID the only default CV of userID.
func (s *Postgres) SetDefaultCV(ctx context.Context, userID, cvID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("setDefaultCV begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM cvs WHERE id = $1 AND user_id = $2 FOR UPDATE`, cvID, userID,
	).Scan(&one); err != nil {
		return notFound(err)
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE cvs SET is_default = FALSE, updated_at = $3 WHERE user_id = $1 AND id <> $2 AND is_default`,
		userID, cvID, now,
	); err != nil {
		return fmt.Errorf("setDefaultCV unset: %w", err)
	}
	// A concurrent SetDefaultCV for another CV of the same user loses on
	// cvs_one_default_per_user.
	if _, err := tx.ExecContext(ctx,
		`UPDATE cvs SET is_default = TRUE, updated_at = $2 WHERE id = $1`, cvID, now,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("setDefaultCV set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("setDefaultCV commit: %w", err)
	}
	return nil
}

// ─── Filters ─────────────────────────────────────────────────────────────────

const filterColumns = `id, user_id, keywords, excluded_keywords, job_types, work_modes, locations,
	salary_min, salary_max, experience_years_min, experience_years_max, industries, portals,
	auto_apply, max_applications_per_day, is_active, created_at, updated_at`

func scanFilter(row scanner) (*model.SearchFilter, error) {
	var f model.SearchFilter
	var kws, excl, jobTypes, workModes, locs, industries, portals []byte
	if err := row.Scan(
		&f.ID, &f.UserID, &kws, &excl, &jobTypes, &workModes, &locs,
		&f.SalaryMin, &f.SalaryMax, &f.ExperienceYearsMin, &f.ExperienceYearsMax, &industries, &portals,
		&f.AutoApply, &f.MaxApplicationsPerDay, &f.IsActive, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, d := range []struct {
		raw []byte
		dst any
	}{
		{kws, &f.Keywords}, {excl, &f.ExcludedKeywords}, {jobTypes, &f.JobTypes},
		{workModes, &f.WorkModes}, {locs, &f.Locations}, {industries, &f.Industries}, {portals, &f.Portals},
	} {
		if err := unjson(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decode filter %s: %w", f.ID, err)
		}
	}
	return &f, nil
}

func (s *Postgres) CreateFilter(ctx context.Context, f *model.SearchFilter) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt = now, now

	enc := make([]string, 0, 7)
	for _, v := range []any{f.Keywords, f.ExcludedKeywords, f.JobTypes, f.WorkModes, f.Locations, f.Industries, f.Portals} {
		e, err := jsonb(v, "[]")
		if err != nil {
			return fmt.Errorf("createFilter encode: %w", err)
		}
		enc = append(enc, e)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_filters (`+filterColumns+`)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb,
		         $8, $9, $10, $11, $12::jsonb, $13::jsonb, $14, $15, $16, $17, $18)`,
		f.ID, f.UserID, enc[0], enc[1], enc[2], enc[3], enc[4],
		f.SalaryMin, f.SalaryMax, f.ExperienceYearsMin, f.ExperienceYearsMax, enc[5], enc[6],
		f.AutoApply, f.MaxApplicationsPerDay, f.IsActive, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("createFilter: %w", err)
	}
	return nil
}

func (s *Postgres) ListFilters(ctx context.Context, userID string, activeOnly bool) ([]model.SearchFilter, error) {
	query := `SELECT ` + filterColumns + ` FROM search_filters WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listFilters query: %w", err)
	}
	defer rows.Close()

	filters := make([]model.SearchFilter, 0)
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("listFilters scan: %w", err)
		}
		filters = append(filters, *f)
	}
	return filters, rows.Err()
}

func (s *Postgres) ListActiveFilterUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM search_filters WHERE is_active ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listActiveFilterUsers query: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listActiveFilterUsers scan: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *Postgres) DeactivateFilters(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_filters SET is_active = FALSE, updated_at = $2 WHERE user_id = $1 AND is_active`,
		userID, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivateFilters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivateFilters rows: %w", err)
	}
	return int(n), nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

const postingColumns = `id, portal, external_id, url, title, company, company_url, location,
	work_mode, job_type, salary, description, requirements, benefits, posted_date,
	keywords_matched, match_percentage, scraped_at, updated_at`

func scanPosting(row scanner) (*model.JobPosting, error) {
	var p model.JobPosting
	var reqs, benefits, kws []byte
	if err := row.Scan(
		&p.ID, &p.Portal, &p.ExternalID, &p.URL, &p.Title, &p.Company, &p.CompanyURL, &p.Location,
		&p.WorkMode, &p.JobType, &p.Salary, &p.Description, &reqs, &benefits, &p.PostedDate,
		&kws, &p.MatchPercentage, &p.ScrapedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := errors.Join(unjson(reqs, &p.Requirements), unjson(benefits, &p.Benefits), unjson(kws, &p.KeywordsMatched)); err != nil {
		return nil, fmt.Errorf("decode posting %s: %w", p.ID, err)
	}
	return &p, nil
}

// UpsertPosting deduplicates on (portal, external_id). On conflict only the
// descriptive fields are refreshed; scraped_at keeps the first sighting and an
// empty description never overwrites a stored one.
func (s *Postgres) UpsertPosting(ctx context.Context, p *model.JobPosting) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	if p.ScrapedAt.IsZero() {
		p.ScrapedAt = now
	}
	p.UpdatedAt = now

	reqs, err1 := jsonb(p.Requirements, "[]")
	benefits, err2 := jsonb(p.Benefits, "[]")
	kws, err3 := jsonb(p.KeywordsMatched, "[]")
	if err := errors.Join(err1, err2, err3); err != nil {
		return false, fmt.Errorf("upsertPosting encode: %w", err)
	}

	var inserted bool
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO job_postings (`+postingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb, $15,
		         $16::jsonb, $17, $18, $19)
		 ON CONFLICT (portal, external_id) DO UPDATE SET
		     url              = EXCLUDED.url,
		     title            = EXCLUDED.title,
		     company          = EXCLUDED.company,
		     company_url      = EXCLUDED.company_url,
		     location         = EXCLUDED.location,
		     work_mode        = EXCLUDED.work_mode,
		     job_type         = EXCLUDED.job_type,
		     salary           = EXCLUDED.salary,
		     description      = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description
		                             ELSE job_postings.description END,
		     requirements     = EXCLUDED.requirements,
		     benefits         = EXCLUDED.benefits,
		     posted_date      = COALESCE(EXCLUDED.posted_date, job_postings.posted_date),
		     keywords_matched = EXCLUDED.keywords_matched,
		     match_percentage = EXCLUDED.match_percentage,
		     updated_at       = EXCLUDED.updated_at
		 RETURNING id, scraped_at, (xmax = 0) AS inserted`,
		p.ID, p.Portal, p.ExternalID, p.URL, p.Title, p.Company, p.CompanyURL, p.Location,
		p.WorkMode, p.JobType, p.Salary, p.Description, reqs, benefits, p.PostedDate,
		kws, p.MatchPercentage, p.ScrapedAt, p.UpdatedAt,
	).Scan(&p.ID, &p.ScrapedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsertPosting: %w", err)
	}
	return inserted, nil
}

func (s *Postgres) GetPosting(ctx context.Context, id string) (*model.JobPosting, error) {
	p, err := scanPosting(s.db.QueryRowContext(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Postgres) ListPostings(ctx context.Context, q PostingQuery) ([]model.JobPosting, error) {
	limit, offset := pageBounds(q.Limit, q.Offset)

	var (
		where []string
		args  []any
	)
	if q.Portal != "" {
		args = append(args, q.Portal)
		where = append(where, fmt.Sprintf("portal = $%d", len(args)))
	}
	query := `SELECT ` + postingColumns + ` FROM job_postings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY scraped_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listPostings query: %w", err)
	}
	defer rows.Close()

	postings := make([]model.JobPosting, 0)
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("listPostings scan: %w", err)
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

func (s *Postgres) CountPostingsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_postings WHERE scraped_at >= $1`, since,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("countPostingsSince: %w", err)
	}
	return n, nil
}

// ─── Applications ────────────────────────────────────────────────────────────

const applicationColumns = `id, user_id, job_id, cv_id, cover_letter, custom_message, portal_data,
	status, applied_at, last_update, response_received, interview_scheduled, notes, created_at`

func scanApplication(row scanner) (*model.JobApplication, error) {
	var a model.JobApplication
	var portalData []byte
	if err := row.Scan(
		&a.ID, &a.UserID, &a.JobID, &a.CVID, &a.CoverLetter, &a.CustomMessage, &portalData,
		&a.Status, &a.AppliedAt, &a.LastUpdate, &a.ResponseReceived, &a.InterviewScheduled, &a.Notes, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := unjson(portalData, &a.PortalData); err != nil {
		return nil, fmt.Errorf("decode application %s: %w", a.ID, err)
	}
	return &a, nil
}

// CreateApplication relies on the partial unique index over active
// applications; a conflicting insert affects no row.
func (s *Postgres) CreateApplication(ctx context.Context, a *model.JobApplication) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt, a.LastUpdate = now, now
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	portalData, err := jsonb(a.PortalData, "{}")
	if err != nil {
		return fmt.Errorf("createApplication encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (`+applicationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT DO NOTHING`,
		a.ID, a.UserID, a.JobID, a.CVID, a.CoverLetter, a.CustomMessage, portalData,
		a.Status, a.AppliedAt, a.LastUpdate, a.ResponseReceived, a.InterviewScheduled, a.Notes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("createApplication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("createApplication rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Postgres) GetApplication(ctx context.Context, id string) (*model.JobApplication, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Postgres) FindActiveApplication(ctx context.Context, userID, jobID string) (*model.JobApplication, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE user_id = $1 AND job_id = $2 AND status <> 'rejected' LIMIT 1`, userID, jobID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Postgres) ListApplications(ctx context.Context, q ApplicationQuery) ([]model.JobApplication, error) {
	limit, offset := pageBounds(q.Limit, q.Offset)

	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id = $1`
	if q.Status != "" {
		rows, err = s.db.QueryContext(ctx,
			base+` AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			q.UserID, q.Status, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			base+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			q.UserID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listApplications query: %w", err)
	}
	defer rows.Close()

	apps := make([]model.JobApplication, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listApplications scan: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// staleOrMissing distinguishes a guard miss from an unknown id.
func (s *Postgres) staleOrMissing(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStaleStatus
}

func (s *Postgres) FinishApplication(ctx context.Context, id string, o Outcome) error {
	portalData, err := jsonb(o.PortalData, "{}")
	if err != nil {
		return fmt.Errorf("finishApplication encode: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications
		 SET status       = $2,
		     notes        = $3,
		     cover_letter = $4,
		     portal_data  = $5::jsonb,
		     applied_at   = $6,
		     last_update  = $7
		 WHERE id = $1 AND status = 'pending'`,
		id, o.Status, o.Notes, o.CoverLetter, portalData, o.AppliedAt, o.At,
	)
	if err != nil {
		return fmt.Errorf("finishApplication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishApplication rows: %w", err)
	}
	if n == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

func (s *Postgres) TransitionApplication(
	ctx context.Context,
	userID, id string,
	from, to model.ApplicationStatus,
	at time.Time,
) (*model.JobApplication, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`UPDATE applications
		 SET status            = $4,
		     last_update       = $5,
		     response_received = response_received OR $6
		 WHERE id = $1 AND user_id = $2 AND status = $3
		 RETURNING `+applicationColumns,
		id, userID, from, to, at, isResponse(to),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("transitionApplication: %w", err)
	}
	return a, nil
}

func (s *Postgres) UpdateNotes(ctx context.Context, userID, id, notes string) (*model.JobApplication, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`UPDATE applications SET notes = $3, last_update = $4
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+applicationColumns,
		id, userID, notes, s.now(),
	))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Postgres) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("countApplicationsSince: %w", err)
	}
	return n, nil
}

func (s *Postgres) ApplicationStats(
	ctx context.Context,
	userID string,
	since time.Time,
) (map[model.ApplicationStatus]int, map[model.Portal]int, error) {
	byStatus := make(map[model.ApplicationStatus]int)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications
		 WHERE user_id = $1 AND created_at >= $2 GROUP BY status`, userID, since)
	if err != nil {
		return nil, nil, fmt.Errorf("applicationStats by status: %w", err)
	}
	for rows.Next() {
		var (
			st model.ApplicationStatus
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("applicationStats scan: %w", err)
		}
		byStatus[st] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	byPortal := make(map[model.Portal]int)
	rows, err = s.db.QueryContext(ctx,
		`SELECT p.portal, COUNT(*) FROM applications a
		 JOIN job_postings p ON p.id = a.job_id
		 WHERE a.user_id = $1 AND a.created_at >= $2 GROUP BY p.portal`, userID, since)
	if err != nil {
		return nil, nil, fmt.Errorf("applicationStats by portal: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p model.Portal
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, nil, fmt.Errorf("applicationStats scan: %w", err)
		}
		byPortal[p] = n
	}
	return byStatus, byPortal, rows.Err()
}

// ─── AI configs ──────────────────────────────────────────────────────────────

func (s *Postgres) SaveAIConfig(ctx context.Context, c *model.AIConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ai_configs (id, user_id, api_key, personalization_enabled, auto_cover_letter,
		                         auto_form_fill, response_style, cv_customization_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE SET
		     api_key                 = EXCLUDED.api_key,
		     personalization_enabled = EXCLUDED.personalization_enabled,
		     auto_cover_letter       = EXCLUDED.auto_cover_letter,
		     auto_form_fill          = EXCLUDED.auto_form_fill,
		     response_style          = EXCLUDED.response_style,
		     cv_customization_level  = EXCLUDED.cv_customization_level,
		     updated_at              = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		c.ID, c.UserID, c.APIKey, c.PersonalizationEnabled, c.AutoCoverLetter,
		c.AutoFormFill, c.ResponseStyle, c.CVCustomizationLevel, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("saveAIConfig: %w", err)
	}
	return nil
}

func (s *Postgres) GetAIConfig(ctx context.Context, userID string) (*model.AIConfig, error) {
	var c model.AIConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, api_key, personalization_enabled, auto_cover_letter, auto_form_fill,
		        response_style, cv_customization_level, created_at, updated_at
		 FROM ai_configs WHERE user_id = $1`, userID,
	).Scan(&c.ID, &c.UserID, &c.APIKey, &c.PersonalizationEnabled, &c.AutoCoverLetter, &c.AutoFormFill,
		&c.ResponseStyle, &c.CVCustomizationLevel, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}
