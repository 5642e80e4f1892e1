// Package store persists users, CVs, search filters, postings, applications
// and AI configurations.
//
// Two implementations share the same contract: Postgres for deployments and
// Memory for tests and single-process development runs.
package store

import (
	"context"
	"errors"
	"time"

	"jobmate/autoapply-service/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist or does not belong
	// to the requesting user.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a uniqueness rule rejects a write.
	ErrConflict = errors.New("record already exists")
	// ErrStaleStatus is returned by guarded application updates when the
	// stored status no longer matches the expected one.
	ErrStaleStatus = errors.New("application status changed concurrently")
)

// PostingQuery selects postings, newest first.
type PostingQuery struct {
	Portal model.Portal
	Limit  int
	Offset int
}

// ApplicationQuery selects a user's applications, newest first.
type ApplicationQuery struct {
	UserID string
	Status model.ApplicationStatus
	Limit  int
	Offset int
}

// Outcome is the terminal write of an application processing run.
type Outcome struct {
	Status      model.ApplicationStatus
	Notes       string
	CoverLetter string
	PortalData  map[string]any
	AppliedAt   *time.Time
	At          time.Time
}

// Users persists user profiles.
type Users interface {
	CreateUser(ctx context.Context, u *model.UserProfile) error
	GetUser(ctx context.Context, id string) (*model.UserProfile, error)
}

// CVs persists curricula. Marking a CV as default unsets every other default
// of the same user in the same write.
type CVs interface {
	CreateCV(ctx context.Context, cv *model.CVData) error
	GetCV(ctx context.Context, id string) (*model.CVData, error)
	GetDefaultCV(ctx context.Context, userID string) (*model.CVData, error)
	ListCVs(ctx context.Context, userID string) ([]model.CVData, error)
	SetDefaultCV(ctx context.Context, userID, cvID string) error
}

// Filters persists search filters.
type Filters interface {
	CreateFilter(ctx context.Context, f *model.SearchFilter) error
	ListFilters(ctx context.Context, userID string, activeOnly bool) ([]model.SearchFilter, error)
	ListActiveFilterUsers(ctx context.Context) ([]string, error)
	DeactivateFilters(ctx context.Context, userID string) (int, error)
}

// Postings persists normalised job postings keyed by (portal, external id).
type Postings interface {
	// UpsertPosting inserts p or refreshes the descriptive fields of the
	// existing row with the same (portal, external id). p.ID is set to the
	// stored id either way.
	UpsertPosting(ctx context.Context, p *model.JobPosting) (created bool, err error)
	GetPosting(ctx context.Context, id string) (*model.JobPosting, error)
	ListPostings(ctx context.Context, q PostingQuery) ([]model.JobPosting, error)
	CountPostingsSince(ctx context.Context, since time.Time) (int, error)
}

// Applications persists job applications.
type Applications interface {
	// CreateApplication returns ErrConflict when the user already has an
	// active (non-rejected) application for the same posting.
	CreateApplication(ctx context.Context, a *model.JobApplication) error
	GetApplication(ctx context.Context, id string) (*model.JobApplication, error)
	FindActiveApplication(ctx context.Context, userID, jobID string) (*model.JobApplication, error)
	ListApplications(ctx context.Context, q ApplicationQuery) ([]model.JobApplication, error)
	// FinishApplication writes the outcome only while the application is
	// still pending; otherwise it returns ErrStaleStatus.
	FinishApplication(ctx context.Context, id string, o Outcome) error
	// TransitionApplication moves an application from one status to another
	// with compare-and-set semantics.
	TransitionApplication(ctx context.Context, userID, id string, from, to model.ApplicationStatus, at time.Time) (*model.JobApplication, error)
	UpdateNotes(ctx context.Context, userID, id, notes string) (*model.JobApplication, error)
	CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	ApplicationStats(ctx context.Context, userID string, since time.Time) (map[model.ApplicationStatus]int, map[model.Portal]int, error)
}

// AIConfigs persists the single AI configuration of each user.
type AIConfigs interface {
	// SaveAIConfig replaces any existing configuration of the user.
	SaveAIConfig(ctx context.Context, c *model.AIConfig) error
	GetAIConfig(ctx context.Context, userID string) (*model.AIConfig, error)
}

// Store is the full persistence contract.
type Store interface {
	Users
	CVs
	Filters
	Postings
	Applications
	AIConfigs
}

// isResponse reports whether an external advance implies the employer replied.
func isResponse(s model.ApplicationStatus) bool {
	switch s {
	case model.StatusViewed, model.StatusInterview, model.StatusOffer:
		return true
	}
	return false
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
