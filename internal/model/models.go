// Package model defines the shared data structures of the autoapply service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ─── Portals ─────────────────────────────────────────────────────────────────

// Portal identifies an external employment portal.
type Portal string

const (
	PortalLinkedIn   Portal = "linkedin"
	PortalLaborum    Portal = "laborum"
	PortalBNE        Portal = "bne"
	PortalTrabajando Portal = "trabajando"
	PortalAdzuna     Portal = "adzuna"
)

// AllPortals lists every portal the service knows how to talk to.
func AllPortals() []Portal {
	return []Portal{PortalLinkedIn, PortalLaborum, PortalBNE, PortalTrabajando, PortalAdzuna}
}

// ParsePortal converts a raw string to a Portal.
func ParsePortal(s string) (Portal, error) {
	p := Portal(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPortals() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown portal %q", s)
}

// JobType and WorkMode are free-form portal labels normalised to lowercase.
type (
	JobType  string
	WorkMode string
)

const (
	JobTypeFullTime   JobType = "full_time"
	JobTypePartTime   JobType = "part_time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
	JobTypeFreelance  JobType = "freelance"

	WorkModeRemote WorkMode = "remote"
	WorkModeOnsite WorkMode = "onsite"
	WorkModeHybrid WorkMode = "hybrid"
)

// ─── Users, CVs, filters ─────────────────────────────────────────────────────

// UserProfile is the owner of every other record.
type UserProfile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Location    string    `json:"location,omitempty"`
	LinkedInURL string    `json:"linkedin_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CVData is one curriculum of a user. At most one CV per user is the default.
type CVData struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Title          string           `json:"title"`
	PersonalInfo   map[string]any   `json:"personal_info"`
	Experience     []map[string]any `json:"experience"`
	Education      []map[string]any `json:"education"`
	Skills         []string         `json:"skills"`
	Certifications []string         `json:"certifications"`
	Languages      []map[string]any `json:"languages"`
	RawText        string           `json:"raw_text"`
	FilePath       string           `json:"file_path,omitempty"`
	IsDefault      bool             `json:"is_default"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CandidateName returns the name recorded in personal_info, if any.
func (c CVData) CandidateName() string {
	if v, ok := c.PersonalInfo["name"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// SearchFilter describes what a user is looking for and where to look.
type SearchFilter struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Keywords              []string   `json:"keywords"`
	ExcludedKeywords      []string   `json:"excluded_keywords"`
	JobTypes              []JobType  `json:"job_types"`
	WorkModes             []WorkMode `json:"work_modes"`
	Locations             []string   `json:"locations"`
	SalaryMin             *int       `json:"salary_min,omitempty"`
	SalaryMax             *int       `json:"salary_max,omitempty"`
	ExperienceYearsMin    *int       `json:"experience_years_min,omitempty"`
	ExperienceYearsMax    *int       `json:"experience_years_max,omitempty"`
	Industries            []string   `json:"industries"`
	Portals               []Portal   `json:"portals"`
	AutoApply             bool       `json:"auto_apply"`
	MaxApplicationsPerDay int        `json:"max_applications_per_day"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// DefaultMaxApplicationsPerDay applies when a filter leaves the bound unset.
const DefaultMaxApplicationsPerDay = 50

// ─── Postings ────────────────────────────────────────────────────────────────

// JobPosting is a normalised listing fetched from a portal.
// (Portal, ExternalID) identifies it; re-scrapes only refresh descriptive fields.
type JobPosting struct {
	ID              string     `json:"id"`
	Portal          Portal     `json:"portal"`
	ExternalID      string     `json:"external_id"`
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	CompanyURL      string     `json:"company_url,omitempty"`
	Location        string     `json:"location"`
	WorkMode        WorkMode   `json:"work_mode,omitempty"`
	JobType         JobType    `json:"job_type,omitempty"`
	Salary          string     `json:"salary,omitempty"`
	Description     string     `json:"description"`
	Requirements    []string   `json:"requirements"`
	Benefits        []string   `json:"benefits"`
	PostedDate      *time.Time `json:"posted_date,omitempty"`
	KeywordsMatched []string   `json:"keywords_matched"`
	MatchPercentage *float64   `json:"match_percentage,omitempty"`
	ScrapedAt       time.Time  `json:"scraped_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DedupKey returns the string form of the (portal, external id) identity.
func (p JobPosting) DedupKey() string {
	return string(p.Portal) + ":" + p.ExternalID
}

// SearchableText joins the fields keyword matching runs over.
func (p JobPosting) SearchableText() string {
	return strings.Join([]string{p.Title, p.Company, p.Description}, " ")
}

// ─── Applications ────────────────────────────────────────────────────────────

// ApplicationStatus mirrors the status column of applications.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusApplied   ApplicationStatus = "applied"
	StatusViewed    ApplicationStatus = "viewed"
	StatusInterview ApplicationStatus = "interview"
	StatusOffer     ApplicationStatus = "offer"
	StatusRejected  ApplicationStatus = "rejected"
)

// JobApplication is the service's own mutable state for one application attempt.
type JobApplication struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	JobID              string            `json:"job_id"`
	CVID               string            `json:"cv_id"`
	CoverLetter        string            `json:"cover_letter,omitempty"`
	CustomMessage      string            `json:"custom_message,omitempty"`
	PortalData         map[string]any    `json:"portal_data"`
	Status             ApplicationStatus `json:"status"`
	AppliedAt          *time.Time        `json:"applied_at,omitempty"`
	LastUpdate         time.Time         `json:"last_update"`
	ResponseReceived   bool              `json:"response_received"`
	InterviewScheduled *time.Time        `json:"interview_scheduled,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ─── AI configuration ────────────────────────────────────────────────────────

// Response styles understood by the AI provider.
const (
	StyleProfessional = "professional"
	StyleFriendly     = "friendly"
	StyleFormal       = "formal"
)

// AIConfig holds a user's AI backend credentials and personalization toggles.
// There is at most one per user; saving replaces the previous one.
type AIConfig struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	APIKey                 string    `json:"api_key,omitempty"`
	PersonalizationEnabled bool      `json:"personalization_enabled"`
	AutoCoverLetter        bool      `json:"auto_cover_letter"`
	AutoFormFill           bool      `json:"auto_form_fill"`
	ResponseStyle          string    `json:"response_style"`
	CVCustomizationLevel   string    `json:"cv_customization_level"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Compatibility recommendations.
const (
	RecommendYes   = "yes"
	RecommendMaybe = "maybe"
	RecommendNo    = "no"
)

// Compatibility is the result of analysing a CV against a posting.
type Compatibility struct {
	Percentage      int      `json:"compatibility_percentage"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendation  string   `json:"recommendation"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// ─── Statistics ──────────────────────────────────────────────────────────────

// UserStats summarises a user's activity over a trailing window.
type UserStats struct {
	PeriodDays           int                       `json:"period_days"`
	TotalApplications    int                       `json:"total_applications"`
	ApplicationsByStatus map[ApplicationStatus]int `json:"applications_by_status"`
	ApplicationsByPortal map[Portal]int            `json:"applications_by_portal"`
	JobsFound            int                       `json:"jobs_found"`
	SuccessRate          float64                   `json:"success_rate"`
}
