// Package profile manages the records a user sets up before searching:
// the profile itself, CVs, search filters and the AI configuration.
package profile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/keyword"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	store.Users
	store.CVs
	store.Filters
	store.Postings
	store.AIConfigs
}

// Invalidator drops cached per-user AI sessions after a config change.
type Invalidator interface {
	Invalidate(userID string)
}

const (
	DefaultLocation      = "Santiago, Chile"
	DefaultCustomization = "medium"
	DefaultListLimit     = 50
	MaxListLimit         = 200
)

// DefaultPortals are searched when a filter names none.
var DefaultPortals = []model.Portal{model.PortalLinkedIn, model.PortalLaborum, model.PortalBNE, model.PortalTrabajando}

var (
	jobTypes        = []model.JobType{model.JobTypeFullTime, model.JobTypePartTime, model.JobTypeContract, model.JobTypeInternship, model.JobTypeFreelance}
	workModes       = []model.WorkMode{model.WorkModeRemote, model.WorkModeOnsite, model.WorkModeHybrid}
	styles          = []string{model.StyleProfessional, model.StyleFriendly, model.StyleFormal}
	customizeLevels = []string{"low", "medium", "high"}
)

// ─── Requests ────────────────────────────────────────────────────────────────

type UserRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Location    string `json:"location,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

type CVRequest struct {
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
}

// FilterRequest mirrors model.SearchFilter with optional booleans so that an
// omitted field takes its default rather than false.
type FilterRequest struct {
	Keywords              []string `json:"keywords"`
	ExcludedKeywords      []string `json:"excluded_keywords"`
	JobTypes              []string `json:"job_types"`
	WorkModes             []string `json:"work_modes"`
	Locations             []string `json:"locations"`
	SalaryMin             *int     `json:"salary_min,omitempty"`
	SalaryMax             *int     `json:"salary_max,omitempty"`
	ExperienceYearsMin    *int     `json:"experience_years_min,omitempty"`
	ExperienceYearsMax    *int     `json:"experience_years_max,omitempty"`
	Industries            []string `json:"industries"`
	Portals               []string `json:"portals"`
	AutoApply             *bool    `json:"auto_apply,omitempty"`
	MaxApplicationsPerDay int      `json:"max_applications_per_day"`
	IsActive              *bool    `json:"is_active,omitempty"`
}

type AIConfigRequest struct {
	APIKey                 string `json:"api_key,omitempty"`
	PersonalizationEnabled *bool  `json:"personalization_enabled,omitempty"`
	AutoCoverLetter        *bool  `json:"auto_cover_letter,omitempty"`
	AutoFormFill           *bool  `json:"auto_form_fill,omitempty"`
	ResponseStyle          string `json:"response_style,omitempty"`
	CVCustomizationLevel   string `json:"cv_customization_level,omitempty"`
}

// ─── Service ─────────────────────────────────────────────────────────────────

type Service struct {
	store Store
	ai    Invalidator
	log   logger.Logger
}

func NewService(st Store, ai Invalidator, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Service{store: st, ai: ai, log: log}
}

// ─── Users ───────────────────────────────────────────────────────────────────

func (s *Service) CreateUser(ctx context.Context, req UserRequest) (*model.UserProfile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &application.ValidationError{Msg: "name is required"}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, &application.ValidationError{Msg: fmt.Sprintf("invalid email %q", req.Email)}
	}
	u := &model.UserProfile{
		Name:        name,
		Email:       strings.ToLower(addr.Address),
		Phone:       strings.TrimSpace(req.Phone),
		Location:    cmp.Or(strings.TrimSpace(req.Location), DefaultLocation),
		LinkedInURL: strings.TrimSpace(req.LinkedInURL),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, &application.ValidationError{Msg: "email already registered"}
		}
		return nil, fmt.Errorf("createUser: %w", err)
	}
	s.log.Info("user created", logger.Fields{"user_id": u.ID})
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*model.UserProfile, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getUser: %w", err)
	}
	return u, nil
}

// ─── CVs ─────────────────────────────────────────────────────────────────────

// CreateCV stores a CV. The user's first CV becomes the default one.
func (s *Service) CreateCV(ctx context.Context, userID string, req CVRequest) (*model.CVData, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &application.ValidationError{Msg: "title is required"}
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("createCV: %w", err)
	}
	isDefault := req.IsDefault
	if !isDefault {
		_, err := s.store.GetDefaultCV(ctx, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			isDefault = true
		case err != nil:
			return nil, fmt.Errorf("createCV default lookup: %w", err)
		}
	}
	cv := &model.CVData{
		UserID:         userID,
		Title:          strings.TrimSpace(req.Title),
		PersonalInfo:   req.PersonalInfo,
		Experience:     req.Experience,
		Education:      req.Education,
		Skills:         keyword.Normalize(req.Skills),
		Certifications: req.Certifications,
		Languages:      req.Languages,
		RawText:        req.RawText,
		FilePath:       req.FilePath,
		IsDefault:      isDefault,
	}
	if err := s.store.CreateCV(ctx, cv); err != nil {
		return nil, fmt.Errorf("createCV: %w", err)
	}
	s.log.Info("cv created", logger.Fields{"user_id": userID, "cv_id": cv.ID, "default": cv.IsDefault})
	return cv, nil
}

func (s *Service) ListCVs(ctx context.Context, userID string) ([]model.CVData, error) {
	cvs, err := s.store.ListCVs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listCVs: %w", err)
	}
	return cvs, nil
}

func (s *Service) SetDefaultCV(ctx context.Context, userID, cvID string) error {
	if err := s.store.SetDefaultCV(ctx, userID, cvID); err != nil {
		return fmt.Errorf("setDefaultCV: %w", err)
	}
	return nil
}

// ─── Filters ─────────────────────────────────────────────────────────────────

// CreateFilter validates and stores a search filter. Omitted portals fall
// back to DefaultPortals, an unset daily bound to the model default, and the
// filter starts active with auto-apply on unless told otherwise.
func (s *Service) CreateFilter(ctx context.Context, userID string, req FilterRequest) (*model.SearchFilter, error) {
	f, err := buildFilter(userID, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("createFilter: %w", err)
	}
	if err := s.store.CreateFilter(ctx, f); err != nil {
		return nil, fmt.Errorf("createFilter: %w", err)
	}
	s.log.Info("search filter created", logger.Fields{
		"user_id": userID, "filter_id": f.ID, "portals": len(f.Portals), "auto_apply": f.AutoApply,
	})
	return f, nil
}

func buildFilter(userID string, req FilterRequest) (*model.SearchFilter, error) {
	keywords := keyword.Normalize(req.Keywords)
	if len(keywords) == 0 {
		return nil, &application.ValidationError{Msg: "at least one keyword is required"}
	}
	if req.MaxApplicationsPerDay < 0 {
		return nil, &application.ValidationError{Msg: "max_applications_per_day must not be negative"}
	}
	if err := checkRange("salary", req.SalaryMin, req.SalaryMax); err != nil {
		return nil, err
	}
	if err := checkRange("experience_years", req.ExperienceYearsMin, req.ExperienceYearsMax); err != nil {
		return nil, err
	}

	portals := make([]model.Portal, 0, len(req.Portals))
	for _, raw := range req.Portals {
		p, err := model.ParsePortal(raw)
		if err != nil {
			return nil, &application.ValidationError{Msg: err.Error()}
		}
		if !slices.Contains(portals, p) {
			portals = append(portals, p)
		}
	}
	if len(portals) == 0 {
		portals = slices.Clone(DefaultPortals)
	}

	types, err := parseEnum("job type", req.JobTypes, jobTypes)
	if err != nil {
		return nil, err
	}
	modes, err := parseEnum("work mode", req.WorkModes, workModes)
	if err != nil {
		return nil, err
	}

	f := &model.SearchFilter{
		UserID:                userID,
		Keywords:              keywords,
		ExcludedKeywords:      keyword.Normalize(req.ExcludedKeywords),
		JobTypes:              types,
		WorkModes:             modes,
		Locations:             trimAll(req.Locations),
		SalaryMin:             req.SalaryMin,
		SalaryMax:             req.SalaryMax,
		ExperienceYearsMin:    req.ExperienceYearsMin,
		ExperienceYearsMax:    req.ExperienceYearsMax,
		Industries:            trimAll(req.Industries),
		Portals:               portals,
		AutoApply:             boolOr(req.AutoApply, true),
		MaxApplicationsPerDay: req.MaxApplicationsPerDay,
		IsActive:              boolOr(req.IsActive, true),
	}
	if f.MaxApplicationsPerDay == 0 {
		f.MaxApplicationsPerDay = model.DefaultMaxApplicationsPerDay
	}
	return f, nil
}

func (s *Service) ListFilters(ctx context.Context, userID string, activeOnly bool) ([]model.SearchFilter, error) {
	filters, err := s.store.ListFilters(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listFilters: %w", err)
	}
	return filters, nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

// ListPostings pages through stored postings, newest first. An empty portal
// lists all of them.
func (s *Service) ListPostings(ctx context.Context, portal string, limit, offset int) ([]model.JobPosting, error) {
	q := store.PostingQuery{Limit: clampLimit(limit), Offset: max(offset, 0)}
	if portal != "" {
		p, err := model.ParsePortal(portal)
		if err != nil {
			return nil, &application.ValidationError{Msg: err.Error()}
		}
		q.Portal = p
	}
	postings, err := s.store.ListPostings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listPostings: %w", err)
	}
	return postings, nil
}

func (s *Service) GetPosting(ctx context.Context, id string) (*model.JobPosting, error) {
	p, err := s.store.GetPosting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getPosting: %w", err)
	}
	return p, nil
}

// ─── AI configuration ────────────────────────────────────────────────────────

// SaveAIConfig replaces the user's AI configuration. Cached sessions built
// from the previous one are dropped.
func (s *Service) SaveAIConfig(ctx context.Context, userID string, req AIConfigRequest) (*model.AIConfig, error) {
	style := cmp.Or(strings.ToLower(strings.TrimSpace(req.ResponseStyle)), model.StyleProfessional)
	if !slices.Contains(styles, style) {
		return nil, &application.ValidationError{Msg: fmt.Sprintf("unknown response style %q", req.ResponseStyle)}
	}
	level := cmp.Or(strings.ToLower(strings.TrimSpace(req.CVCustomizationLevel)), DefaultCustomization)
	if !slices.Contains(customizeLevels, level) {
		return nil, &application.ValidationError{Msg: fmt.Sprintf("unknown cv customization level %q", req.CVCustomizationLevel)}
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("saveAIConfig: %w", err)
	}

	c := &model.AIConfig{
		UserID:                 userID,
		APIKey:                 strings.TrimSpace(req.APIKey),
		PersonalizationEnabled: boolOr(req.PersonalizationEnabled, true),
		AutoCoverLetter:        boolOr(req.AutoCoverLetter, true),
		AutoFormFill:           boolOr(req.AutoFormFill, true),
		ResponseStyle:          style,
		CVCustomizationLevel:   level,
	}
	if err := s.store.SaveAIConfig(ctx, c); err != nil {
		return nil, fmt.Errorf("saveAIConfig: %w", err)
	}
	if s.ai != nil {
		s.ai.Invalidate(userID)
	}
	s.log.Info("ai config saved", logger.Fields{"user_id": userID, "style": style, "has_key": c.APIKey != ""})
	return c, nil
}

// GetAIConfig returns the user's AI configuration with the key masked.
func (s *Service) GetAIConfig(ctx context.Context, userID string) (*model.AIConfig, error) {
	c, err := s.store.GetAIConfig(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getAIConfig: %w", err)
	}
	c.APIKey = maskKey(c.APIKey)
	return c, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func parseEnum[T ~string](what string, raw []string, allowed []T) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		v := T(strings.ToLower(strings.TrimSpace(r)))
		if !slices.Contains(allowed, v) {
			return nil, &application.ValidationError{Msg: fmt.Sprintf("unknown %s %q", what, r)}
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func checkRange(field string, lo, hi *int) error {
	if (lo != nil && *lo < 0) || (hi != nil && *hi < 0) {
		return &application.ValidationError{Msg: field + " must not be negative"}
	}
	if lo != nil && hi != nil && *lo > *hi {
		return &application.ValidationError{Msg: field + "_min exceeds " + field + "_max"}
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
