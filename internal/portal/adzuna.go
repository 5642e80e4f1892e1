package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3
)

// Adzuna fetches offers from the Adzuna public search API.
// With no AppID or AppKey, Fetch returns (nil, nil) and logs a warning.
type Adzuna struct {
	base
	appID   string
	appKey  string
	country string
}

// NewAdzuna returns the Adzuna variant. An empty baseURL uses the public API.
func NewAdzuna(baseURL, appID, appKey, country string, opts Options) *Adzuna {
	if baseURL == "" {
		baseURL = adzunaBaseURL
	}
	if country == "" {
		country = "gb"
	}
	return &Adzuna{
		base:    newBase(model.PortalAdzuna, baseURL, "adzuna_redirect", opts),
		appID:   appID,
		appKey:  appKey,
		country: country,
	}
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaNamed    `json:"company"`
	Location     adzunaNamed    `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
	Category     adzunaCategory `json:"category"`
}

type adzunaNamed struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

func (a *Adzuna) Fetch(ctx context.Context, q Query) ([]model.JobPosting, error) {
	if a.appID == "" || a.appKey == "" {
		a.log.Warn("adzuna credentials not set, skipping", nil)
		return nil, nil
	}

	var results []adzunaResult
	for page := 1; page <= adzunaMaxPages && len(results) < q.Limit; page++ {
		batch, err := a.fetchPage(ctx, q, page)
		if err != nil {
			if len(results) == 0 {
				return nil, fmt.Errorf("adzuna page %d: %w", page, err)
			}
			a.log.Warn("adzuna page failed, keeping earlier pages", logger.Fields{"page": page, "error": err.Error()})
			break
		}
		results = append(results, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}

	return a.collect(ctx, q, len(results), func(i int) (model.JobPosting, error) {
		return a.extract(results[i])
	})
}

func (a *Adzuna) fetchPage(ctx context.Context, q Query, page int) ([]adzunaResult, error) {
	params := url.Values{}
	params.Set("app_id", a.appID)
	params.Set("app_key", a.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", strings.Join(q.Filter.Keywords, " "))
	params.Set("where", q.Location(a.opts.DefaultLocation))
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")
	if len(q.Filter.ExcludedKeywords) > 0 {
		params.Set("what_exclude", strings.Join(q.Filter.ExcludedKeywords, " "))
	}
	if q.Filter.SalaryMin != nil {
		params.Set("salary_min", strconv.Itoa(*q.Filter.SalaryMin))
	}

	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", a.baseURL, a.country, page, params.Encode())
	body, err := a.get(ctx, endpoint, "application/json", nil)
	if err != nil {
		return nil, err
	}

	var resp adzunaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return resp.Results, nil
}

func (a *Adzuna) extract(r adzunaResult) (model.JobPosting, error) {
	if strings.TrimSpace(r.Title) == "" {
		return model.JobPosting{}, errMissingTitle
	}
	if r.RedirectURL == "" {
		return model.JobPosting{}, errMissingLink
	}

	p := model.JobPosting{
		ExternalID:  r.ID,
		URL:         r.RedirectURL,
		Title:       r.Title,
		Company:     r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		Description: r.Description,
		Salary:      salaryRange(r.SalaryMin, r.SalaryMax),
	}
	switch r.ContractTime {
	case "full_time":
		p.JobType = model.JobTypeFullTime
	case "part_time":
		p.JobType = model.JobTypePartTime
	}
	if r.ContractType == "contract" {
		p.JobType = model.JobTypeContract
	}
	if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
		t = t.UTC()
		p.PostedDate = &t
	}
	return p, nil
}

func salaryRange(lo, hi float64) string {
	switch {
	case lo > 0 && hi > 0 && hi != lo:
		return fmt.Sprintf("%.0f-%.0f", lo, hi)
	case lo > 0:
		return fmt.Sprintf("%.0f", lo)
	case hi > 0:
		return fmt.Sprintf("%.0f", hi)
	}
	return ""
}
