package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmate/autoapply-service/internal/model"
)

const linkedInBaseURL = "https://www.linkedin.com"

// LinkedIn reads the public guest job-search fragment, which is static HTML.
type LinkedIn struct {
	base
}

// NewLinkedIn returns the LinkedIn variant. An empty baseURL uses the public site.
func NewLinkedIn(baseURL string, opts Options) *LinkedIn {
	if baseURL == "" {
		baseURL = linkedInBaseURL
	}
	return &LinkedIn{base: newBase(model.PortalLinkedIn, baseURL, "linkedin_easy_apply", opts)}
}

func (l *LinkedIn) Fetch(ctx context.Context, q Query) ([]model.JobPosting, error) {
	params := url.Values{}
	params.Set("keywords", strings.Join(q.Filter.Keywords, " "))
	params.Set("location", q.Location(l.opts.DefaultLocation))
	params.Set("start", "0")
	if hasRemote(q.Filter.WorkModes) {
		params.Set("f_WT", "2")
	}

	doc, err := l.document(ctx, l.baseURL+"/jobs-guest/jobs/api/seeMoreJobPostings/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("linkedin search: %w", err)
	}

	cards := doc.Find("[data-entity-urn], [data-job-id]")
	return l.collect(ctx, q, cards.Length(), func(i int) (model.JobPosting, error) {
		return l.extract(cards.Eq(i))
	})
}

func (l *LinkedIn) extract(card *goquery.Selection) (model.JobPosting, error) {
	title := firstText(card, ".base-search-card__title", "h3")
	if title == "" {
		return model.JobPosting{}, errMissingTitle
	}
	href, _ := card.Find("a.base-card__full-link, h3 a, a").First().Attr("href")
	link, err := l.resolve(href)
	if err != nil {
		return model.JobPosting{}, err
	}
	// Tracking parameters change between requests.
	if u, err := url.Parse(link); err == nil {
		u.RawQuery = ""
		link = u.String()
	}

	id, _ := card.Attr("data-job-id")
	if id == "" {
		urn, _ := card.Attr("data-entity-urn")
		id = urn[strings.LastIndex(urn, ":")+1:]
	}

	p := model.JobPosting{
		ExternalID: strings.TrimSpace(id),
		URL:        link,
		Title:      title,
		Company:    firstText(card, ".base-search-card__subtitle", "h4"),
		Location:   firstText(card, ".job-search-card__location"),
	}
	if dt, ok := card.Find("time").First().Attr("datetime"); ok {
		if t, err := time.Parse("2006-01-02", dt); err == nil {
			p.PostedDate = &t
		}
	}
	return p, nil
}

func hasRemote(modes []model.WorkMode) bool {
	for _, m := range modes {
		if m == model.WorkModeRemote {
			return true
		}
	}
	return false
}
