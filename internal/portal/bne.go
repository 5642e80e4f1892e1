package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"jobmate/autoapply-service/internal/model"
)

const bneBaseURL = "https://www.bne.cl"

// BNE reads the Bolsa Nacional de Empleo offers feed.
type BNE struct {
	base
}

// NewBNE returns the BNE variant. An empty baseURL uses the public site.
func NewBNE(baseURL string, opts Options) *BNE {
	if baseURL == "" {
		baseURL = bneBaseURL
	}
	return &BNE{base: newBase(model.PortalBNE, baseURL, "bne_portal", opts)}
}

func (b *BNE) Fetch(ctx context.Context, q Query) ([]model.JobPosting, error) {
	params := url.Values{}
	params.Set("q", strings.Join(q.Filter.Keywords, " "))
	params.Set("region", q.Location(b.opts.DefaultLocation))

	body, err := b.get(ctx, b.baseURL+"/ofertas/rss?"+params.Encode(),
		"application/rss+xml,application/xml;q=0.9,*/*;q=0.8", nil)
	if err != nil {
		return nil, fmt.Errorf("bne feed: %w", err)
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("bne feed: parse: %w", err)
	}

	return b.collect(ctx, q, len(feed.Items), func(i int) (model.JobPosting, error) {
		return b.extract(feed.Items[i])
	})
}

func (b *BNE) extract(item *gofeed.Item) (model.JobPosting, error) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return model.JobPosting{}, errMissingTitle
	}
	link, err := b.resolve(item.Link)
	if err != nil {
		return model.JobPosting{}, err
	}

	company := "Empleador BNE"
	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		company = item.Authors[0].Name
	}
	location := "Chile"
	if len(item.Categories) > 0 && item.Categories[0] != "" {
		location = item.Categories[0]
	}

	p := model.JobPosting{
		ExternalID:  strings.TrimSpace(item.GUID),
		URL:         link,
		Title:       item.Title,
		Company:     company,
		Location:    location,
		Description: strings.TrimSpace(item.Description),
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		p.PostedDate = &t
	}
	return p, nil
}
