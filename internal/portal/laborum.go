package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmate/autoapply-service/internal/model"
)

const laborumBaseURL = "https://www.laborum.cl"

// laborumQuestions are asked by the Laborum application form.
var laborumQuestions = []string{
	"¿Por qué te interesa este puesto?",
	"¿Cuál es tu pretensión de renta líquida mensual?",
	"¿Cuál es tu disponibilidad para comenzar?",
}

// Laborum parses the server-rendered search results page.
type Laborum struct {
	base
}

// NewLaborum returns the Laborum variant. An empty baseURL uses the public site.
func NewLaborum(baseURL string, opts Options) *Laborum {
	if baseURL == "" {
		baseURL = laborumBaseURL
	}
	return &Laborum{base: newBase(model.PortalLaborum, baseURL, "laborum_form", opts)}
}

func (l *Laborum) FormQuestions() []string { return laborumQuestions }

func (l *Laborum) Fetch(ctx context.Context, q Query) ([]model.JobPosting, error) {
	location := q.Location(l.opts.DefaultLocation)
	slug := url.PathEscape(strings.ToLower(strings.Join(q.Filter.Keywords, "-")))
	searchURL := fmt.Sprintf("%s/empleos-busqueda-%s.html?%s",
		l.baseURL, slug, url.Values{"ubicacion": {location}}.Encode())

	doc, err := l.document(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("laborum search: %w", err)
	}

	cards := doc.Find("div.job-item, div.job-card")
	return l.collect(ctx, q, cards.Length(), func(i int) (model.JobPosting, error) {
		return l.extract(cards.Eq(i), location)
	})
}

func (l *Laborum) extract(card *goquery.Selection, location string) (model.JobPosting, error) {
	title := firstText(card, "h3", "a.job-title")
	if title == "" {
		return model.JobPosting{}, errMissingTitle
	}
	href, _ := card.Find("h3 a, a.job-title, a").First().Attr("href")
	link, err := l.resolve(href)
	if err != nil {
		return model.JobPosting{}, err
	}

	company := firstText(card, ".company-name", ".empresa")
	if company == "" {
		company = "No especificado"
	}
	if loc := firstText(card, ".location", ".ubicacion"); loc != "" {
		location = loc
	}
	return model.JobPosting{
		ExternalID:  lastSegment(link),
		URL:         link,
		Title:       title,
		Company:     company,
		Location:    location,
		Salary:      firstText(card, ".salary", ".sueldo"),
		Description: firstText(card, ".job-description", ".descripcion"),
	}, nil
}
