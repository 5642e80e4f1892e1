package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmate/autoapply-service/internal/model"
)

const trabajandoBaseURL = "https://cl.trabajando.com"

var trabajandoQuestions = []string{
	"Describe brevemente tu experiencia en cargos similares",
	"¿Cuál es tu expectativa de renta?",
}

// Trabajando parses the trabajando.com search listing.
type Trabajando struct {
	base
}

// NewTrabajando returns the Trabajando variant. An empty baseURL uses the public site.
func NewTrabajando(baseURL string, opts Options) *Trabajando {
	if baseURL == "" {
		baseURL = trabajandoBaseURL
	}
	return &Trabajando{base: newBase(model.PortalTrabajando, baseURL, "trabajando_form", opts)}
}

func (t *Trabajando) FormQuestions() []string { return trabajandoQuestions }

func (t *Trabajando) Fetch(ctx context.Context, q Query) ([]model.JobPosting, error) {
	location := q.Location(t.opts.DefaultLocation)
	searchURL := fmt.Sprintf("%s/trabajo-empleo-de-%s?%s",
		t.baseURL,
		url.PathEscape(strings.Join(q.Filter.Keywords, " ")),
		url.Values{"ubicacion": {location}}.Encode())

	doc, err := t.document(ctx, searchURL, http.Header{"Referer": {t.baseURL + "/"}})
	if err != nil {
		return nil, fmt.Errorf("trabajando search: %w", err)
	}

	cards := doc.Find("div.oferta, div.trabajo-card")
	return t.collect(ctx, q, cards.Length(), func(i int) (model.JobPosting, error) {
		return t.extract(cards.Eq(i), location)
	})
}

func (t *Trabajando) extract(card *goquery.Selection, location string) (model.JobPosting, error) {
	title := firstText(card, "h2", ".titulo-oferta")
	if title == "" {
		return model.JobPosting{}, errMissingTitle
	}
	href, _ := card.Find("h2 a, a.titulo-oferta, a").First().Attr("href")
	link, err := t.resolve(href)
	if err != nil {
		return model.JobPosting{}, err
	}

	company := firstText(card, ".nombre-empresa", ".company")
	if company == "" {
		company = "Empresa"
	}
	if loc := firstText(card, ".ubicacion"); loc != "" {
		location = loc
	}
	id, _ := card.Attr("data-id")
	return model.JobPosting{
		ExternalID: strings.TrimSpace(id),
		URL:        link,
		Title:      title,
		Company:    company,
		Location:   location,
		JobType:    jobTypeOf(firstText(card, ".jornada")),
	}, nil
}

func jobTypeOf(label string) model.JobType {
	l := strings.ToLower(label)
	switch {
	case l == "":
		return ""
	case strings.Contains(l, "part"), strings.Contains(l, "parcial"):
		return model.JobTypePartTime
	case strings.Contains(l, "práctica"), strings.Contains(l, "practica"), strings.Contains(l, "intern"):
		return model.JobTypeInternship
	case strings.Contains(l, "honorarios"), strings.Contains(l, "freelance"):
		return model.JobTypeFreelance
	case strings.Contains(l, "plazo fijo"), strings.Contains(l, "contract"):
		return model.JobTypeContract
	default:
		return model.JobTypeFullTime
	}
}
