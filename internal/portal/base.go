package portal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmate/autoapply-service/internal/keyword"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
)

const maxBodyBytes = 5 * 1024 * 1024

var (
	errMissingTitle = errors.New("listing has no title")
	errMissingLink  = errors.New("listing has no link")
)

// base holds what every variant shares: its name, HTTP plumbing, listing
// pacing and the submission routine.
type base struct {
	name    model.Portal
	baseURL string
	method  string
	opts    Options
	log     logger.Logger
}

func newBase(name model.Portal, baseURL, method string, opts Options) base {
	opts = opts.withDefaults()
	return base{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		method:  method,
		opts:    opts,
		log:     opts.Logger.With(logger.Fields{"portal": string(name)}),
	}
}

func (b *base) Name() model.Portal { return b.name }

func (b *base) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	return b.opts.Submitter.Submit(ctx, b.method, req)
}

// get downloads rawURL and returns at most maxBodyBytes of the body.
func (b *base) get(ctx context.Context, rawURL, accept string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if b.opts.UserAgent != "" {
		req.Header.Set("User-Agent", b.opts.UserAgent)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "es-CL,es;q=0.9,en;q=0.8")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := b.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", b.name, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// document downloads rawURL and parses it as HTML.
func (b *base) document(ctx context.Context, rawURL string, header http.Header) (*goquery.Document, error) {
	body, err := b.get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", header)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// collect extracts up to q.Limit postings from n raw listings, one listing at
// a time with the listing delay between them. A listing whose extraction
// fails is logged and skipped. Cancellation returns what was collected.
func (b *base) collect(ctx context.Context, q Query, n int, extract func(i int) (model.JobPosting, error)) ([]model.JobPosting, error) {
	out := make([]model.JobPosting, 0, min(n, max(q.Limit, 0)))
	for i := 0; i < n && len(out) < q.Limit; i++ {
		if i > 0 {
			if err := b.opts.Pacer.Wait(ctx, b.opts.ListingDelay); err != nil {
				return out, err
			}
		}

		p, err := extract(i)
		if err != nil {
			b.log.Warn("listing skipped", logger.Fields{"index": i, "error": err.Error()})
			continue
		}
		out = append(out, b.normalize(p, q))
	}
	return out, nil
}

func (b *base) normalize(p model.JobPosting, q Query) model.JobPosting {
	p.Portal = b.name
	p.Title = squash(p.Title)
	p.Company = squash(p.Company)
	p.Location = squash(p.Location)
	if p.ExternalID == "" {
		p.ExternalID = StableID(p.Title, p.Company, p.Location)
	}
	if p.Requirements == nil {
		p.Requirements = []string{}
	}
	p.KeywordsMatched = keyword.Match(p.SearchableText(), q.Filter.Keywords)
	if len(q.Filter.Keywords) > 0 {
		pct := keyword.Percentage(len(p.KeywordsMatched), len(q.Filter.Keywords))
		p.MatchPercentage = &pct
	}
	return p
}

// resolve turns a listing href into an absolute URL.
func (b *base) resolve(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errMissingLink
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	root, err := url.Parse(b.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return root.ResolveReference(ref).String(), nil
}

// StableID derives an external id for listings the portal does not number.
func StableID(title, company, location string) string {
	h := sha256.Sum256([]byte(strings.ToLower(title + "|" + company + "|" + location)))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// firstText returns the trimmed text of the first selector that matches
// something non-blank inside s.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// lastSegment returns the final path segment of a URL without extension.
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	seg := path[strings.LastIndex(path, "/")+1:]
	if i := strings.LastIndex(seg, "."); i > 0 {
		seg = seg[:i]
	}
	return seg
}

func squash(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
