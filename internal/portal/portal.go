// Package portal implements the per-portal scrapers and submission routines.
//
// Every portal is one variant behind the Portal interface. The scheduler and
// the application pipeline only ever talk to a Registry; adding a portal means
// writing one variant and registering it.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/pacing"
)

// ErrUnknownPortal is returned by Registry.Get for unregistered portals.
var ErrUnknownPortal = errors.New("unknown portal")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Portal is the capability every portal variant implements.
type Portal interface {
	Name() model.Portal
	// Fetch returns at most q.Limit normalized postings. A listing that fails
	// extraction is skipped; an error means the portal as a whole failed, in
	// which case the postings collected so far are still returned.
	Fetch(ctx context.Context, q Query) ([]model.JobPosting, error)
	// Submit sends one application to the portal.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// FormPortal is implemented by portals whose application form asks free-text
// questions that must be answered before Submit.
type FormPortal interface {
	Portal
	FormQuestions() []string
}

// Query is the input of one Fetch.
type Query struct {
	Filter model.SearchFilter
	Limit  int
}

// Location returns the first configured location of the filter, or def.
func (q Query) Location(def string) string {
	for _, l := range q.Filter.Locations {
		if l != "" {
			return l
		}
	}
	return def
}

// SubmitRequest carries everything a submission routine may need.
type SubmitRequest struct {
	Application   model.JobApplication
	Posting       model.JobPosting
	CV            model.CVData
	CoverLetter   string
	FormResponses map[string]string
}

// SubmitResult records how an application was sent. Evidence ends up in the
// application's portal_data.
type SubmitResult struct {
	Method   string
	Evidence map[string]any
}

// PortalData flattens the result into the portal_data bag.
func (r *SubmitResult) PortalData() map[string]any {
	out := make(map[string]any, len(r.Evidence)+1)
	for k, v := range r.Evidence {
		out[k] = v
	}
	out["method"] = r.Method
	return out
}

// Options are shared by every variant.
type Options struct {
	Client          HTTPClient
	UserAgent       string
	DefaultLocation string
	ListingDelay    pacing.Range
	Pacer           *pacing.Pacer
	Submitter       Submitter
	Logger          logger.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Pacer == nil {
		o.Pacer = pacing.New()
	}
	if o.Logger == nil {
		o.Logger = logger.NewNoOp()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Submitter == nil {
		o.Submitter = NewDryRunSubmitter(o.Now)
	}
	return o
}

// ─── Registry ────────────────────────────────────────────────────────────────

// Registry maps portal names to variants. It is immutable after construction.
type Registry struct {
	portals map[model.Portal]Portal
}

// NewRegistry registers the given variants. A later variant with the same
// name replaces an earlier one.
func NewRegistry(portals ...Portal) *Registry {
	r := &Registry{portals: make(map[model.Portal]Portal, len(portals))}
	for _, p := range portals {
		r.portals[p.Name()] = p
	}
	return r
}

// Get returns the variant registered for name.
func (r *Registry) Get(name model.Portal) (Portal, error) {
	p, ok := r.portals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPortal, name)
	}
	return p, nil
}

// Names lists the registered portals in lexical order.
func (r *Registry) Names() []model.Portal {
	names := make([]model.Portal, 0, len(r.portals))
	for n := range r.portals {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
