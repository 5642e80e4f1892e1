package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoApplyURL is returned when a posting carries no URL to apply through.
var ErrNoApplyURL = errors.New("posting has no application url")

// Submitter sends an application on behalf of a portal variant. method names
// the portal-specific routine, e.g. "linkedin_easy_apply".
type Submitter interface {
	Submit(ctx context.Context, method string, req SubmitRequest) (*SubmitResult, error)
}

func evidence(method string, req SubmitRequest, at time.Time) map[string]any {
	ev := map[string]any{
		"timestamp":         at.Format(time.RFC3339),
		"job_url":           req.Posting.URL,
		"cover_letter_sent": req.CoverLetter != "",
	}
	if len(req.FormResponses) > 0 {
		ev["form_filled"] = true
		ev["form_answers"] = len(req.FormResponses)
	}
	return ev
}

// ─── Dry run ─────────────────────────────────────────────────────────────────

// DryRunSubmitter validates the request and records what would have been
// sent without contacting the portal.
type DryRunSubmitter struct {
	now func() time.Time
}

// NewDryRunSubmitter returns a DryRunSubmitter. now may be nil.
func NewDryRunSubmitter(now func() time.Time) *DryRunSubmitter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DryRunSubmitter{now: now}
}

func (d *DryRunSubmitter) Submit(ctx context.Context, method string, req SubmitRequest) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Posting.URL == "" {
		return nil, ErrNoApplyURL
	}
	ev := evidence(method, req, d.now())
	ev["mode"] = "dry_run"
	return &SubmitResult{Method: method, Evidence: ev}, nil
}

// ─── Gateway ─────────────────────────────────────────────────────────────────

// GatewaySubmitter posts applications to an apply gateway that owns the
// browser automation for every portal.
type GatewaySubmitter struct {
	endpoint string
	client   HTTPClient
	now      func() time.Time
}

// NewGatewaySubmitter returns a GatewaySubmitter posting to endpoint.
func NewGatewaySubmitter(endpoint string, client HTTPClient, now func() time.Time) *GatewaySubmitter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &GatewaySubmitter{endpoint: endpoint, client: client, now: now}
}

type gatewayCandidate struct {
	Name   string   `json:"name"`
	CVID   string   `json:"cv_id"`
	CVText string   `json:"cv_text,omitempty"`
	Skills []string `json:"skills,omitempty"`
}

type gatewayRequest struct {
	Method        string            `json:"method"`
	Portal        string            `json:"portal"`
	ApplicationID string            `json:"application_id"`
	ExternalID    string            `json:"external_id"`
	JobURL        string            `json:"job_url"`
	Candidate     gatewayCandidate  `json:"candidate"`
	CoverLetter   string            `json:"cover_letter,omitempty"`
	CustomMessage string            `json:"custom_message,omitempty"`
	FormResponses map[string]string `json:"form_responses,omitempty"`
}

type gatewayResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func (g *GatewaySubmitter) Submit(ctx context.Context, method string, req SubmitRequest) (*SubmitResult, error) {
	if req.Posting.URL == "" {
		return nil, ErrNoApplyURL
	}

	payload, err := json.Marshal(gatewayRequest{
		Method:        method,
		Portal:        string(req.Posting.Portal),
		ApplicationID: req.Application.ID,
		ExternalID:    req.Posting.ExternalID,
		JobURL:        req.Posting.URL,
		Candidate: gatewayCandidate{
			Name:   req.CV.CandidateName(),
			CVID:   req.CV.ID,
			CVText: req.CV.RawText,
			Skills: req.CV.Skills,
		},
		CoverLetter:   req.CoverLetter,
		CustomMessage: req.Application.CustomMessage,
		FormResponses: req.FormResponses,
	})
	if err != nil {
		return nil, fmt.Errorf("encode gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var gr gatewayResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &gr); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
	}

	ev := evidence(method, req, g.now())
	ev["mode"] = "live"
	if gr.Reference != "" {
		ev["reference"] = gr.Reference
	}
	if gr.Status != "" {
		ev["gateway_status"] = gr.Status
	}
	return &SubmitResult{Method: method, Evidence: ev}, nil
}
