// Package ai generates personalized application content through a per-user
// LLM backend.
//
// None of the Provider methods fail: when the user has no usable backend, the
// relevant toggle is off, or the backend errors, times out or answers with
// something unparseable, a deterministic local fallback is returned instead.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/metrics"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

// Provider is the content surface consumed by the application pipeline.
type Provider interface {
	PersonalizeCV(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) string
	GenerateCoverLetter(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) string
	GenerateFormResponses(ctx context.Context, userID string, cv model.CVData, questions []string) map[string]string
	AnalyzeCompatibility(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) model.Compatibility
}

// ConfigSource loads a user's AI configuration.
type ConfigSource interface {
	GetAIConfig(ctx context.Context, userID string) (*model.AIConfig, error)
}

// Fallback reasons, also used as metric labels.
const (
	reasonNoConfig  = "no_config"
	reasonDisabled  = "disabled"
	reasonBackend   = "backend_unavailable"
	reasonCallError = "call_error"
	reasonTimeout   = "timeout"
	reasonMalformed = "malformed"
)

type session struct {
	cfg model.AIConfig
	gen Generator
}

// Service implements Provider with a cached Generator per user.
type Service struct {
	configs ConfigSource
	factory GeneratorFactory
	timeout time.Duration
	log     logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

var _ Provider = (*Service)(nil)

// NewService returns a Service. timeout bounds every backend call.
func NewService(configs ConfigSource, factory GeneratorFactory, timeout time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Service{
		configs:  configs,
		factory:  factory,
		timeout:  timeout,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Invalidate drops the cached backend of userID so the next call rebuilds it
// from the stored configuration.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

func (s *Service) session(ctx context.Context, userID string) (*session, string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		return sess, ""
	}

	cfg, err := s.configs.GetAIConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && strings.TrimSpace(cfg.APIKey) == "") {
		return nil, reasonNoConfig
	}
	if err != nil {
		s.log.Warn("ai config lookup failed", logger.Fields{"user_id": userID, "error": err.Error()})
		return nil, reasonBackend
	}
	if s.factory == nil {
		return nil, reasonBackend
	}

	gen, err := s.build(ctx, *cfg)
	if err != nil {
		s.log.Warn("ai backend unavailable", logger.Fields{"user_id": userID, "error": err.Error()})
		return nil, reasonBackend
	}

	sess = &session{cfg: *cfg, gen: gen}
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()
	return sess, ""
}

func (s *Service) build(ctx context.Context, cfg model.AIConfig) (gen Generator, err error) {
	defer func() {
		if r := recover(); r != nil {
			gen, err = nil, fmt.Errorf("ai backend construction panicked: %v", r)
		}
	}()
	return s.factory(ctx, cfg)
}

// generate calls the backend under the configured timeout. The returned
// reason is empty on success. A panicking backend counts as a call error.
func (s *Service) generate(ctx context.Context, sess *session, prompt string) (out, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, reason, err = "", reasonCallError, fmt.Errorf("ai backend panicked: %v", r)
		}
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := sess.gen.Generate(ctx, systemMessage(sess.cfg.ResponseStyle), prompt)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "", reasonTimeout, err
	case err != nil:
		return "", reasonCallError, err
	case strings.TrimSpace(out) == "":
		return "", reasonMalformed, ErrMalformedResponse
	}
	return strings.TrimSpace(out), "", nil
}

func (s *Service) fellBack(op, userID, reason string, err error) {
	metrics.AIFallbacks.WithLabelValues(op, reason).Inc()
	fields := logger.Fields{"operation": op, "user_id": userID, "reason": reason}
	if err != nil {
		fields["error"] = err.Error()
		s.log.Warn("ai call failed, using fallback", fields)
		return
	}
	s.log.Debug("ai fallback", fields)
}

func (s *Service) PersonalizeCV(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) string {
	const op = "personalize_cv"
	sess, reason := s.session(ctx, userID)
	if sess != nil && !sess.cfg.PersonalizationEnabled {
		sess, reason = nil, reasonDisabled
	}
	if sess == nil {
		s.fellBack(op, userID, reason, nil)
		return FallbackPersonalizedCV(cv)
	}

	out, reason, err := s.generate(ctx, sess, personalizePrompt(cv, posting))
	if err != nil {
		s.fellBack(op, userID, reason, err)
		return FallbackPersonalizedCV(cv)
	}
	return out
}

func (s *Service) GenerateCoverLetter(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) string {
	const op = "cover_letter"
	sess, reason := s.session(ctx, userID)
	if sess != nil && !sess.cfg.AutoCoverLetter {
		sess, reason = nil, reasonDisabled
	}
	if sess == nil {
		s.fellBack(op, userID, reason, nil)
		return FallbackCoverLetter(cv, posting)
	}

	out, reason, err := s.generate(ctx, sess, coverLetterPrompt(cv, posting))
	if err != nil {
		s.fellBack(op, userID, reason, err)
		return FallbackCoverLetter(cv, posting)
	}
	return out
}

func (s *Service) GenerateFormResponses(ctx context.Context, userID string, cv model.CVData, questions []string) map[string]string {
	const op = "form_responses"
	if len(questions) == 0 {
		return map[string]string{}
	}
	sess, reason := s.session(ctx, userID)
	if sess != nil && !sess.cfg.AutoFormFill {
		sess, reason = nil, reasonDisabled
	}
	if sess == nil {
		s.fellBack(op, userID, reason, nil)
		return FallbackFormResponses(questions)
	}

	out, reason, err := s.generate(ctx, sess, formResponsesPrompt(cv, questions))
	if err != nil {
		s.fellBack(op, userID, reason, err)
		return FallbackFormResponses(questions)
	}
	answers, err := ParseFormAnswers(out, questions)
	if err != nil {
		s.fellBack(op, userID, reasonMalformed, err)
		return FallbackFormResponses(questions)
	}
	return answers
}

func (s *Service) AnalyzeCompatibility(ctx context.Context, userID string, cv model.CVData, posting model.JobPosting) model.Compatibility {
	const op = "compatibility"
	sess, reason := s.session(ctx, userID)
	if sess == nil {
		s.fellBack(op, userID, reason, nil)
		return FallbackCompatibility(cv, posting)
	}

	out, reason, err := s.generate(ctx, sess, compatibilityPrompt(cv, posting))
	if err != nil {
		s.fellBack(op, userID, reason, err)
		return FallbackCompatibility(cv, posting)
	}
	c, err := ParseCompatibility(out)
	if err != nil {
		s.fellBack(op, userID, reasonMalformed, err)
		return FallbackCompatibility(cv, posting)
	}
	return c
}
