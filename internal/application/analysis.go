package application

import (
	"context"
	"errors"
	"fmt"

	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

// Analysis is the pre-application view of a posting for one CV.
type Analysis struct {
	JobID         string              `json:"job_id"`
	CVID          string              `json:"cv_id"`
	Compatibility model.Compatibility `json:"compatibility"`
	Summary       string              `json:"personalized_summary"`
}

// Analyze scores the CV against the posting and drafts the summary the
// pipeline would send. The CV defaults to the user's default one. Nothing is
// persisted.
func (s *Service) Analyze(ctx context.Context, userID, jobID, cvID string) (*Analysis, error) {
	if s.ai == nil {
		return nil, errors.New("analyze: no content provider configured")
	}
	posting, err := s.store.GetPosting(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("posting %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("analyze load posting: %w", err)
	}
	cv, err := s.resolveCV(ctx, userID, cvID)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		JobID:         posting.ID,
		CVID:          cv.ID,
		Compatibility: s.ai.AnalyzeCompatibility(ctx, userID, *cv, *posting),
		Summary:       s.ai.PersonalizeCV(ctx, userID, *cv, *posting),
	}, nil
}
