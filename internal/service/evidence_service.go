package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/pkg/github"
)

// EvidenceService wraps the repository collector with an optional cache.
type EvidenceService interface {
	Collect(ctx context.Context, repoURL string) github.Evidence
}

type evidenceService struct {
	collector github.Collector
	cache     repository.EvidenceCacheRepository
	logger    zerolog.Logger
}

// NewEvidenceService builds the evidence service. cache may be nil.
func NewEvidenceService(collector github.Collector, cache repository.EvidenceCacheRepository, logger zerolog.Logger) EvidenceService {
	return &evidenceService{
		collector: collector,
		cache:     cache,
		logger:    logger.With().Str("component", "evidence_service").Logger(),
	}
}

func (s *evidenceService) Collect(ctx context.Context, repoURL string) github.Evidence {
	repo, ok, err := github.ParseRepositoryURL(repoURL)
	cacheable := s.cache != nil && ok && err == nil

	if cacheable {
		if bundle, found, cacheErr := s.cache.Get(ctx, repo.Key()); cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Str("repo", repo.Key()).Msg("failed to read evidence cache")
		} else if found {
			observability.EvidenceOutcomes().WithLabelValues(string(github.StatusFetched), "hit").Inc()
			return github.Evidence{Owner: repo.Owner, Repo: repo.Name, Text: bundle, Status: github.StatusFetched}
		}
	}

	evidence := s.collector.Collect(ctx, repoURL)
	observability.EvidenceOutcomes().WithLabelValues(string(evidence.Status), "miss").Inc()

	if cacheable && evidence.Status == github.StatusFetched {
		if cacheErr := s.cache.Set(ctx, repo.Key(), evidence.Text); cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Str("repo", repo.Key()).Msg("failed to store evidence cache")
		}
	}

	return evidence
}
