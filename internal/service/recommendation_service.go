package service

import (
	"context"
	"errors"

	"github.com/andresuchdata/autopo-py/forecast/internal/cache"
	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository"
	"github.com/rs/zerolog/log"
)

// LatestRunDate may be passed as RecommendationFilter.RunDate to select the
// most recent run.
const LatestRunDate = "latest"

type RecommendationService struct {
	repo  repository.RecommendationRepository
	cache cache.RecommendationCache
}

func NewRecommendationService(repo repository.RecommendationRepository, cacheImpl cache.RecommendationCache) *RecommendationService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopRecommendationCache()
	}
	return &RecommendationService{repo: repo, cache: cacheImpl}
}

func (s *RecommendationService) List(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, error) {
	if filter.RunDate == LatestRunDate {
		latest, err := s.repo.LatestRunDate(ctx)
		if errors.Is(err, repository.ErrNoRecommendations) {
			return &domain.RecommendationPage{Rows: []domain.RecommendationRow{}, Page: 1, PageSize: filter.PageSize}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.RunDate = latest.Format("2006-01-02")
	}

	if page, ok, err := s.cache.GetPage(ctx, filter); err == nil && ok {
		return page, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("recommendations: cache get page failed")
	}

	page, err := s.repo.ListRecommendations(ctx, filter)
	if err != nil {
		return nil, err
	}
	if page.Rows == nil {
		page.Rows = []domain.RecommendationRow{}
	}

	if err := s.cache.SetPage(ctx, filter, page); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache set page failed")
	}

	return page, nil
}

// Save persists rows and drops every cached page.
func (s *RecommendationService) Save(ctx context.Context, rows []domain.RecommendationRow) error {
	if err := s.repo.UpsertRecommendations(ctx, rows); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops cached pages after recommendations were written elsewhere.
func (s *RecommendationService) Invalidate(ctx context.Context) {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache invalidation failed")
	}
}
