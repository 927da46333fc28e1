package repository

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

// RecommendationRepository persists the flattened recommendations produced by
// a forecast run.
type RecommendationRepository interface {
	UpsertRecommendations(ctx context.Context, rows []domain.RecommendationRow) error
	ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, error)
	LatestRunDate(ctx context.Context) (time.Time, error)
}

// ErrNoRecommendations is returned when nothing has been persisted yet.
var ErrNoRecommendations = errors.New("no recommendations stored")
