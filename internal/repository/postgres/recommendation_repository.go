package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository"
	"github.com/jmoiron/sqlx"
)

const recommendationColumns = `
	id, run_date, product_id,
	cumulative_30d, cumulative_60d, cumulative_90d, cumulative_120d, cumulative_180d,
	mean_daily_forecast, safety_stock, required_inventory, effective_threshold,
	trailing_mean_demand, replenishment_days,
	on_hand, incoming, reorder, suggested_quantity, model, updated_at`

const upsertRecommendationQuery = `
	INSERT INTO inventory_recommendations (
		run_date, product_id,
		cumulative_30d, cumulative_60d, cumulative_90d, cumulative_120d, cumulative_180d,
		mean_daily_forecast, safety_stock, required_inventory, effective_threshold,
		trailing_mean_demand, replenishment_days,
		on_hand, incoming, reorder, suggested_quantity, model, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW()
	)
	ON CONFLICT (run_date, product_id)
	DO UPDATE SET
		cumulative_30d = EXCLUDED.cumulative_30d,
		cumulative_60d = EXCLUDED.cumulative_60d,
		cumulative_90d = EXCLUDED.cumulative_90d,
		cumulative_120d = EXCLUDED.cumulative_120d,
		cumulative_180d = EXCLUDED.cumulative_180d,
		mean_daily_forecast = EXCLUDED.mean_daily_forecast,
		safety_stock = EXCLUDED.safety_stock,
		required_inventory = EXCLUDED.required_inventory,
		effective_threshold = EXCLUDED.effective_threshold,
		trailing_mean_demand = EXCLUDED.trailing_mean_demand,
		replenishment_days = EXCLUDED.replenishment_days,
		on_hand = EXCLUDED.on_hand,
		incoming = EXCLUDED.incoming,
		reorder = EXCLUDED.reorder,
		suggested_quantity = EXCLUDED.suggested_quantity,
		model = EXCLUDED.model,
		updated_at = NOW()
`

type recommendationRepository struct {
	db *DB
}

// NewRecommendationRepository returns a Postgres backed repository.
func NewRecommendationRepository(db *DB) repository.RecommendationRepository {
	return &recommendationRepository{db: db}
}

func (r *recommendationRepository) UpsertRecommendations(ctx context.Context, rows []domain.RecommendationRow) error {
	if len(rows) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertRecommendationQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, upsertArgs(row)...); err != nil {
				return fmt.Errorf("failed to upsert recommendation for %s: %w", row.ProductID, err)
			}
		}
		return nil
	})
}

func upsertArgs(row domain.RecommendationRow) []interface{} {
	return []interface{}{
		row.RunDate,
		row.ProductID,
		row.Cumulative30,
		row.Cumulative60,
		row.Cumulative90,
		row.Cumulative120,
		row.Cumulative180,
		row.MeanDailyForecast,
		row.SafetyStock,
		row.RequiredInventory,
		row.EffectiveThreshold,
		row.TrailingMeanDemand,
		row.ReplenishmentDays,
		row.OnHand,
		row.Incoming,
		row.Reorder,
		row.SuggestedQuantity,
		row.Model,
	}
}

func (r *recommendationRepository) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	where, args := buildRecommendationFilterClause(filter, "r", 1)

	var total int
	countQuery := "SELECT COUNT(*) FROM inventory_recommendations r WHERE 1=1" + where
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count recommendations: %w", err)
	}

	limitIdx := len(args) + 1
	query := fmt.Sprintf("SELECT %s FROM inventory_recommendations r WHERE 1=1%s%s LIMIT $%d OFFSET $%d",
		recommendationColumns, where, buildOrderClause(filter.SortField, filter.SortDir, "r"), limitIdx, limitIdx+1)

	rows := make([]domain.RecommendationRow, 0, pageSize)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, append(args, pageSize, (page-1)*pageSize)...); err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	return &domain.RecommendationPage{
		Rows:     rows,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (r *recommendationRepository) LatestRunDate(ctx context.Context) (time.Time, error) {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	var latest sql.NullTime
	if err := sqlx.GetContext(ctx, r.db, &latest, "SELECT MAX(run_date) FROM inventory_recommendations"); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest run date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, repository.ErrNoRecommendations
	}
	return latest.Time, nil
}
