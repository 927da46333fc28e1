// Package analytics loads the recommendation CSV parts written by the
// forecast pipeline into the recommendations table.
package analytics

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline/demand_forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// chunkSize bounds the rows sent in one upsert transaction.
const chunkSize = 500

// Open connects to Postgres through the pgx driver and pings it.
func Open(ctx context.Context, dsn string, maxConcurrent int64) (*postgres.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return postgres.Wrap(sqlx.NewDb(db, "pgx"), maxConcurrent), nil
}

// RecommendationProcessor seeds recommendation CSV files into a repository.
type RecommendationProcessor struct {
	repo repository.RecommendationRepository
}

func NewRecommendationProcessor(repo repository.RecommendationRepository) *RecommendationProcessor {
	return &RecommendationProcessor{repo: repo}
}

// ProcessFile loads one CSV part. It has the pipeline flush signature so it
// can seed parts as soon as they are written.
func (p *RecommendationProcessor) ProcessFile(ctx context.Context, filePath string) error {
	start := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	rows, err := ParseRecommendationCSV(file)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}

	for lo := 0; lo < len(rows); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(rows) {
			hi = len(rows)
		}
		if err := p.repo.UpsertRecommendations(ctx, rows[lo:hi]); err != nil {
			return err
		}
	}

	log.Info().
		Str("file", filePath).
		Int("rows", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("seeded recommendations")
	return nil
}

// ProcessDir loads every CSV part in dir in file name order. Files that fail
// are logged and counted; the rest still load.
func (p *RecommendationProcessor) ProcessDir(ctx context.Context, dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}
	sort.Strings(matches)

	failed := 0
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if err := p.ProcessFile(ctx, path); err != nil {
			log.Error().Err(err).Str("file", path).Msg("failed to seed file")
			failed++
		}
	}
	if failed > 0 {
		return failed, fmt.Errorf("%d of %d files failed", failed, len(matches))
	}
	return 0, nil
}

var requiredColumns = []string{
	demand_forecast.ColRunDate,
	demand_forecast.ColProductID,
	demand_forecast.ColMeanDailyForecast,
	demand_forecast.ColSafetyStock,
	demand_forecast.ColRequiredInventory,
	demand_forecast.ColEffectiveThreshold,
	demand_forecast.ColReplenishmentDays,
}

// ParseRecommendationCSV reads rows in the demand_forecast column layout.
func ParseRecommendationCSV(r io.Reader) ([]domain.RecommendationRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.TrimSpace(col)] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := colMap[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}

	var rows []domain.RecommendationRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record: %w", err)
		}
		line++

		rec := csvRecord{values: record, cols: colMap}
		row, err := rec.toRow()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type csvRecord struct {
	values []string
	cols   map[string]int
}

func (r csvRecord) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (r csvRecord) toRow() (domain.RecommendationRow, error) {
	var (
		row domain.RecommendationRow
		err error
	)

	row.ProductID = r.get(demand_forecast.ColProductID)
	if row.ProductID == "" {
		return row, fmt.Errorf("missing %s", demand_forecast.ColProductID)
	}
	if row.RunDate, err = time.Parse("2006-01-02", r.get(demand_forecast.ColRunDate)); err != nil {
		return row, fmt.Errorf("invalid %s: %w", demand_forecast.ColRunDate, err)
	}

	required := []struct {
		col string
		dst *float64
	}{
		{demand_forecast.ColMeanDailyForecast, &row.MeanDailyForecast},
		{demand_forecast.ColSafetyStock, &row.SafetyStock},
		{demand_forecast.ColRequiredInventory, &row.RequiredInventory},
		{demand_forecast.ColEffectiveThreshold, &row.EffectiveThreshold},
		{demand_forecast.ColTrailingMean, &row.TrailingMeanDemand},
	}
	for _, f := range required {
		v := r.get(f.col)
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return row, fmt.Errorf("invalid %s %q", f.col, v)
		}
	}

	if row.ReplenishmentDays, err = strconv.Atoi(r.get(demand_forecast.ColReplenishmentDays)); err != nil {
		return row, fmt.Errorf("invalid %s: %w", demand_forecast.ColReplenishmentDays, err)
	}

	optional := []struct {
		col string
		dst **float64
	}{
		{demand_forecast.ColCumulative30, &row.Cumulative30},
		{demand_forecast.ColCumulative60, &row.Cumulative60},
		{demand_forecast.ColCumulative90, &row.Cumulative90},
		{demand_forecast.ColCumulative120, &row.Cumulative120},
		{demand_forecast.ColCumulative180, &row.Cumulative180},
		{demand_forecast.ColOnHand, &row.OnHand},
		{demand_forecast.ColIncoming, &row.Incoming},
		{demand_forecast.ColSuggestedQuantity, &row.SuggestedQuantity},
	}
	for _, f := range optional {
		v := r.get(f.col)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return row, fmt.Errorf("invalid %s %q", f.col, v)
		}
		*f.dst = &parsed
	}

	if v := r.get(demand_forecast.ColReorder); v != "" {
		reorder, err := strconv.ParseBool(v)
		if err != nil {
			return row, fmt.Errorf("invalid %s %q", demand_forecast.ColReorder, v)
		}
		row.Reorder = &reorder
	}
	row.Model = r.get(demand_forecast.ColModel)

	return row, nil
}
