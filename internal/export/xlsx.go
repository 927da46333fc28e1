// Package export renders already computed recommendations into spreadsheets
// and publishes them to object storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName       = "Recommendations"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Headers are the spreadsheet columns in order.
var Headers = []string{
	"Product ID",
	"30d Forecast", "60d Forecast", "90d Forecast", "120d Forecast", "180d Forecast",
	"Mean Daily Forecast", "Trailing 30d Mean", "Safety Stock",
	"Required Inventory", "Reorder Threshold", "Replenishment Days",
	"On Hand", "Incoming", "Reorder", "Suggested Qty",
}

// WriteXLSX writes recs to w as a single-sheet workbook. Rows that need a
// reorder are filled amber so buyers can scan for them.
func WriteXLSX(w io.Writer, recs []domain.InventoryRecommendation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return err
	}
	numberStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	reorderStyle, err := f.NewStyle(&excelize.Style{
		NumFmt: 4,
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFD966"}},
	})
	if err != nil {
		return err
	}

	if err := setRow(f, 1, toCells(Headers)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, rec := range recs {
		rowNum := i + 2
		if err := setRow(f, rowNum, recommendationCells(rec)); err != nil {
			return err
		}

		style := numberStyle
		if rec.Decision != nil && rec.Decision.Reorder {
			style = reorderStyle
		}
		first, _ := excelize.CoordinatesToCellName(1, rowNum)
		end, _ := excelize.CoordinatesToCellName(len(Headers), rowNum)
		if err := f.SetCellStyle(SheetName, first, end, style); err != nil {
			return err
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 18); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &cells)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func recommendationCells(rec domain.InventoryRecommendation) []interface{} {
	cells := []interface{}{rec.ProductID}
	for _, days := range domain.CheckpointDays {
		if v, ok := rec.Checkpoint(days); ok {
			cells = append(cells, v)
		} else {
			cells = append(cells, nil)
		}
	}
	cells = append(cells,
		rec.MeanDailyForecast,
		rec.TrailingMeanDemand,
		rec.SafetyStock,
		rec.RequiredInventory,
		rec.EffectiveThreshold,
		rec.ReplenishmentDays,
		optional(rec.OnHand),
		optional(rec.Incoming),
	)
	if rec.Decision != nil {
		reorder := "no"
		if rec.Decision.Reorder {
			reorder = "yes"
		}
		cells = append(cells, reorder, rec.Decision.SuggestedQuantity)
	} else {
		cells = append(cells, nil, nil)
	}
	return cells
}

func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// ObjectKey is the storage key of the export for runDate under prefix.
func ObjectKey(prefix string, runDate time.Time) string {
	return path.Join(prefix, fmt.Sprintf("recommendations_%s.xlsx", runDate.Format("20060102")))
}

// Publish renders recs and uploads the workbook. It returns the object key.
func Publish(ctx context.Context, store storage.ObjectStorage, prefix string, runDate time.Time, recs []domain.InventoryRecommendation) (string, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, recs); err != nil {
		return "", err
	}

	key := ObjectKey(prefix, runDate)
	if err := store.UploadObject(ctx, key, buf.Bytes(), XLSXContentType); err != nil {
		return "", err
	}

	log.Info().Str("key", key).Int("products", len(recs)).Int("bytes", buf.Len()).Msg("published recommendations")
	return key, nil
}
