package demand_forecast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
)

// StockLevel is the on-hand and inbound quantity of one product as reported
// by the inventory system.
type StockLevel struct {
	OnHand   float64
	Incoming float64
}

// StockLevels maps product id to its stock level.
type StockLevels map[string]StockLevel

var (
	stockProductHeaders  = []string{"product_id", "sku", "asin", "parent_product_id"}
	stockOnHandHeaders   = []string{"on_hand", "stock", "available", "quantity_on_hand"}
	stockIncomingHeaders = []string{"incoming", "inbound", "on_order", "sedang_po"}
)

// LoadStockLevels reads a CSV or XLSX stock snapshot. The incoming column is
// optional and defaults to zero.
func LoadStockLevels(path string) (StockLevels, error) {
	table, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}

	productIdx := findColumn(table.Header, stockProductHeaders)
	onHandIdx := findColumn(table.Header, stockOnHandHeaders)
	if productIdx < 0 || onHandIdx < 0 {
		return nil, fmt.Errorf("stock file %s needs product_id and on_hand columns", path)
	}
	incomingIdx := findColumn(table.Header, stockIncomingHeaders)

	levels := make(StockLevels, len(table.Rows))
	for i, row := range table.Rows {
		id := cell(row, productIdx)
		if id == "" {
			continue
		}
		onHand, err := parseQuantity(cell(row, onHandIdx))
		if err != nil {
			return nil, fmt.Errorf("stock file %s row %d: %w", path, i+2, err)
		}
		var incoming float64
		if incomingIdx >= 0 {
			if incoming, err = parseQuantity(cell(row, incomingIdx)); err != nil {
				return nil, fmt.Errorf("stock file %s row %d: %w", path, i+2, err)
			}
		}
		levels[id] = StockLevel{OnHand: onHand, Incoming: incoming}
	}
	return levels, nil
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		want := ingest.NormalizeColumnName(name)
		for i, h := range header {
			if ingest.NormalizeColumnName(h) == want {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseQuantity(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
