package forecast

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/rs/zerolog/log"
)

// numericField describes one numeric canonical column. Additive fields are
// summed when a product has several rows for the same day; the others
// (ratios) are averaged.
type numericField struct {
	name     string
	additive bool
	set      func(r *domain.DailyRecord, v float64)
}

var numericFields = []numericField{
	{domain.ColUniqueViews, true, func(r *domain.DailyRecord, v float64) { r.UniqueViews = v }},
	{domain.ColViewRatio, false, func(r *domain.DailyRecord, v float64) { r.ViewRatio = v }},
	{domain.ColTotalViews, true, func(r *domain.DailyRecord, v float64) { r.TotalViews = v }},
	{domain.ColTotalViewRatio, false, func(r *domain.DailyRecord, v float64) { r.TotalViewRatio = v }},
	{domain.ColOrderCount, true, func(r *domain.DailyRecord, v float64) { r.OrderCount = v }},
	{domain.ColConversionRate, false, func(r *domain.DailyRecord, v float64) { r.ConversionRate = v }},
	{domain.ColSalesAmount, true, func(r *domain.DailyRecord, v float64) { r.SalesAmount = v }},
	{domain.ColUnitsOrdered, true, func(r *domain.DailyRecord, v float64) { r.UnitsOrdered = v }},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"20060102",
	time.RFC3339,
}

const day = 24 * time.Hour

type parsedRow struct {
	date   time.Time
	parent string
	child  string
	title  string
	values []float64
}

// Preprocess maps a raw report onto the canonical schema, keeps the rows of
// productID (parent or child id match; empty means keep all) and reindexes them
// onto a contiguous daily calendar.
//
// Numeric and ratio columns are forward filled and then zero filled for any
// leading gap. Descriptive columns are forward filled, with a leading gap taking
// the first observed value. A filter that matches nothing returns a DataError.
func Preprocess(table domain.RawTable, productID string) (*domain.Series, error) {
	productID = strings.TrimSpace(productID)
	cols := ingest.ResolveColumns(table.Header)

	var missing []string
	for _, required := range []string{domain.ColDate, domain.ColUnitsOrdered} {
		if _, ok := cols[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}

	get := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	rows := make([]parsedRow, 0, len(table.Rows))
	skipped := 0
	for _, record := range table.Rows {
		parent := get(record, domain.ColParentProductID)
		child := get(record, domain.ColChildProductID)
		if productID != "" && parent != productID && child != productID {
			continue
		}

		date, ok := parseDate(get(record, domain.ColDate))
		if !ok {
			skipped++
			continue
		}

		values := make([]float64, len(numericFields))
		for i, f := range numericFields {
			values[i] = parseNumber(get(record, f.name))
		}

		rows = append(rows, parsedRow{
			date:   date,
			parent: parent,
			child:  child,
			title:  get(record, domain.ColTitle),
			values: values,
		})
	}

	if skipped > 0 {
		log.Warn().Str("product_id", productID).Int("rows", skipped).Msg("preprocess: skipped rows with unparseable dates")
	}
	if len(rows) == 0 {
		return nil, &domain.DataError{ProductID: productID}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })
	rows = mergeSameDay(rows)

	series := reindexDaily(rows)
	series.ProductID = productID
	if series.ProductID == "" {
		series.ProductID = rows[0].parent
	}
	for i := range series.Records {
		series.Records[i].ProductID = series.ProductID
	}

	series.Columns = make(map[string]bool, len(cols))
	for name := range cols {
		series.Columns[name] = true
	}

	return series, nil
}

// mergeSameDay collapses rows sharing a date. Rows must be sorted by date.
func mergeSameDay(rows []parsedRow) []parsedRow {
	out := rows[:0:0]
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].date.Equal(rows[i].date) {
			j++
		}
		if j-i == 1 {
			out = append(out, rows[i])
			i = j
			continue
		}

		merged := rows[i]
		merged.values = make([]float64, len(numericFields))
		for f, field := range numericFields {
			sum, n := 0.0, 0
			for _, r := range rows[i:j] {
				if !math.IsNaN(r.values[f]) {
					sum += r.values[f]
					n++
				}
			}
			switch {
			case n == 0:
				merged.values[f] = math.NaN()
			case field.additive:
				merged.values[f] = sum
			default:
				merged.values[f] = sum / float64(n)
			}
		}
		out = append(out, merged)
		i = j
	}
	return out
}

// reindexDaily spreads sorted, de-duplicated rows onto every calendar day
// between the first and last date and applies the fill policy column by column.
// Numeric gaps carry the last value forward and a leading gap is zero. The
// descriptive columns (parent, child, title) are forward filled and then back
// filled, so a blank cell on the first day takes the next observed value.
func reindexDaily(rows []parsedRow) *domain.Series {
	start := rows[0].date
	end := rows[len(rows)-1].date
	n := int(end.Sub(start)/day) + 1

	columns := make([][]float64, len(numericFields))
	for f := range columns {
		columns[f] = make([]float64, n)
		for i := range columns[f] {
			columns[f][i] = math.NaN()
		}
	}
	parents := make([]string, n)
	children := make([]string, n)
	titles := make([]string, n)
	observed := make([]bool, n)

	for _, r := range rows {
		pos := int(r.date.Sub(start) / day)
		observed[pos] = true
		parents[pos] = r.parent
		children[pos] = r.child
		titles[pos] = r.title
		for f := range numericFields {
			columns[f][pos] = r.values[f]
		}
	}

	for f := range columns {
		forwardFill(columns[f])
		fillNaN(columns[f], 0)
	}
	for _, col := range [][]string{parents, children, titles} {
		forwardFillStrings(col)
		backwardFillStrings(col)
	}

	records := make([]domain.DailyRecord, n)
	for i := range records {
		rec := domain.DailyRecord{
			Date:            start.Add(time.Duration(i) * day),
			ParentProductID: parents[i],
			ChildProductID:  children[i],
			Title:           titles[i],
			Filled:          !observed[i],
		}
		for f, field := range numericFields {
			field.set(&rec, columns[f][i])
		}
		records[i] = rec
	}

	return &domain.Series{Records: records}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	// Spreadsheet serial day numbers (days since 1899-12-30).
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		base := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		return base.Add(time.Duration(int(serial)) * day), true
	}
	return time.Time{}, false
}

var numberSanitizer = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "Rp", "", " ", "")

// parseNumber parses a report cell. Empty or unparseable cells become NaN so the
// fill policy can treat them as gaps. Percent strings are returned as fractions.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	percent := strings.HasSuffix(s, "%")
	s = numberSanitizer.Replace(strings.TrimSuffix(s, "%"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if percent {
		f /= 100
	}
	return f
}
