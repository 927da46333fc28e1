package forecast

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessContiguousOverRandomGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	start := ymd(2023, 1, 1)

	for trial := 0; trial < 50; trial++ {
		n := 20 + rng.Intn(200)
		table := domain.RawTable{Header: reportHeader}
		kept := 0
		for i := 0; i < n; i++ {
			if i != 0 && i != n-1 && rng.Float64() < 0.4 {
				continue
			}
			row := reportRow(start.AddDate(0, 0, i), "P1", "C1", float64(rng.Intn(30)))
			// Blank a random numeric cell to exercise the fill policy.
			if rng.Float64() < 0.2 {
				row[4+rng.Intn(8)] = ""
			}
			table.Rows = append(table.Rows, row)
			kept++
		}
		rng.Shuffle(len(table.Rows), func(i, j int) { table.Rows[i], table.Rows[j] = table.Rows[j], table.Rows[i] })

		series, err := Preprocess(table, "P1")
		require.NoError(t, err)
		require.Equal(t, n, series.Len(), "trial %d", trial)

		filled := 0
		for i, r := range series.Records {
			assert.True(t, r.Date.Equal(start.AddDate(0, 0, i)), "trial %d day %d", trial, i)
			for _, v := range []float64{r.UniqueViews, r.ViewRatio, r.TotalViews, r.TotalViewRatio,
				r.OrderCount, r.ConversionRate, r.SalesAmount, r.UnitsOrdered} {
				assert.False(t, math.IsNaN(v), "trial %d day %d has NaN", trial, i)
			}
			if r.Filled {
				filled++
			}
		}
		assert.Equal(t, n-kept, filled, "trial %d", trial)
	}
}

func TestPreprocessFillPolicy(t *testing.T) {
	table := domain.RawTable{Header: reportHeader}
	first := reportRow(ymd(2024, 3, 1), "P1", "C1", 5)
	first[3] = "" // title
	first[9] = "" // conversion_rate
	table.Rows = append(table.Rows, first)
	table.Rows = append(table.Rows, reportRow(ymd(2024, 3, 4), "P1", "C1", 7))

	series, err := Preprocess(table, "P1")
	require.NoError(t, err)
	require.Equal(t, 4, series.Len())

	units := series.Demand()
	assert.Equal(t, []float64{5, 5, 5, 7}, units)

	// Leading numeric gap is zero filled, later gaps carry the last value.
	assert.Equal(t, 0.0, series.Records[0].ConversionRate)
	assert.Equal(t, 0.0, series.Records[2].ConversionRate)
	assert.Equal(t, 0.1, series.Records[3].ConversionRate)

	// Descriptive fields take the first observed value for a leading gap.
	for _, r := range series.Records {
		assert.Equal(t, "Widget P1", r.Title)
		assert.Equal(t, "P1", r.ParentProductID)
		assert.Equal(t, "P1", r.ProductID)
	}
	assert.False(t, series.Records[0].Filled)
	assert.True(t, series.Records[1].Filled)
}

func TestPreprocessFiltersOnParentOrChild(t *testing.T) {
	table := domain.RawTable{Header: reportHeader}
	table.Rows = append(table.Rows,
		reportRow(ymd(2024, 1, 1), "P1", "C1", 1),
		reportRow(ymd(2024, 1, 2), "P2", "C2", 2),
		reportRow(ymd(2024, 1, 3), "P1", "C3", 3),
	)

	byParent, err := Preprocess(table, "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, byParent.Len())
	assert.Equal(t, []float64{1, 1, 3}, byParent.Demand())

	byChild, err := Preprocess(table, "C2")
	require.NoError(t, err)
	assert.Equal(t, 1, byChild.Len())
	assert.Equal(t, "C2", byChild.ProductID)
}

func TestPreprocessUnknownProductIsDataError(t *testing.T) {
	table := dailyTable("P1", ymd(2024, 1, 1), 10, func(int, time.Time) float64 { return 1 })

	_, err := Preprocess(table, "NOPE")
	require.Error(t, err)

	var dataErr *domain.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "NOPE", dataErr.ProductID)
}

func TestPreprocessMissingRequiredColumns(t *testing.T) {
	table := domain.RawTable{
		Header: []string{"date", "parent_product_id", "sessions"},
		Rows:   [][]string{{"2024-01-01", "P1", "3"}},
	}
	_, err := Preprocess(table, "P1")

	var schemaErr *domain.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{domain.ColUnitsOrdered}, schemaErr.Missing)
}

func TestPreprocessMergesDuplicateDays(t *testing.T) {
	table := domain.RawTable{Header: reportHeader}
	a := reportRow(ymd(2024, 5, 1), "P1", "C1", 4)
	b := reportRow(ymd(2024, 5, 1), "P1", "C2", 6)
	b[9] = "0.3"
	table.Rows = append(table.Rows, a, b)

	series, err := Preprocess(table, "P1")
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, 10.0, series.Records[0].UnitsOrdered)
	assert.InDelta(t, 0.2, series.Records[0].ConversionRate, 1e-12)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12", 12},
		{"1,234.5", 1234.5},
		{"$5.25", 5.25},
		{"12%", 0.12},
		{" 7 ", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseNumber(tt.in), 1e-12)
		})
	}

	for _, in := range []string{"", "-", "n/a", "NaN"} {
		assert.True(t, math.IsNaN(parseNumber(in)), "parseNumber(%q)", in)
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := ymd(2024, 2, 29)
	for _, in := range []string{"2024-02-29", "2024/02/29", "02/29/2024", "2/29/2024", "2024-02-29T10:00:00Z", "45351"} {
		got, ok := parseDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "parseDate(%q) = %v", in, got)
	}
	_, ok := parseDate("yesterday")
	assert.False(t, ok)
}
