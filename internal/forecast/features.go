package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

// FeatureNames is the column order of FeatureVector.
var FeatureNames = []string{
	"day_of_week",
	"month",
	"day_of_month",
	"iso_week",
	"is_peak_month",
	"monthly_factor",
	domain.ColUniqueViews,
	domain.ColTotalViews,
	domain.ColConversionRate,
}

// RequiredTrafficColumns must be present in a series before features can be built.
var RequiredTrafficColumns = []string{
	domain.ColUniqueViews,
	domain.ColTotalViews,
	domain.ColConversionRate,
}

// BuildFeatures derives calendar features for every day of series and joins the
// seasonal columns from profile. It fails with a SchemaError when the source
// did not provide the traffic columns the regressor needs.
func BuildFeatures(series *domain.Series, profile domain.SeasonalProfile) ([]domain.FeatureRow, error) {
	if series.Len() == 0 {
		id := ""
		if series != nil {
			id = series.ProductID
		}
		return nil, &domain.DataError{ProductID: id, Reason: "empty series"}
	}

	var missing []string
	for _, col := range RequiredTrafficColumns {
		if !series.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}

	n := series.Len()
	factors := make([]float64, n)
	peaks := make([]float64, n)
	for i, r := range series.Records {
		ms := profile.Month(r.Date.Month())
		factors[i] = ms.Mean
		peaks[i] = boolToFloat(ms.Peak)
		if math.IsNaN(ms.Mean) || math.IsInf(ms.Mean, 0) {
			factors[i] = math.NaN()
		}
	}
	closeGaps(factors)
	closeGaps(peaks)

	rows := make([]domain.FeatureRow, n)
	for i, r := range series.Records {
		rows[i] = calendarRow(r)
		rows[i].MonthlyFactor = factors[i]
		rows[i].IsPeakMonth = int(peaks[i])
	}
	return rows, nil
}

// FutureFeatures synthesizes feature rows for dates after the training window.
// Calendar columns come from the date itself. Seasonal columns reuse the
// month-of-year values seen in history, falling back to their average for months
// the history never covered. Traffic columns are held at their historical means.
func FutureFeatures(dates []time.Time, history []domain.FeatureRow) []domain.FeatureRow {
	var (
		factor [12]float64
		peak   [12]int
		seen   [12]bool
	)
	for _, h := range history {
		m := h.Month - 1
		if m < 0 || m > 11 || seen[m] {
			continue
		}
		factor[m] = h.MonthlyFactor
		peak[m] = h.IsPeakMonth
		seen[m] = true
	}

	var seenFactors []float64
	for m := range factor {
		if seen[m] {
			seenFactors = append(seenFactors, factor[m])
		}
	}
	fallback := mean(seenFactors)

	traffic := trafficMeans(history)

	rows := make([]domain.FeatureRow, len(dates))
	for i, d := range dates {
		row := calendarRow(domain.DailyRecord{Date: d})
		m := row.Month - 1
		if seen[m] {
			row.MonthlyFactor = factor[m]
			row.IsPeakMonth = peak[m]
		} else {
			row.MonthlyFactor = fallback
		}
		row.UniqueViews = traffic.UniqueViews
		row.TotalViews = traffic.TotalViews
		row.ConversionRate = traffic.ConversionRate
		rows[i] = row
	}
	return rows
}

// FeatureVector flattens a row in FeatureNames order.
func FeatureVector(r domain.FeatureRow) []float64 {
	return []float64{
		float64(r.DayOfWeek),
		float64(r.Month),
		float64(r.DayOfMonth),
		float64(r.ISOWeek),
		float64(r.IsPeakMonth),
		r.MonthlyFactor,
		r.UniqueViews,
		r.TotalViews,
		r.ConversionRate,
	}
}

// DayOfWeek returns the weekday with Monday as 0 and Sunday as 6.
func DayOfWeek(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

type traffic struct {
	UniqueViews    float64
	TotalViews     float64
	ConversionRate float64
}

func trafficMeans(rows []domain.FeatureRow) traffic {
	if len(rows) == 0 {
		return traffic{}
	}
	var t traffic
	for _, r := range rows {
		t.UniqueViews += r.UniqueViews
		t.TotalViews += r.TotalViews
		t.ConversionRate += r.ConversionRate
	}
	n := float64(len(rows))
	return traffic{t.UniqueViews / n, t.TotalViews / n, t.ConversionRate / n}
}

func calendarRow(r domain.DailyRecord) domain.FeatureRow {
	_, week := r.Date.ISOWeek()
	return domain.FeatureRow{
		DailyRecord: r,
		DayOfWeek:   DayOfWeek(r.Date),
		Month:       int(r.Date.Month()),
		Year:        r.Date.Year(),
		DayOfMonth:  r.Date.Day(),
		ISOWeek:     week,
	}
}

// closeGaps forward fills, back fills, then zeroes anything left.
func closeGaps(xs []float64) {
	forwardFill(xs)
	backwardFill(xs)
	fillNaN(xs, 0)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
