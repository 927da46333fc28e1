// internal/domain/models.go
package domain

import "time"

// Canonical column names used across ingest, preprocessing and feature building.
const (
	ColDate            = "date"
	ColParentProductID = "parent_product_id"
	ColChildProductID  = "child_product_id"
	ColTitle           = "title"
	ColUniqueViews     = "unique_views"
	ColViewRatio       = "view_ratio"
	ColTotalViews      = "total_views"
	ColTotalViewRatio  = "total_view_ratio"
	ColOrderCount      = "order_count"
	ColConversionRate  = "conversion_rate"
	ColSalesAmount     = "sales_amount"
	ColUnitsOrdered    = "units_ordered"
)

// RawTable is a source report as read from disk: a header plus string cells.
// Column names are whatever the source system used.
type RawTable struct {
	Source string
	Header []string
	Rows   [][]string
}

// DailyRecord is one calendar day of demand and traffic for a product.
type DailyRecord struct {
	Date            time.Time `json:"date" db:"date"`
	ProductID       string    `json:"product_id" db:"product_id"`
	ParentProductID string    `json:"parent_product_id" db:"parent_product_id"`
	ChildProductID  string    `json:"child_product_id" db:"child_product_id"`
	Title           string    `json:"title" db:"title"`
	UniqueViews     float64   `json:"unique_views" db:"unique_views"`
	TotalViews      float64   `json:"total_views" db:"total_views"`
	ViewRatio       float64   `json:"view_ratio" db:"view_ratio"`
	TotalViewRatio  float64   `json:"total_view_ratio" db:"total_view_ratio"`
	OrderCount      float64   `json:"order_count" db:"order_count"`
	ConversionRate  float64   `json:"conversion_rate" db:"conversion_rate"`
	SalesAmount     float64   `json:"sales_amount" db:"sales_amount"`
	UnitsOrdered    float64   `json:"units_ordered" db:"units_ordered"`
	// Filled is true for gap days introduced by reindexing.
	Filled bool `json:"filled" db:"-"`
}

// Series is a date-contiguous daily series for one product.
type Series struct {
	ProductID string
	Records   []DailyRecord
	// Columns holds the canonical columns the source report provided.
	Columns map[string]bool
}

// Len returns the number of days in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Demand returns units ordered per day, in date order.
func (s *Series) Demand() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.UnitsOrdered
	}
	return out
}

// Start returns the first date of the series.
func (s *Series) Start() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Records[0].Date
}

// End returns the last date of the series.
func (s *Series) End() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Records[len(s.Records)-1].Date
}

// HasColumn reports whether the source provided the canonical column.
func (s *Series) HasColumn(name string) bool {
	return s.Columns != nil && s.Columns[name]
}

// MonthStat holds the demand statistics for one calendar month.
type MonthStat struct {
	Month       time.Month `json:"month"`
	Mean        float64    `json:"mean"`
	StdDev      float64    `json:"std_dev"`
	Count       int        `json:"count"`
	ZScore      float64    `json:"z_score"`
	PValue      float64    `json:"p_value"`
	Significant bool       `json:"significant"`
	Peak        bool       `json:"peak"`
	Observed    bool       `json:"observed"`
}

// SeasonalProfile describes month-of-year demand seasonality for one product.
type SeasonalProfile struct {
	ProductID         string        `json:"product_id"`
	Months            [12]MonthStat `json:"months"`
	OverallMean       float64       `json:"overall_mean"`
	Threshold         float64       `json:"threshold"`
	PeakMonths        []time.Month  `json:"peak_months"`
	SignificantMonths []time.Month  `json:"significant_months"`
}

// Month returns the statistics for m.
func (p SeasonalProfile) Month(m time.Month) MonthStat {
	return p.Months[int(m)-1]
}

// IsPeak reports whether m is a peak month.
func (p SeasonalProfile) IsPeak(m time.Month) bool {
	return p.Months[int(m)-1].Peak
}

// MonthlyFactor returns the mean demand for m.
func (p SeasonalProfile) MonthlyFactor(m time.Month) float64 {
	return p.Months[int(m)-1].Mean
}

// EventWindow is a recurring promotional period.
type EventWindow struct {
	Name  string    `json:"name" mapstructure:"name"`
	Start time.Time `json:"start" mapstructure:"start"`
	End   time.Time `json:"end" mapstructure:"end"`
}

// Contains reports whether d falls within the window, inclusive on both ends.
func (w EventWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// DurationDays returns the inclusive number of days in the window.
func (w EventWindow) DurationDays() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// EventImpact is the measured demand uplift of one event window.
type EventImpact struct {
	Window       EventWindow `json:"window"`
	ImpactFactor float64     `json:"impact_factor"`
	ActivityMean float64     `json:"activity_mean"`
	BaselineMean float64     `json:"baseline_mean"`
	DurationDays int         `json:"duration_days"`
}

// FeatureRow is a DailyRecord plus derived calendar and seasonal features.
type FeatureRow struct {
	DailyRecord
	DayOfWeek     int     `json:"day_of_week"`
	Month         int     `json:"month"`
	Year          int     `json:"year"`
	DayOfMonth    int     `json:"day_of_month"`
	ISOWeek       int     `json:"iso_week"`
	IsPeakMonth   int     `json:"is_peak_month"`
	MonthlyFactor float64 `json:"monthly_factor"`
}
