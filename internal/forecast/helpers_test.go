package forecast

import (
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

var reportHeader = []string{
	"date", "parent_product_id", "child_product_id", "title",
	"unique_page_views", "unique_page_view_ratio", "total_page_views", "total_page_view_ratio",
	"total_orders", "conversion_rate", "total_sales_amount", "units_ordered",
}

func ymd(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// reportRow builds one report row with traffic proportional to units.
func reportRow(date time.Time, parent, child string, units float64) []string {
	return []string{
		date.Format("2006-01-02"), parent, child, "Widget " + parent,
		"100", "0.5", "200", "0.4",
		ftoa(units), "0.1", ftoa(units * 9.99), ftoa(units),
	}
}

// dailyTable builds a contiguous report of n days for one product.
func dailyTable(product string, start time.Time, n int, demand func(i int, d time.Time) float64) domain.RawTable {
	t := domain.RawTable{Header: append([]string(nil), reportHeader...)}
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		t.Rows = append(t.Rows, reportRow(d, product, product+"-C", demand(i, d)))
	}
	return t
}

// saturdayDemand is 50 on Saturdays and 10 otherwise.
func saturdayDemand(_ int, d time.Time) float64 {
	if d.Weekday() == time.Saturday {
		return 50
	}
	return 10
}

func seriesFromDemand(product string, start time.Time, demand []float64) *domain.Series {
	s := &domain.Series{ProductID: product, Columns: map[string]bool{}}
	for _, c := range []string{domain.ColDate, domain.ColUnitsOrdered, domain.ColUniqueViews, domain.ColTotalViews, domain.ColConversionRate} {
		s.Columns[c] = true
	}
	for i, v := range demand {
		s.Records = append(s.Records, domain.DailyRecord{
			Date:           start.AddDate(0, 0, i),
			ProductID:      product,
			UnitsOrdered:   v,
			UniqueViews:    100,
			TotalViews:     200,
			ConversionRate: 0.1,
		})
	}
	return s
}
