package ingest

import (
	"strings"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

// columnAliases maps each canonical column to the header spellings seen in
// sales/traffic exports. Matching is done on normalized names.
var columnAliases = map[string][]string{
	domain.ColDate:            {"date", "day", "report date"},
	domain.ColParentProductID: {"parent_product_id", "parent asin", "(parent) asin", "parent sku", "parent_id"},
	domain.ColChildProductID:  {"child_product_id", "child asin", "(child) asin", "sku", "asin", "child_id"},
	domain.ColTitle:           {"title", "product title", "product name", "nama"},
	domain.ColUniqueViews:     {"unique_views", "unique_page_views", "sessions", "sessions - total", "unique page views"},
	domain.ColViewRatio:       {"view_ratio", "unique_page_view_ratio", "session percentage", "session percentage - total"},
	domain.ColTotalViews:      {"total_views", "total_page_views", "page views", "page views - total"},
	domain.ColTotalViewRatio:  {"total_view_ratio", "total_page_view_ratio", "page views percentage", "page views percentage - total"},
	domain.ColOrderCount:      {"order_count", "total_orders", "total order items", "order items"},
	domain.ColConversionRate:  {"conversion_rate", "unit session percentage", "conversion"},
	domain.ColSalesAmount:     {"sales_amount", "total_sales_amount", "ordered product sales", "sales"},
	domain.ColUnitsOrdered:    {"units_ordered", "units ordered", "qty", "quantity"},
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "", "(", "", ")", "")

// NormalizeColumnName lowercases a header and strips separators so that
// "Units Ordered", "units_ordered" and "units-ordered" compare equal.
func NormalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// ResolveColumns returns canonical column -> header index for every canonical
// column the header provides. The first matching header wins.
func ResolveColumns(header []string) map[string]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeColumnName(h)
	}

	resolved := make(map[string]int, len(columnAliases))
	for canonical, aliases := range columnAliases {
		targets := make(map[string]struct{}, len(aliases))
		for _, a := range aliases {
			targets[NormalizeColumnName(a)] = struct{}{}
		}
		for i, h := range normalized {
			if _, ok := targets[h]; ok {
				resolved[canonical] = i
				break
			}
		}
	}

	// "sku" and "asin" are child aliases, but a report with only one product
	// column should not lose it to a parent/child ambiguity.
	if _, ok := resolved[domain.ColParentProductID]; !ok {
		if idx, ok := resolved[domain.ColChildProductID]; ok {
			resolved[domain.ColParentProductID] = idx
		}
	}

	return resolved
}

// CanonicalColumns lists every canonical column in report order.
func CanonicalColumns() []string {
	return []string{
		domain.ColDate,
		domain.ColParentProductID,
		domain.ColChildProductID,
		domain.ColTitle,
		domain.ColUniqueViews,
		domain.ColViewRatio,
		domain.ColTotalViews,
		domain.ColTotalViewRatio,
		domain.ColOrderCount,
		domain.ColConversionRate,
		domain.ColSalesAmount,
		domain.ColUnitsOrdered,
	}
}
