package postgres

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// buildRecommendationFilterClause constructs the WHERE predicates for a
// recommendation listing. The returned clause starts with " AND " when non-empty.
func buildRecommendationFilterClause(filter domain.RecommendationFilter, alias string, startIndex int) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	alias = normalizeAlias(alias)
	idx := startIndex

	if filter.RunDate != "" {
		clauses = append(clauses, fmt.Sprintf("%srun_date = $%d", alias, idx))
		args = append(args, filter.RunDate)
		idx++
	}

	if len(filter.ProductIDs) > 0 {
		placeholders := make([]string, len(filter.ProductIDs))
		for i, id := range filter.ProductIDs {
			placeholders[i] = fmt.Sprintf("$%d", idx)
			args = append(args, id)
			idx++
		}
		clauses = append(clauses, fmt.Sprintf("%sproduct_id IN (%s)", alias, strings.Join(placeholders, ",")))
	}

	if filter.ReorderOnly {
		clauses = append(clauses, fmt.Sprintf("%sreorder IS TRUE", alias))
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " AND " + strings.Join(clauses, " AND "), args
}

var sortColumns = map[string]string{
	"product_id":          "product_id",
	"required_inventory":  "required_inventory",
	"effective_threshold": "effective_threshold",
	"suggested_quantity":  "suggested_quantity",
	"mean_daily_forecast": "mean_daily_forecast",
	"run_date":            "run_date",
}

// buildOrderClause whitelists the sort field. Unknown fields sort by product
// ascending and ignore the requested direction.
func buildOrderClause(field, direction, alias string) string {
	column, ok := sortColumns[strings.ToLower(field)]
	if !ok {
		column = "product_id"
	}
	dir := "ASC"
	if ok && strings.EqualFold(direction, "desc") {
		dir = "DESC"
	}
	alias = normalizeAlias(alias)
	order := fmt.Sprintf("%s%s %s NULLS LAST", alias, column, dir)
	if column != "product_id" {
		order += fmt.Sprintf(", %sproduct_id ASC", alias)
	}
	return " ORDER BY " + order
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}

func normalizeAlias(alias string) string {
	if alias == "" {
		return ""
	}
	if !strings.HasSuffix(alias, ".") {
		return alias + "."
	}
	return alias
}
