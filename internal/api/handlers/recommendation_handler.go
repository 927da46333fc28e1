package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/export"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/gin-gonic/gin"
)

// exportPageSize is the page size used while collecting rows for an export.
const exportPageSize = 500

type RecommendationHandler struct {
	service *service.RecommendationService
}

func NewRecommendationHandler(service *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

func (h *RecommendationHandler) parseFilter(c *gin.Context) domain.RecommendationFilter {
	filter := domain.RecommendationFilter{
		RunDate:     strings.TrimSpace(c.DefaultQuery("run_date", service.LatestRunDate)),
		ProductIDs:  splitList(c.QueryArray("product_ids")),
		ReorderOnly: parseBool(c.Query("reorder_only")),
		SortField:   strings.TrimSpace(c.Query("sort_field")),
		SortDir:     strings.TrimSpace(c.Query("sort_direction")),
		Page:        parsePositiveIntWithDefault(c.Query("page"), 1),
		PageSize:    parsePositiveIntWithDefault(c.Query("page_size"), 50),
	}
	return filter
}

// List returns one page of stored recommendations.
func (h *RecommendationHandler) List(c *gin.Context) {
	filter := h.parseFilter(c)
	if filter.RunDate != service.LatestRunDate {
		if _, err := time.Parse("2006-01-02", filter.RunDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_date must be YYYY-MM-DD or latest"})
			return
		}
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		errorResponse(c, err, "failed to list recommendations")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Export streams every recommendation matching the filter as an XLSX file.
func (h *RecommendationHandler) Export(c *gin.Context) {
	filter := h.parseFilter(c)
	filter.PageSize = exportPageSize

	var recs []domain.InventoryRecommendation
	runDate := ""
	for page := 1; ; page++ {
		filter.Page = page
		result, err := h.service.List(c.Request.Context(), filter)
		if err != nil {
			errorResponse(c, err, "failed to load recommendations for export")
			return
		}
		for _, row := range result.Rows {
			recs = append(recs, row.Recommendation())
			if runDate == "" {
				runDate = row.RunDate.Format("20060102")
			}
		}
		if len(result.Rows) == 0 || len(recs) >= result.Total {
			break
		}
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, recs); err != nil {
		errorResponse(c, err, "failed to render export")
		return
	}

	if runDate == "" {
		runDate = time.Now().Format("20060102")
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="recommendations_%s.xlsx"`, runDate))
	c.Data(http.StatusOK, export.XLSXContentType, buf.Bytes())
}
