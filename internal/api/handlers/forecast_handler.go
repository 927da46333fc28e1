package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline/demand_forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ForecastHandler struct {
	service   *service.ForecastService
	uploadDir string
}

func NewForecastHandler(service *service.ForecastService, uploadDir string) *ForecastHandler {
	return &ForecastHandler{service: service, uploadDir: uploadDir}
}

// productForecast is the per-product part of the forecast response. Daily
// series are only included on request since they are long.
type productForecast struct {
	ProductID   string                     `json:"product_id"`
	Model       string                     `json:"model"`
	TookMs      int64                      `json:"took_ms"`
	Profile     domain.SeasonalProfile     `json:"seasonal_profile"`
	Impacts     []domain.EventImpact       `json:"event_impacts"`
	Importances []domain.FeatureImportance `json:"feature_importances"`
	Forecast    *domain.ForecastResult     `json:"forecast,omitempty"`
}

type forecastResponse struct {
	Run             *pipeline.PipelineRun            `json:"run"`
	Recommendations []domain.InventoryRecommendation `json:"recommendations"`
	Products        []productForecast                `json:"products"`
	ExportKey       string                           `json:"export_key,omitempty"`
}

// Forecast accepts a sales report upload and returns recommendations.
//
// Form fields: file (required), stock (optional on-hand report), product_ids,
// run_date (YYYY-MM-DD), publish, include_series.
func (h *ForecastHandler) Forecast(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if !ingest.IsSupported(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": unsupportedMessage(file.Filename)})
		return
	}

	reportPath, err := h.saveUpload(c, file)
	if err != nil {
		errorResponse(c, err, "failed to save uploaded file")
		return
	}
	defer os.Remove(reportPath)

	table, err := ingest.ReadFile(reportPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read report", "detail": err.Error()})
		return
	}

	req := service.ForecastRequest{
		Table:      table,
		Source:     file.Filename,
		ProductIDs: splitList(c.PostFormArray("product_ids")),
		Publish:    parseBool(c.PostForm("publish")),
	}

	if raw := strings.TrimSpace(c.PostForm("run_date")); raw != "" {
		req.RunDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_date must be YYYY-MM-DD"})
			return
		}
	} else if d, ok := pipeline.SnapshotDate(file.Filename); ok {
		req.RunDate = d
	}

	if stockFile, err := c.FormFile("stock"); err == nil {
		if !ingest.IsSupported(stockFile.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": unsupportedMessage(stockFile.Filename)})
			return
		}
		stockPath, err := h.saveUpload(c, stockFile)
		if err != nil {
			errorResponse(c, err, "failed to save stock file")
			return
		}
		defer os.Remove(stockPath)

		req.Stock, err = demand_forecast.LoadStockLevels(stockPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read stock file", "detail": err.Error()})
			return
		}
	}

	resp, err := h.service.Forecast(c.Request.Context(), req)
	if err != nil {
		errorResponse(c, err, "forecast failed")
		return
	}

	includeSeries := parseBool(c.PostForm("include_series")) || parseBool(c.Query("include_series"))
	c.JSON(http.StatusOK, forecastResponse{
		Run:             resp.Run,
		Recommendations: nonNil(resp.Recommendations),
		Products:        productViews(resp.Outcomes, includeSeries),
		ExportKey:       resp.ExportKey,
	})
}

func (h *ForecastHandler) saveUpload(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}
	// The original name is kept as a suffix so the extension still selects
	// the reader; the prefix keeps concurrent uploads apart.
	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(file.Filename))
	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		return "", err
	}
	log.Debug().Str("filename", file.Filename).Int64("size", file.Size).Str("path", path).Msg("saved upload")
	return path, nil
}

func unsupportedMessage(name string) string {
	return fmt.Sprintf("unsupported file type %q, expected one of %s",
		filepath.Ext(name), strings.Join(ingest.SupportedExtensions, ", "))
}

func productViews(outcomes []*forecast.Outcome, includeSeries bool) []productForecast {
	views := make([]productForecast, 0, len(outcomes))
	for _, o := range outcomes {
		v := productForecast{
			ProductID:   o.ProductID,
			Model:       o.Model,
			TookMs:      o.Took.Milliseconds(),
			Profile:     o.Profile,
			Impacts:     o.Impacts,
			Importances: o.Importances,
		}
		if includeSeries {
			v.Forecast = o.Forecast
		}
		views = append(views, v)
	}
	return views
}

func nonNil(recs []domain.InventoryRecommendation) []domain.InventoryRecommendation {
	if recs == nil {
		return []domain.InventoryRecommendation{}
	}
	return recs
}
