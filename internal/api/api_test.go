package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/export"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEngine struct{}

func (stubEngine) Run(_ context.Context, _ domain.RawTable, productID string) (*forecast.Outcome, error) {
	return &forecast.Outcome{
		ProductID: productID,
		Model:     "hybrid",
		Forecast:  &domain.ForecastResult{ProductID: productID, Daily: []float64{1, 2}},
		Recommendation: domain.InventoryRecommendation{
			ProductID:          productID,
			Checkpoints:        []domain.Checkpoint{{Days: 30, Cumulative: 300}},
			RequiredInventory:  1000,
			EffectiveThreshold: 800,
			ReplenishmentDays:  120,
		},
	}, nil
}

type memoryRepo struct {
	rows []domain.RecommendationRow
}

func (m *memoryRepo) UpsertRecommendations(_ context.Context, rows []domain.RecommendationRow) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memoryRepo) ListRecommendations(_ context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, error) {
	var matched []domain.RecommendationRow
	for _, r := range m.rows {
		if filter.RunDate != "" && r.RunDate.Format("2006-01-02") != filter.RunDate {
			continue
		}
		if filter.ReorderOnly && (r.Reorder == nil || !*r.Reorder) {
			continue
		}
		matched = append(matched, r)
	}
	lo := (filter.Page - 1) * filter.PageSize
	if lo > len(matched) {
		lo = len(matched)
	}
	hi := lo + filter.PageSize
	if hi > len(matched) {
		hi = len(matched)
	}
	return &domain.RecommendationPage{Rows: matched[lo:hi], Total: len(matched), Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *memoryRepo) LatestRunDate(context.Context) (time.Time, error) {
	var latest time.Time
	for _, r := range m.rows {
		if r.RunDate.After(latest) {
			latest = r.RunDate
		}
	}
	if latest.IsZero() {
		return latest, repository.ErrNoRecommendations
	}
	return latest, nil
}

func newTestRouter(t *testing.T, repo *memoryRepo) *gin.Engine {
	cfg := pipeline.DefaultPipelineConfig("demand_forecast")
	cfg.OutputDir = t.TempDir()
	recs := service.NewRecommendationService(repo, nil)
	orch := pipeline.NewOrchestrator(pipeline.NewMemoryStore(), cfg, nil)

	return NewRouter(&Services{
		ForecastService:       service.NewForecastService(stubEngine{}, orch, recs, nil, "exports"),
		RecommendationService: recs,
	}, Options{UploadDir: t.TempDir(), MaxUploadBytes: 1 << 20})
}

func multipartBody(t *testing.T, files map[string][2]string, fields map[string]string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, file := range files {
		part, err := w.CreateFormFile(field, file[0])
		require.NoError(t, err)
		_, err = part.Write([]byte(file[1]))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const salesCSV = "date,parent_product_id,units_ordered\n2024-01-01,A,3\n2024-01-01,B,4\n"

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &memoryRepo{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForecastUpload(t *testing.T) {
	router := newTestRouter(t, &memoryRepo{})

	body, contentType := multipartBody(t,
		map[string][2]string{
			"file":  {"sales_20240601.csv", salesCSV},
			"stock": {"stock.csv", "sku,on_hand\nA,100\n"},
		},
		map[string]string{"include_series": "true"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Run struct {
			Status            string    `json:"status"`
			ProcessedProducts int       `json:"processed_products"`
			Date              time.Time `json:"date"`
		} `json:"run"`
		Recommendations []domain.InventoryRecommendation `json:"recommendations"`
		Products        []struct {
			ProductID string                 `json:"product_id"`
			Forecast  *domain.ForecastResult `json:"forecast"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Run.Status)
	assert.Equal(t, 2, resp.Run.ProcessedProducts)
	assert.Equal(t, "2024-06-01", resp.Run.Date.Format("2006-01-02"))
	require.Len(t, resp.Recommendations, 2)
	require.NotNil(t, resp.Recommendations[0].Decision)
	assert.True(t, resp.Recommendations[0].Decision.Reorder)
	require.Len(t, resp.Products, 2)
	require.NotNil(t, resp.Products[0].Forecast)
	assert.Equal(t, []float64{1, 2}, resp.Products[0].Forecast.Daily)
}

func TestForecastRejectsBadInput(t *testing.T) {
	router := newTestRouter(t, &memoryRepo{})

	tests := []struct {
		name   string
		files  map[string][2]string
		fields map[string]string
		want   int
	}{
		{"missing file", nil, nil, http.StatusBadRequest},
		{"unsupported extension", map[string][2]string{"file": {"sales.json", "{}"}}, nil, http.StatusBadRequest},
		{"bad run date", map[string][2]string{"file": {"sales.csv", salesCSV}}, map[string]string{"run_date": "June"}, http.StatusBadRequest},
		{"missing demand column", map[string][2]string{"file": {"sales.csv", "date,parent_product_id\n2024-01-01,A\n"}}, nil, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.files, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func seededRepo() *memoryRepo {
	yes := true
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &memoryRepo{}
	repo.rows = []domain.RecommendationRow{
		{RunDate: older, ProductID: "OLD", RequiredInventory: 1},
		{RunDate: latest, ProductID: "A", RequiredInventory: 1000, Reorder: &yes},
		{RunDate: latest, ProductID: "B", RequiredInventory: 50},
	}
	return repo
}

func TestListRecommendations(t *testing.T) {
	router := newTestRouter(t, seededRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recommendations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page domain.RecommendationPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recommendations?run_date=2024-06-01&reorder_only=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "A", page.Rows[0].ProductID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recommendations?run_date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRecommendations(t *testing.T) {
	router := newTestRouter(t, seededRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "recommendations_20240601.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", ""})
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins)
	assert.False(t, all)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
