package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource struct {
	mu      sync.Mutex
	files   map[string]*File
	content map[string]string
	folders map[string]string
}

func newMemorySource() *memorySource {
	return &memorySource{
		files:   map[string]*File{},
		content: map[string]string{},
		folders: map[string]string{"reports/daily": "folder-1"},
	}
}

func (m *memorySource) put(id, name, modified, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = &File{ID: id, Name: name, MimeType: "text/csv", ModifiedTime: modified}
	m.content[id] = content
}

func (m *memorySource) ListFiles(_ context.Context, folderID string) ([]*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*File{{ID: "sub", Name: "archive", MimeType: folderMimeType}}
	for _, f := range m.files {
		out = append(out, f)
	}
	return out, nil
}

func (m *memorySource) GetFile(_ context.Context, fileID string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return f, nil
}

func (m *memorySource) DownloadFile(_ context.Context, fileID string, w io.Writer) error {
	m.mu.Lock()
	content, ok := m.content[fileID]
	m.mu.Unlock()
	if !ok {
		return errors.New("not found")
	}
	_, err := io.WriteString(w, content)
	return err
}

func (m *memorySource) FindFolderByPath(_ context.Context, path string) (string, error) {
	id, ok := m.folders[path]
	if !ok {
		return "", fmt.Errorf("folder not found: %s", path)
	}
	return id, nil
}

type recordingForecaster struct {
	requests []service.FileRequest
	err      error
}

func (r *recordingForecaster) ForecastFile(_ context.Context, req service.FileRequest) (*service.ForecastResponse, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &service.ForecastResponse{
		Recommendations: []domain.InventoryRecommendation{{ProductID: "A", RequiredInventory: 10}},
	}, nil
}

const report = "date,parent_product_id,units_ordered\n2024-01-01,A,3\n"

func TestIngestFile(t *testing.T) {
	src := newMemorySource()
	src.put("r1", "sales_20240601.csv", "t1", report)
	src.put("s1", "stock.csv", "t1", "sku,on_hand\nA,5\n")
	src.put("x1", "notes.txt", "t1", "hello")

	fc := &recordingForecaster{}
	dir := t.TempDir()
	svc := NewIngestService(src, fc, dir)

	resp, err := svc.IngestFile(context.Background(), IngestRequest{FileID: "r1", StockFileID: "s1", Publish: true})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, filepath.Join(dir, "sales_20240601.csv"), req.Path)
	assert.Equal(t, filepath.Join(dir, "stock.csv"), req.StockPath)
	assert.True(t, req.Publish)

	data, err := os.ReadFile(req.Path)
	require.NoError(t, err)
	assert.Equal(t, report, string(data))

	_, err = svc.IngestFile(context.Background(), IngestRequest{FileID: "x1"})
	assert.ErrorContains(t, err, "not a csv or xlsx")
}

func TestDownloadFolderSkipsFoldersAndOtherFiles(t *testing.T) {
	src := newMemorySource()
	src.put("b", "b_sales.xlsx", "t1", "xlsx-bytes")
	src.put("a", "a_sales.csv", "t1", report)
	src.put("c", "readme.md", "t1", "#")

	dir := t.TempDir()
	paths, err := NewDownloader(src).DownloadFolder(context.Background(), DownloadOptions{FolderID: "f", DownloadDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_sales.csv"), filepath.Join(dir, "b_sales.xlsx")}, paths)

	_, err = NewDownloader(src).DownloadFolder(context.Background(), DownloadOptions{FolderID: "f"})
	assert.Error(t, err)
}

func TestWatcherPollHandlesEachVersionOnce(t *testing.T) {
	src := newMemorySource()
	src.put("a", "a.csv", "t1", report)

	var handled []string
	fail := true
	w := NewWatcher(src, DownloadOptions{FolderID: "f", DownloadDir: t.TempDir()}, 0, func(_ context.Context, path string) error {
		if fail {
			fail = false
			return errors.New("transient")
		}
		handled = append(handled, filepath.Base(path))
		return nil
	})
	ctx := context.Background()

	n, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	src.put("a", "a.csv", "t2", report)
	src.put("b", "b.csv", "t1", report)
	n, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a.csv", "a.csv", "b.csv"}, handled)
}

func newTestRouter(src *memorySource, fc *recordingForecaster, dir string) *mux.Router {
	r := mux.NewRouter()
	NewHandler(src, NewIngestService(src, fc, dir)).RegisterRoutes(r)
	return r
}

func TestHandlerRoutes(t *testing.T) {
	src := newMemorySource()
	src.put("r1", "sales.csv", "t1", report)
	fc := &recordingForecaster{}
	router := newTestRouter(src, fc, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drive/files?path=reports/daily", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var files []File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drive/files?path=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drive/files/download?fileId=r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"sales.csv"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/forecast", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/forecast?fileId=r1&product_ids=A,+B", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, fc.requests, 1)
	assert.Equal(t, []string{"A", "B"}, fc.requests[0].ProductIDs)
}

func TestHandlerForecastSchemaError(t *testing.T) {
	src := newMemorySource()
	src.put("r1", "sales.csv", "t1", report)
	fc := &recordingForecaster{err: fmt.Errorf("validation failed: %w", &domain.SchemaError{Missing: []string{"date"}})}
	router := newTestRouter(src, fc, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/forecast?fileId=r1", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
