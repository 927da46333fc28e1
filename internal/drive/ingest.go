package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/rs/zerolog/log"
)

// Forecaster runs a forecast over a report on local disk.
type Forecaster interface {
	ForecastFile(ctx context.Context, req service.FileRequest) (*service.ForecastResponse, error)
}

// IngestRequest names the Drive files of one forecast run.
type IngestRequest struct {
	FileID      string
	StockFileID string
	ProductIDs  []string
	Publish     bool
}

type IngestService struct {
	source      Source
	forecaster  Forecaster
	downloadDir string
}

func NewIngestService(source Source, forecaster Forecaster, downloadDir string) *IngestService {
	return &IngestService{
		source:      source,
		forecaster:  forecaster,
		downloadDir: downloadDir,
	}
}

// IngestFile downloads a sales report (and optional stock file) from Drive
// and forecasts it.
func (s *IngestService) IngestFile(ctx context.Context, req IngestRequest) (*service.ForecastResponse, error) {
	reportPath, err := s.fetch(ctx, req.FileID)
	if err != nil {
		return nil, err
	}

	fileReq := service.FileRequest{
		Path:       reportPath,
		ProductIDs: req.ProductIDs,
		Publish:    req.Publish,
	}
	if req.StockFileID != "" {
		if fileReq.StockPath, err = s.fetch(ctx, req.StockFileID); err != nil {
			return nil, err
		}
	}

	return s.forecaster.ForecastFile(ctx, fileReq)
}

func (s *IngestService) fetch(ctx context.Context, fileID string) (string, error) {
	meta, err := s.source.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !ingest.IsSupported(meta.Name) {
		return "", fmt.Errorf("drive file %s (%s) is not a csv or xlsx report", meta.Name, fileID)
	}
	return download(ctx, s.source, meta, s.downloadDir)
}

// download writes f into dir under its Drive name and returns the local path.
func download(ctx context.Context, source Source, f *File, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	localPath := filepath.Join(dir, filepath.Base(f.Name))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := source.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	log.Debug().Str("file_id", f.ID).Str("path", localPath).Msg("downloaded drive file")
	return localPath, nil
}
