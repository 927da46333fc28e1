package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/app"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/drive"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/andresuchdata/autopo-py/forecast/pkg/logger"
	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()
	if _, err := logger.Setup(logger.Options{Level: cfg.Log.Level}); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driveService, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	ingestService := drive.NewIngestService(driveService, application.Forecasts, cfg.Drive.DownloadDir)

	r := mux.NewRouter()
	drive.NewHandler(driveService, ingestService).RegisterRoutes(r)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	if minutes := cfg.Drive.PollMinutes; minutes > 0 {
		folderID := cfg.Drive.FolderID
		if folderID == "" && cfg.Drive.FolderPath != "" {
			if folderID, err = driveService.FindFolderByPath(ctx, cfg.Drive.FolderPath); err != nil {
				logger.Log.Fatal().Err(err).Msg("Failed to resolve drive folder")
			}
		}

		watcher := drive.NewWatcher(driveService, drive.DownloadOptions{
			FolderID:    folderID,
			DownloadDir: cfg.Drive.DownloadDir,
		}, time.Duration(minutes)*time.Minute, func(ctx context.Context, path string) error {
			_, err := application.Forecasts.ForecastFile(ctx, service.FileRequest{Path: path})
			return err
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Error().Err(err).Msg("drive watcher stopped")
			}
		}()
		logger.Log.Info().Str("folder_id", folderID).Int("minutes", minutes).Msg("watching drive folder")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
