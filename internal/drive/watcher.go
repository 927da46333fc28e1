package drive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/rs/zerolog/log"
)

// DownloadOptions controls how files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
}

// Downloader wraps Source to download files from a specific folder.
type Downloader struct {
	source Source
}

// NewDownloader creates a new Downloader.
func NewDownloader(source Source) *Downloader {
	return &Downloader{source: source}
}

// DownloadFolder downloads every CSV and XLSX report in the folder into
// DownloadDir and returns the local paths in Drive name order.
func (d *Downloader) DownloadFolder(ctx context.Context, opts DownloadOptions) ([]string, error) {
	files, err := d.reports(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}
	return d.fetch(ctx, files, opts.DownloadDir)
}

func (d *Downloader) reports(ctx context.Context, folderID string) ([]*File, error) {
	files, err := d.source.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var reports []*File
	for _, f := range files {
		if f.MimeType == folderMimeType || !ingest.IsSupported(f.Name) {
			continue
		}
		reports = append(reports, f)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports, nil
}

func (d *Downloader) fetch(ctx context.Context, files []*File, dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("download dir is required")
	}

	var localPaths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return localPaths, err
		}
		path, err := download(ctx, d.source, f, dir)
		if err != nil {
			return localPaths, err
		}
		localPaths = append(localPaths, path)
	}
	return localPaths, nil
}

// Watcher polls a Drive folder and hands each new or modified report to
// handle. A file is seen again only when its modified time changes.
type Watcher struct {
	downloader *Downloader
	opts       DownloadOptions
	interval   time.Duration
	handle     func(ctx context.Context, path string) error

	seen map[string]string
}

func NewWatcher(source Source, opts DownloadOptions, interval time.Duration, handle func(ctx context.Context, path string) error) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Watcher{
		downloader: NewDownloader(source),
		opts:       opts,
		interval:   interval,
		handle:     handle,
		seen:       make(map[string]string),
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("folder_id", w.opts.FolderID).Msg("drive poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one pass and returns the number of reports handled.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	files, err := w.downloader.reports(ctx, w.opts.FolderID)
	if err != nil {
		return 0, err
	}

	var fresh []*File
	for _, f := range files {
		if w.seen[f.ID] != f.ModifiedTime {
			fresh = append(fresh, f)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	handled := 0
	for _, f := range fresh {
		paths, err := w.downloader.fetch(ctx, []*File{f}, w.opts.DownloadDir)
		if err != nil {
			return handled, err
		}
		if err := w.handle(ctx, paths[0]); err != nil {
			// Left unmarked so the next poll retries it.
			log.Error().Err(err).Str("file", f.Name).Msg("failed to process drive report")
			continue
		}
		w.seen[f.ID] = f.ModifiedTime
		handled++
	}

	log.Info().Int("new", len(fresh)).Int("handled", handled).Msg("drive poll finished")
	return handled, nil
}
