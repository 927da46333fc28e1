package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FlushFunc receives the path of every CSV part the aggregator writes.
type FlushFunc func(ctx context.Context, csvPath string) error

// StreamingAggregator buffers transformed rows and flushes them to CSV parts
// in batches, one product result at a time.
type StreamingAggregator struct {
	pipeline      Pipeline
	config        PipelineConfig
	date          time.Time
	buffer        [][]TransformedRow
	mu            sync.Mutex
	flushCallback FlushFunc
	lastFlush     time.Time
	parts         []string
}

// NewStreamingAggregator creates a new streaming aggregator for a pipeline
func NewStreamingAggregator(pipeline Pipeline, config PipelineConfig, date time.Time, flushCallback FlushFunc) *StreamingAggregator {
	return &StreamingAggregator{
		pipeline:      pipeline,
		config:        config,
		date:          date,
		buffer:        make([][]TransformedRow, 0, max(config.BatchSize, 1)),
		flushCallback: flushCallback,
		lastFlush:     time.Now(),
	}
}

// AddProductData adds the rows of one product to the buffer and flushes when
// the batch size or flush interval is reached.
func (sa *StreamingAggregator) AddProductData(ctx context.Context, rows []TransformedRow) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.buffer = append(sa.buffer, rows)

	shouldFlush := len(sa.buffer) >= sa.config.BatchSize ||
		(sa.config.FlushInterval > 0 && time.Since(sa.lastFlush) >= sa.config.FlushInterval)
	if shouldFlush {
		return sa.flushLocked(ctx)
	}
	return nil
}

// Finalize flushes any remaining rows.
func (sa *StreamingAggregator) Finalize(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if len(sa.buffer) == 0 {
		log.Debug().Str("pipeline", sa.pipeline.Name()).Msg("no buffered rows to finalize")
		return nil
	}
	return sa.flushLocked(ctx)
}

// Parts returns the paths of every CSV part written so far.
func (sa *StreamingAggregator) Parts() []string {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return append([]string(nil), sa.parts...)
}

// flushLocked must be called with sa.mu held.
func (sa *StreamingAggregator) flushLocked(ctx context.Context) error {
	if len(sa.buffer) == 0 {
		return nil
	}

	var allRows []TransformedRow
	for _, productRows := range sa.buffer {
		allRows = append(allRows, productRows...)
	}

	if err := os.MkdirAll(sa.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	csvPath := filepath.Join(
		sa.config.OutputDir,
		fmt.Sprintf("%s_%03d.csv", sa.date.Format("20060102"), len(sa.parts)+1),
	)
	if err := sa.writeCSV(csvPath, allRows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	sa.parts = append(sa.parts, csvPath)

	log.Info().
		Str("pipeline", sa.pipeline.Name()).
		Int("products", len(sa.buffer)).
		Int("rows", len(allRows)).
		Str("path", csvPath).
		Msg("flushed aggregated rows")

	if sa.flushCallback != nil {
		if err := sa.flushCallback(ctx, csvPath); err != nil {
			return fmt.Errorf("flush callback failed: %w", err)
		}
	}

	sa.buffer = sa.buffer[:0]
	sa.lastFlush = time.Now()
	return nil
}

func (sa *StreamingAggregator) writeCSV(path string, rows []TransformedRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	headers := sa.pipeline.Columns()
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, row := range rows {
		record := make([]string, len(headers))
		for i, header := range headers {
			if val, ok := row.Data[header]; ok && val != nil {
				record[i] = formatValue(val)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case *float64:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%v", *t)
	case *bool:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%v", *t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetBufferStats returns the number of buffered products and rows.
func (sa *StreamingAggregator) GetBufferStats() (productCount, rowCount int) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	for _, rows := range sa.buffer {
		rowCount += len(rows)
	}
	return len(sa.buffer), rowCount
}
