package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions are the report formats ReadFile understands.
var SupportedExtensions = []string{".csv", ".xlsx"}

// IsSupported reports whether path has a readable report extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFile loads a sales/traffic report from a CSV or XLSX file.
func ReadFile(path string) (domain.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("failed to open file %s: %w", path, err)
		}
		defer f.Close()

		table, err := ReadCSV(f)
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("failed to read csv %s: %w", path, err)
		}
		table.Source = path
		return table, nil
	case ".xlsx":
		table, err := ReadXLSX(path)
		if err != nil {
			return domain.RawTable{}, err
		}
		table.Source = path
		return table, nil
	default:
		return domain.RawTable{}, fmt.Errorf("unsupported file extension %s for %s", filepath.Ext(path), path)
	}
}

// ReadCSV reads a comma separated report. A semicolon delimiter is detected
// from the header line.
func ReadCSV(r io.Reader) (domain.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.RawTable{}, err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if firstLine, _, _ := strings.Cut(string(data), "\n"); strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header = trimBOM(header)

	table := domain.RawTable{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("error reading record: %w", err)
		}
		if isBlank(record) {
			continue
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(path string) (domain.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.RawTable{}, fmt.Errorf("xlsx file %s has no sheets", path)
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var table domain.RawTable
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("failed to read row from %s: %w", path, err)
		}
		if table.Header == nil {
			table.Header = trimBOM(record)
			continue
		}
		if isBlank(record) {
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	if err := rows.Error(); err != nil {
		return domain.RawTable{}, fmt.Errorf("error iterating rows in %s: %w", path, err)
	}
	if table.Header == nil {
		return domain.RawTable{}, fmt.Errorf("xlsx file %s has no header row", path)
	}

	log.Debug().Str("file", path).Str("sheet", sheet).Int("rows", len(table.Rows)).Msg("read xlsx report")
	return table, nil
}

// ProductIDs returns the distinct parent product ids of a table in first-seen order.
func ProductIDs(table domain.RawTable) []string {
	cols := ResolveColumns(table.Header)
	idx, ok := cols[domain.ColParentProductID]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, row := range table.Rows {
		if idx >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idx])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
