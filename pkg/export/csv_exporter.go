// Package export renders registry reports, CSV for the admin user
// export and PDF for per-task progress sheets.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is one tabular report: ordered column names plus rows keyed
// by column name. Missing cells render empty.
type Dataset struct {
	Columns []string
	Rows    []map[string]string
}

// CSVExporter renders datasets as CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset, header row first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("report needs at least one column")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Columns); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	record := make([]string, len(data.Columns))
	for _, row := range data.Rows {
		for i, column := range data.Columns {
			record[i] = row[column]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}
	return buf.Bytes(), nil
}
