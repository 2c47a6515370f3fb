// Package ingest parses an uploaded batch file into the ordered record
// sequence a job is created from.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"jetstream/internal/jobs"
)

var ErrNoRecords = errors.New("batch contains no records")

// ParseCSV reads a headered CSV into ordered records. Column names and
// values are whitespace-trimmed; rows shorter than the header are
// rejected by the csv reader. An empty batch is an error so a job can
// never be created with total == 0.
func ParseCSV(r io.Reader) ([]jobs.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []jobs.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+2, err)
		}
		rec := make(jobs.Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			rec[col] = strings.TrimSpace(row[i])
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}
