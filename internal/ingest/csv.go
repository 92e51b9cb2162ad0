package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/metrics"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
)

// ImportCSV ingests an RFC 4180 file whose header row names catalog columns
// of one category. Cells are coerced like JSON strings; an empty cell is NULL.
func (e *Engine) ImportCSV(ctx context.Context, run *models.IngestionRun, category catalog.Category, r io.Reader) (*Report, error) {
	report := newReport(run)
	def, err := e.Catalog.Get(category)
	if err != nil {
		return report, err
	}
	c, err := e.begin(run)
	if err != nil {
		return report, err
	}
	defer metrics.InFlight.Dec()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: missing header row", types.ErrMalformedInput)
		}
		return report, e.complete(run, report, false, malformed(err))
	}
	columns := make([]string, len(header))
	known := 0
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch name {
		case catalog.ColumnID, catalog.ColumnRunID, catalog.ColumnIngestedAt:
			continue
		}
		if _, ok := def.Column(name); !ok {
			report.Warnings = append(report.Warnings, fmt.Sprintf("unknown column %q", name))
			continue
		}
		columns[i] = name
		known++
	}
	if known == 0 {
		return report, e.complete(run, report, false,
			fmt.Errorf("%w: header names no %s columns", types.ErrMalformedInput, category))
	}

	err = e.ingest(ctx, c, run, def, string(category), report, func(add func(interface{}) error) error {
		for {
			cells, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return malformed(err)
			}
			rec := make(map[string]interface{}, known)
			for i, cell := range cells {
				if i >= len(columns) || columns[i] == "" {
					continue
				}
				if cell == "" {
					rec[columns[i]] = nil
					continue
				}
				rec[columns[i]] = cell
			}
			if err := add(rec); err != nil {
				return err
			}
		}
	})
	return e.conclude(ctx, run, report, err)
}
