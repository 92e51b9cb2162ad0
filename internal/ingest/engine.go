// Package ingest turns collector JSON documents into rows of a case's
// category tables.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/metrics"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// DefaultBatchSize is the number of rows per INSERT
const DefaultBatchSize = 500

// ProgressFunc is called after each source key has been processed
type ProgressFunc func(run *models.IngestionRun, category CategoryReport)

// Engine ingests documents into the namespace of a case
type Engine struct {
	DB        *gorm.DB
	Catalog   *catalog.Catalog
	BatchSize int
	Progress  ProgressFunc

	log *slog.Logger
}

// New returns an Engine writing through db with the default catalog
func New(db *gorm.DB, batchSize int) *Engine {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		DB:        db,
		Catalog:   catalog.Default(),
		BatchSize: batchSize,
		log:       logging.New("ingest"),
	}
}

// Run ingests a collector document. src is read twice: once to validate the
// whole document, then again to stream each recognised category.
// Category storage failures are reported in the Report, not as an error.
func (e *Engine) Run(ctx context.Context, run *models.IngestionRun, src io.ReadSeeker) (*Report, error) {
	report := newReport(run)
	c, err := e.begin(run)
	if err != nil {
		return report, err
	}
	defer metrics.InFlight.Dec()

	plan, err := e.scan(src, report)
	if err != nil {
		return report, e.complete(run, report, false, err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return report, e.complete(run, report, false, fmt.Errorf("%w: rewind: %v", types.ErrMalformedInput, err))
	}

	dec := json.NewDecoder(bufio.NewReader(src))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return report, e.complete(run, report, false, malformed(err))
	}

	cancelled := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return report, e.complete(run, report, false, malformed(err))
		}
		key, _ := tok.(string)
		def, ok := plan[key]
		if !ok {
			if err := skipValue(dec); err != nil {
				return report, e.complete(run, report, false, malformed(err))
			}
			continue
		}

		err = e.ingest(ctx, c, run, def, key, report, func(add func(interface{}) error) error {
			return streamValue(dec, def, add)
		})
		if isCancellation(ctx, err) {
			cancelled = true
			break
		}
		if err != nil {
			return report, e.complete(run, report, false, err)
		}
	}

	if err := e.complete(run, report, cancelled, nil); err != nil {
		return report, err
	}
	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// ImportJSON ingests a document holding the records of one category, either
// an array or any value the category's shape accepts.
func (e *Engine) ImportJSON(ctx context.Context, run *models.IngestionRun, category catalog.Category, r io.Reader) (*Report, error) {
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

	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()
	err = e.ingest(ctx, c, run, def, string(category), report, func(add func(interface{}) error) error {
		if err := streamValue(dec, def, add); err != nil {
			return err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: trailing data after document", types.ErrMalformedInput)
		}
		return nil
	})
	return e.conclude(ctx, run, report, err)
}

// begin loads the case of a run and marks the run running
func (e *Engine) begin(run *models.IngestionRun) (*models.Case, error) {
	c, err := services.GetCase(e.DB, run.CaseID)
	if err != nil {
		return nil, err
	}
	if err := services.MarkRunStatus(e.DB, run, models.RunRunning, ""); err != nil {
		return nil, err
	}
	metrics.InFlight.Inc()
	e.logger().Info("ingestion started", "run_uuid", run.RunUUID, "case_id", c.ID, "file", run.Filename)
	return c, nil
}

// conclude completes a single-category import
func (e *Engine) conclude(ctx context.Context, run *models.IngestionRun, report *Report, err error) (*Report, error) {
	cancelled := isCancellation(ctx, err)
	if cancelled {
		err = nil
	}
	if cerr := e.complete(run, report, cancelled, err); cerr != nil {
		return report, cerr
	}
	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// ingest writes the records produced by feed into one category, in one transaction
func (e *Engine) ingest(ctx context.Context, c *models.Case, run *models.IngestionRun, def *catalog.Definition,
	key string, report *Report, feed func(add func(interface{}) error) error) error {

	cr := report.category(def.Name)
	cr.SourceKeys = append(cr.SourceKeys, key)

	w := &writer{
		ctx:     ctx,
		ns:      c.Namespace,
		def:     def,
		cr:      cr,
		runUUID: run.RunUUID,
		now:     time.Now().UTC(),
		size:    e.BatchSize,
	}
	if w.size < 1 {
		w.size = DefaultBatchSize
	}

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w.tx = tx
		if err := feed(w.add); err != nil {
			return err
		}
		if err := w.flush(); err != nil {
			return err
		}
		if w.storageErr != nil {
			return w.storageErr
		}
		if w.inserted > 0 {
			return services.IncrementCounts(tx, c.ID, w.inserted)
		}
		return nil
	})

	switch {
	case err == nil:
		cr.Accepted += w.inserted
	case isCancellation(ctx, err):
		cr.Error = "cancelled"
	case errors.Is(err, types.ErrMalformedInput):
		cr.Error = err.Error()
		return err
	default:
		report.storageErr = true
		cr.Failed += w.inserted + int64(len(w.batch)) + w.failed
		cr.Error = err.Error()
		e.logger().Error("category rolled back", "run_uuid", run.RunUUID, "category", def.Name, "key", key, "error", err)
		err = nil
	}

	if e.Progress != nil {
		e.Progress(run, *cr)
	}
	return err
}

// complete persists the report into the run and refreshes the case status.
// A non-nil runErr fails the run and is returned.
func (e *Engine) complete(run *models.IngestionRun, report *Report, cancelled bool, runErr error) error {
	report.finalize(cancelled)
	message := ""
	switch {
	case runErr != nil:
		report.Status = models.RunFailed
		report.Error = runErr.Error()
		message = report.Error
	case cancelled:
		report.Error = "cancelled"
		message = report.Error
	case report.Status == models.RunFailed:
		message = "all categories failed to store"
	}

	run.Accepted, run.Rejected, run.Failed = report.Accepted, report.Rejected, report.Failed
	summary, err := models.NewJSON(report)
	if err != nil {
		return err
	}
	run.Summary = summary

	if err := services.RecordRunResult(e.DB, run); err != nil {
		return err
	}
	if err := services.MarkRunStatus(e.DB, run, report.Status, message); err != nil {
		return err
	}
	if err := services.RefreshIngestionStatus(e.DB, run.CaseID); err != nil {
		e.logger().Warn("case status refresh failed", "case_id", run.CaseID, "error", err)
	}

	metrics.ObserveRun(report.Status, float64(report.ElapsedMS)/1000)
	for _, c := range report.Categories {
		metrics.ObserveRecords(string(c.Category), c.Accepted, c.Rejected, c.Failed)
	}

	e.logger().Info("ingestion finished",
		"run_uuid", run.RunUUID,
		"status", report.Status,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"failed", report.Failed,
		"elapsed_ms", report.ElapsedMS)
	return runErr
}

func (e *Engine) logger() *slog.Logger {
	if e.log == nil {
		e.log = logging.New("ingest")
	}
	return e.log
}

func isCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// writer accumulates the rows of one category transaction
type writer struct {
	ctx     context.Context
	tx      *gorm.DB
	ns      string
	def     *catalog.Definition
	cr      *CategoryReport
	runUUID string
	now     time.Time
	size    int

	batch      []map[string]interface{}
	inserted   int64
	failed     int64
	storageErr error
}

func (w *writer) add(v interface{}) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	defer func() { w.cr.seen++ }()

	rec, ok := v.(map[string]interface{})
	if !ok {
		w.cr.reject("", "record is not an object")
		return nil
	}
	row, ok := buildRow(w.def, rec, w.cr)
	if !ok {
		return nil
	}
	if w.storageErr != nil {
		w.failed++
		return nil
	}

	row[catalog.ColumnRunID] = w.runUUID
	row[catalog.ColumnIngestedAt] = w.now
	w.batch = append(w.batch, row)
	if len(w.batch) >= w.size {
		return w.flush()
	}
	return nil
}

func (w *writer) flush() error {
	if len(w.batch) == 0 || w.storageErr != nil {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if err := database.InsertBatch(w.tx, w.ns, w.def.Name, w.batch); err != nil {
		w.storageErr = err
		w.failed += int64(len(w.batch))
		w.batch = nil
		return nil
	}
	w.inserted += int64(len(w.batch))
	w.batch = make([]map[string]interface{}, 0, w.size)
	return nil
}

// buildRow maps the fields of one record onto the category columns
func buildRow(def *catalog.Definition, rec map[string]interface{}, cr *CategoryReport) (map[string]interface{}, bool) {
	values := make(map[string]interface{}, len(rec))
	keys := sortedFields(rec)

	for _, f := range keys {
		if col, ok := def.Column(f.Key); ok {
			values[col.Name] = f.Value
		}
	}
	for _, f := range keys {
		if _, exact := def.Column(f.Key); exact {
			continue
		}
		col, ok := def.Resolve(f.Key)
		if !ok {
			continue
		}
		if _, set := values[col.Name]; !set {
			values[col.Name] = f.Value
		}
	}
	if len(values) == 0 {
		cr.reject("", "record has no catalog fields")
		return nil, false
	}

	cols := def.Columns()
	row := make(map[string]interface{}, len(cols)+2)
	for _, col := range cols {
		v, err := Coerce(col, values[col.Name])
		if err != nil {
			if col.Required {
				cr.reject(col.Name, err.Error())
				return nil, false
			}
			cr.warn("record %d: %v", cr.seen, err)
			v = nil
		}
		if v == nil && col.Required {
			cr.reject(col.Name, "required field missing")
			return nil, false
		}
		row[col.Name] = v
	}
	return row, true
}

// scan validates the whole document and maps its recognised keys to categories
func (e *Engine) scan(r io.Reader, report *Report) (map[string]*catalog.Definition, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top level must be a JSON object", types.ErrMalformedInput)
	}

	plan := make(map[string]*catalog.Definition)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		key, _ := tok.(string)
		if def, err := e.Catalog.Lookup(key); err == nil {
			plan[key] = def
		} else {
			report.Warnings = append(report.Warnings, fmt.Sprintf("unknown category %q", key))
		}
		if err := skipValue(dec); err != nil {
			return nil, malformed(err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", types.ErrMalformedInput)
	}

	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: no recognised category keys", types.ErrEmptyPayload)
	}
	return plan, nil
}

// streamValue reads one JSON value and hands its records to add one by one
func streamValue(dec *json.Decoder, def *catalog.Definition, add func(interface{}) error) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed(err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		for _, rec := range expandScalar(def, tok) {
			if err := add(rec); err != nil {
				return err
			}
		}
		return nil
	}

	switch d {
	case '[':
		for dec.More() {
			var el interface{}
			if err := dec.Decode(&el); err != nil {
				return malformed(err)
			}
			for _, rec := range expandElement(def, el) {
				if err := add(rec); err != nil {
					return err
				}
			}
		}
	case '{':
		fields, err := readObject(dec)
		if err != nil {
			return err
		}
		for _, rec := range expandObject(def, fields) {
			if err := add(rec); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected %v", types.ErrMalformedInput, d)
	}

	if _, err := dec.Token(); err != nil {
		return malformed(err)
	}
	return nil
}

// readObject reads the members of an object whose '{' was already consumed
func readObject(dec *json.Decoder) ([]field, error) {
	var out []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		key, _ := tok.(string)
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, malformed(err)
		}
		out = append(out, field{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(err)
	}
	return out, nil
}

// skipValue consumes one complete JSON value
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

func malformed(err error) error {
	if errors.Is(err, types.ErrMalformedInput) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
}
