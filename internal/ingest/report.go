package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/models"
)

// Per-category caps on detail kept in a report
const (
	MaxRejections = 20
	MaxWarnings   = 20
)

// Rejection explains why one record was not stored
type Rejection struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// CategoryReport is the outcome of one category within a run
type CategoryReport struct {
	Category   catalog.Category `json:"category"`
	SourceKeys []string         `json:"source_keys"`
	Accepted   int64            `json:"accepted"`
	Rejected   int64            `json:"rejected"`
	Failed     int64            `json:"failed"`
	Error      string           `json:"error,omitempty"`
	Rejections []Rejection      `json:"rejections,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Suppressed int              `json:"suppressed_warnings,omitempty"`

	seen int
}

func (c *CategoryReport) reject(field, reason string) {
	c.Rejected++
	if len(c.Rejections) < MaxRejections {
		c.Rejections = append(c.Rejections, Rejection{Index: c.seen, Field: field, Reason: reason})
	}
}

func (c *CategoryReport) warn(format string, args ...interface{}) {
	if len(c.Warnings) >= MaxWarnings {
		c.Suppressed++
		return
	}
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// Report is the deterministic summary of one ingestion run
type Report struct {
	RunUUID    string            `json:"run_uuid"`
	CaseID     uint64            `json:"case_id"`
	Status     string            `json:"status"`
	Accepted   int64             `json:"accepted"`
	Rejected   int64             `json:"rejected"`
	Failed     int64             `json:"failed"`
	Categories []*CategoryReport `json:"categories"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
	ElapsedMS  int64             `json:"elapsed_ms"`

	byCategory map[catalog.Category]*CategoryReport
	storageErr bool
	started    time.Time
}

func newReport(run *models.IngestionRun) *Report {
	return &Report{
		RunUUID:    run.RunUUID,
		CaseID:     run.CaseID,
		Categories: []*CategoryReport{},
		byCategory: make(map[catalog.Category]*CategoryReport),
		started:    time.Now(),
	}
}

func (r *Report) category(name catalog.Category) *CategoryReport {
	if c, ok := r.byCategory[name]; ok {
		return c
	}
	c := &CategoryReport{Category: name, SourceKeys: []string{}}
	r.byCategory[name] = c
	r.Categories = append(r.Categories, c)
	return c
}

// finalize sorts categories, totals counts and decides the run status
func (r *Report) finalize(cancelled bool) {
	sort.Slice(r.Categories, func(i, j int) bool {
		return r.Categories[i].Category < r.Categories[j].Category
	})
	r.Accepted, r.Rejected, r.Failed = 0, 0, 0
	for _, c := range r.Categories {
		r.Accepted += c.Accepted
		r.Rejected += c.Rejected
		r.Failed += c.Failed
	}
	r.ElapsedMS = time.Since(r.started).Milliseconds()

	switch {
	case cancelled:
		r.Status = models.RunCancelled
	case r.storageErr && r.Accepted == 0:
		r.Status = models.RunFailed
	case r.storageErr || r.Rejected > 0:
		r.Status = models.RunPartial
	default:
		r.Status = models.RunCompleted
	}
}
