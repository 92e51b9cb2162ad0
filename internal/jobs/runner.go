// Package jobs runs ingestions in the background, tracks their live status
// and expires old runs on a schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// DefaultConcurrency is the number of ingestions run at once
const DefaultConcurrency = 3

// ErrShuttingDown is returned for submissions after Shutdown
var ErrShuttingDown = errors.New("runner is shutting down")

// Runner executes ingestion runs, at most a fixed number at a time
type Runner struct {
	db     *gorm.DB
	engine *ingest.Engine
	status StatusStore
	sem    *semaphore.Weighted
	log    *slog.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	active map[string]context.CancelFunc
	live   map[string]*Status
}

// NewRunner returns a Runner writing through engine. A nil store keeps status in memory.
func NewRunner(db *gorm.DB, engine *ingest.Engine, store StatusStore, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if store == nil {
		store = NewMemoryStatusStore()
	}
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		db:     db,
		engine: engine,
		status: store,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		log:    logging.New("jobs"),
		base:   base,
		stop:   stop,
		active: make(map[string]context.CancelFunc),
		live:   make(map[string]*Status),
	}
	engine.Progress = r.progress
	return r
}

// Status returns the live status of a run, falling back to the run log
func (r *Runner) Status(ctx context.Context, runUUID string) (*Status, error) {
	st, err := r.status.Get(ctx, runUUID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		r.log.Warn("status store read failed", "run_uuid", runUUID, "error", err)
	}
	run, err := services.GetRun(r.db, runUUID)
	if err != nil {
		return nil, err
	}
	s := statusOf(run)
	return &s, nil
}

// Submit persists a queued run for the file and executes it in the background
func (r *Runner) Submit(ctx context.Context, in services.RunInput) (*models.IngestionRun, error) {
	run, runCtx, err := r.enqueue(r.base, in)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(runCtx, run)
	}()
	return run, nil
}

// RunNow persists a run for the file and executes it before returning
func (r *Runner) RunNow(ctx context.Context, in services.RunInput) (*models.IngestionRun, *ingest.Report, error) {
	run, runCtx, err := r.enqueue(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	r.wg.Add(1)
	defer r.wg.Done()
	report, err := r.execute(runCtx, run)
	return run, report, err
}

// Cancel stops a queued or running run
func (r *Runner) Cancel(runUUID string) error {
	r.mu.Lock()
	cancel, ok := r.active[runUUID]
	r.mu.Unlock()
	if ok {
		cancel()
		r.log.Info("run cancellation requested", "run_uuid", runUUID)
		return nil
	}

	run, err := services.GetRun(r.db, runUUID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return fmt.Errorf("%w: run %s already %s", types.ErrInvalidArgument, runUUID, run.Status)
	}
	// left behind by another process
	if err := services.MarkRunStatus(r.db, run, models.RunCancelled, "cancelled"); err != nil {
		return err
	}
	r.publish(run)
	return services.RefreshIngestionStatus(r.db, run.CaseID)
}

// Retry purges the rows of a failed, partial or cancelled run and submits its
// retained file again as a new run. The old run gives up its file.
func (r *Runner) Retry(ctx context.Context, runUUID string) (*models.IngestionRun, error) {
	old, err := services.GetRun(r.db, runUUID)
	if err != nil {
		return nil, err
	}
	if !old.Retryable() {
		return nil, fmt.Errorf("%w: run %s is %s", types.ErrRunNotRetryable, runUUID, old.Status)
	}
	if _, err := os.Stat(old.FilePath); err != nil {
		return nil, fmt.Errorf("%w: retained file of run %s is gone", types.ErrRunNotRetryable, runUUID)
	}
	c, err := services.GetCase(r.db, old.CaseID)
	if err != nil {
		return nil, err
	}

	var purged int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := database.DeleteRunRows(tx, c.Namespace, old.RunUUID)
		if err != nil {
			return err
		}
		purged = n
		if n > 0 {
			if err := services.IncrementCounts(tx, c.ID, -n); err != nil {
				return err
			}
		}
		return tx.Model(&models.IngestionRun{}).Where("id = ?", old.ID).Update("file_path", "").Error
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("run retried", "run_uuid", old.RunUUID, "purged", purged)

	return r.Submit(ctx, services.RunInput{
		CaseID:   old.CaseID,
		Filename: old.Filename,
		FilePath: old.FilePath,
		FileSize: old.FileSize,
		Category: old.Category,
	})
}

// Shutdown cancels every run and waits for them to record their outcome
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue persists a queued run and registers its cancel function
func (r *Runner) enqueue(parent context.Context, in services.RunInput) (*models.IngestionRun, context.Context, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, nil, ErrShuttingDown
	}
	if in.Category != "" {
		if _, err := catalog.Get(catalog.Category(in.Category)); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", types.ErrNotFound, err)
		}
	}

	run, err := services.CreateRun(r.db, in)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.active[run.RunUUID] = cancel
	st := statusOf(run)
	r.live[run.RunUUID] = &st
	r.mu.Unlock()
	r.put(st)

	r.log.Info("run queued", "run_uuid", run.RunUUID, "case_id", run.CaseID, "file", run.Filename)
	return run, ctx, nil
}

// execute waits for a slot and ingests the run's file
func (r *Runner) execute(ctx context.Context, run *models.IngestionRun) (*ingest.Report, error) {
	defer r.release(run)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		if err := services.MarkRunStatus(r.db, run, models.RunCancelled, "cancelled"); err != nil {
			r.log.Error("failed to record cancelled run", "run_uuid", run.RunUUID, "error", err)
		}
		if err := services.RefreshIngestionStatus(r.db, run.CaseID); err != nil {
			r.log.Warn("case status refresh failed", "case_id", run.CaseID, "error", err)
		}
		return nil, ctx.Err()
	}
	defer r.sem.Release(1)

	report, err := r.process(ctx, run)
	if !run.Terminal() {
		// the engine never started
		msg := "ingestion failed"
		if err != nil {
			msg = err.Error()
		}
		if merr := services.MarkRunStatus(r.db, run, models.RunFailed, msg); merr != nil {
			r.log.Error("failed to record failed run", "run_uuid", run.RunUUID, "error", merr)
		}
		if rerr := services.RefreshIngestionStatus(r.db, run.CaseID); rerr != nil {
			r.log.Warn("case status refresh failed", "case_id", run.CaseID, "error", rerr)
		}
	}
	if err != nil {
		r.log.Warn("run ended with error", "run_uuid", run.RunUUID, "status", run.Status, "error", err)
	}
	return report, err
}

// process dispatches a file to the engine by its category and extension
func (r *Runner) process(ctx context.Context, run *models.IngestionRun) (*ingest.Report, error) {
	f, err := os.Open(run.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open upload: %v", types.ErrStorageFailure, err)
	}
	defer f.Close()

	switch {
	case run.Category == "":
		return r.engine.Run(ctx, run, f)
	case strings.EqualFold(filepath.Ext(run.Filename), ".csv"):
		return r.engine.ImportCSV(ctx, run, catalog.Category(run.Category), f)
	default:
		return r.engine.ImportJSON(ctx, run, catalog.Category(run.Category), f)
	}
}

// release drops the bookkeeping of a finished run and publishes its final status
func (r *Runner) release(run *models.IngestionRun) {
	r.mu.Lock()
	if cancel, ok := r.active[run.RunUUID]; ok {
		cancel()
		delete(r.active, run.RunUUID)
	}
	st, ok := r.live[run.RunUUID]
	delete(r.live, run.RunUUID)
	r.mu.Unlock()

	final := statusOf(run)
	if ok && len(st.Categories) > 0 {
		final.Categories = st.Categories
	}
	r.put(final)
}

// progress records one finished source key of a running run
func (r *Runner) progress(run *models.IngestionRun, cr ingest.CategoryReport) {
	r.mu.Lock()
	st, ok := r.live[run.RunUUID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if st.Categories == nil {
		st.Categories = make(map[string]CategoryProgress)
	}
	st.Status = models.RunRunning
	st.Categories[string(cr.Category)] = CategoryProgress{
		Accepted: cr.Accepted,
		Rejected: cr.Rejected,
		Failed:   cr.Failed,
		Error:    cr.Error,
	}
	st.total()
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	snapshot.Categories = make(map[string]CategoryProgress, len(st.Categories))
	for k, v := range st.Categories {
		snapshot.Categories[k] = v
	}
	r.mu.Unlock()

	r.put(snapshot)
}

func (r *Runner) publish(run *models.IngestionRun) {
	r.put(statusOf(run))
}

func (r *Runner) put(st Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.status.Put(ctx, st); err != nil {
		r.log.Warn("status store write failed", "run_uuid", st.RunUUID, "error", err)
	}
}
