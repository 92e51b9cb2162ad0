package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/services"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DefaultCleanupSchedule runs the cleanup daily at 03:00, seconds field first
const DefaultCleanupSchedule = "0 0 3 * * *"

// Cleanup expires terminal runs and their retained uploads
type Cleanup struct {
	db        *gorm.DB
	retention time.Duration
	cron      *cron.Cron
	log       *slog.Logger
	now       func() time.Time
}

// NewCleanup schedules the cleanup. Retention under one day disables it.
func NewCleanup(db *gorm.DB, retentionDays int, schedule string) (*Cleanup, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	c := &Cleanup{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		cron:      cron.New(cron.WithSeconds()),
		log:       logging.New("cleanup"),
		now:       time.Now,
	}
	if _, err := c.cron.AddFunc(schedule, func() {
		if _, err := c.Run(context.Background()); err != nil {
			c.log.Error("cleanup failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Start starts the scheduler
func (c *Cleanup) Start() {
	c.cron.Start()
	c.log.Info("cleanup scheduled", "retention_days", int(c.retention.Hours()/24), "next", c.cron.Entries()[0].Next)
}

// Stop stops the scheduler; the returned context is done when a running cleanup finishes
func (c *Cleanup) Stop() context.Context {
	return c.cron.Stop()
}

// Run deletes terminal runs completed before the retention window, with their files
func (c *Cleanup) Run(ctx context.Context) (int64, error) {
	if c.retention < 24*time.Hour {
		return 0, nil
	}
	cutoff := c.now().UTC().Add(-c.retention)
	runs, err := services.ExpiredRuns(c.db.WithContext(ctx), cutoff)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}

	ids := make([]uint64, 0, len(runs))
	files := 0
	for _, run := range runs {
		ids = append(ids, run.ID)
		if run.FilePath == "" {
			continue
		}
		if err := os.Remove(run.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("failed to remove upload", "run_uuid", run.RunUUID, "path", run.FilePath, "error", err)
			continue
		}
		files++
	}

	n, err := services.DeleteRuns(c.db.WithContext(ctx), ids)
	if err != nil {
		return 0, err
	}
	c.log.Info("expired runs removed", "runs", n, "files", files, "cutoff", cutoff)
	return n, nil
}
