package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// RunInput describes a file about to be ingested
type RunInput struct {
	// RunUUID is generated when empty
	RunUUID  string
	CaseID   uint64
	Filename string
	FilePath string
	FileSize int64
	Category string
}

// CreateRun persists a queued ingestion run for an existing case
func CreateRun(db *gorm.DB, in RunInput) (*models.IngestionRun, error) {
	if _, err := GetCase(db, in.CaseID); err != nil {
		return nil, err
	}
	if in.RunUUID == "" {
		in.RunUUID = uuid.NewString()
	}
	run := &models.IngestionRun{
		RunUUID:  in.RunUUID,
		CaseID:   in.CaseID,
		Filename: in.Filename,
		FilePath: in.FilePath,
		FileSize: in.FileSize,
		Category: in.Category,
		Status:   models.RunQueued,
	}
	if err := db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("%w: create run: %v", types.ErrStorageFailure, err)
	}
	return run, nil
}

// GetRun returns a run by uuid
func GetRun(db *gorm.DB, runUUID string) (*models.IngestionRun, error) {
	var run models.IngestionRun
	if err := silent(db).Where("run_uuid = ?", runUUID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", types.ErrNotFound, runUUID)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	return &run, nil
}

// ListRuns returns the runs of a case, newest first
func ListRuns(db *gorm.DB, caseID uint64, limit int) ([]models.IngestionRun, error) {
	if _, err := GetCase(db, caseID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	runs := []models.IngestionRun{}
	if err := silent(db).Where("case_id = ?", caseID).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	return runs, nil
}

// MarkRunStatus sets the status of a run, stamping start and completion times
func MarkRunStatus(db *gorm.DB, run *models.IngestionRun, status, message string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	switch status {
	case models.RunRunning:
		run.StartedAt = &now
		updates["started_at"] = now
	case models.RunCompleted, models.RunPartial, models.RunFailed, models.RunCancelled:
		run.CompletedAt = &now
		updates["completed_at"] = now
		if run.StartedAt != nil {
			run.DurationMS = now.Sub(*run.StartedAt).Milliseconds()
			updates["duration_ms"] = run.DurationMS
		}
	}
	if message != "" {
		run.Error = message
		updates["error"] = message
	}
	run.Status = status
	if err := db.Model(&models.IngestionRun{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: update run: %v", types.ErrStorageFailure, err)
	}
	return nil
}

// RecordRunResult persists the record counters and summary of a run
func RecordRunResult(db *gorm.DB, run *models.IngestionRun) error {
	err := db.Model(&models.IngestionRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"accepted":   run.Accepted,
		"rejected":   run.Rejected,
		"failed":     run.Failed,
		"summary":    run.Summary,
		"updated_at": time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("%w: record run result: %v", types.ErrStorageFailure, err)
	}
	return nil
}

// ExpiredRuns lists terminal runs completed before the cutoff
func ExpiredRuns(db *gorm.DB, before time.Time) ([]models.IngestionRun, error) {
	var runs []models.IngestionRun
	err := silent(db).
		Where("status IN ?", []string{models.RunCompleted, models.RunPartial, models.RunFailed, models.RunCancelled}).
		Where("completed_at < ?", before).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	return runs, nil
}

// DeleteRuns removes run log rows by id
func DeleteRuns(db *gorm.DB, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Where("id IN ?", ids).Delete(&models.IngestionRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageFailure, res.Error)
	}
	return res.RowsAffected, nil
}

// FailOrphanedRuns marks runs left queued or running by a previous process as failed
func FailOrphanedRuns(db *gorm.DB) (int64, error) {
	res := db.Model(&models.IngestionRun{}).
		Where("status IN ?", []string{models.RunQueued, models.RunRunning}).
		Updates(map[string]interface{}{
			"status":       models.RunFailed,
			"error":        "interrupted by restart",
			"completed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageFailure, res.Error)
	}
	return res.RowsAffected, nil
}
