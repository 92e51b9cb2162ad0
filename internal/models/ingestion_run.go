package models

import (
	"time"
)

// Ingestion run status values
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// IngestionRun records one file ingested into a case
type IngestionRun struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunUUID     string     `gorm:"column:run_uuid;size:36;uniqueIndex;not null" json:"run_uuid"`
	CaseID      uint64     `gorm:"not null;index" json:"case_id"`
	Filename    string     `gorm:"size:500;not null" json:"filename"`
	FilePath    string     `gorm:"size:1000" json:"-"`
	FileSize    int64      `gorm:"not null;default:0" json:"file_size"`
	Category    string     `gorm:"size:100" json:"category,omitempty"`
	Status      string     `gorm:"size:20;not null;default:queued;index" json:"status"`
	Accepted    int64      `gorm:"not null;default:0" json:"accepted"`
	Rejected    int64      `gorm:"not null;default:0" json:"rejected"`
	Failed      int64      `gorm:"not null;default:0" json:"failed"`
	Summary     JSON       `json:"summary,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName overrides the table name for IngestionRun
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}

// Terminal reports whether the run has finished
func (r *IngestionRun) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunPartial, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Retryable reports whether the retained file may be submitted again
func (r *IngestionRun) Retryable() bool {
	switch r.Status {
	case RunFailed, RunPartial, RunCancelled:
		return r.FilePath != ""
	}
	return false
}
