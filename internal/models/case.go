package models

import (
	"time"
)

// Case status values
const (
	CaseActive   = "active"
	CaseInactive = "inactive"
	CaseClosed   = "closed"
)

// Case priority values
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Case ingestion status values, recomputed from the case's runs
const (
	IngestionPending    = "pending"
	IngestionProcessing = "processing"
	IngestionCompleted  = "completed"
	IngestionPartial    = "partial"
	IngestionFailed     = "failed"
)

// Case is one investigation and the registry entry of its namespace
type Case struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CaseUUID        string     `gorm:"column:case_uuid;size:36;uniqueIndex;not null" json:"case_uuid"`
	CaseName        string     `gorm:"size:255;uniqueIndex;not null" json:"case_name"`
	CaseNumber      *string    `gorm:"size:100" json:"case_number,omitempty"`
	Description     string     `gorm:"type:text" json:"description,omitempty"`
	Investigator    string     `gorm:"size:255" json:"investigator,omitempty"`
	EvidenceSource  string     `gorm:"size:500" json:"evidence_source,omitempty"`
	CollectionDate  *time.Time `json:"collection_date,omitempty"`
	Status          string     `gorm:"size:20;not null;default:active;index" json:"status"`
	Priority        string     `gorm:"size:20;not null;default:medium" json:"priority"`
	Namespace       string     `gorm:"size:63;uniqueIndex;not null" json:"namespace"`
	RecordCount     int64      `gorm:"not null;default:0" json:"record_count"`
	TotalArtifacts  int64      `gorm:"not null;default:0" json:"total_artifacts"`
	TotalFileSize   int64      `gorm:"not null;default:0" json:"total_file_size"`
	IngestionStatus string     `gorm:"size:20;not null;default:pending" json:"ingestion_status"`
	Metadata        JSON       `json:"metadata,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName overrides the table name for Case
func (Case) TableName() string {
	return "cases"
}

// ValidCaseStatus reports whether s is a case status
func ValidCaseStatus(s string) bool {
	switch s {
	case CaseActive, CaseInactive, CaseClosed:
		return true
	}
	return false
}

// ValidPriority reports whether s is a case priority
func ValidPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
