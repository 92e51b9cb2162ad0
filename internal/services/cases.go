package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MaxCaseNameLength bounds case names after trimming
const MaxCaseNameLength = 255

// CaseInput is the request to create a case
type CaseInput struct {
	CaseName       string                 `json:"case_name"`
	CaseNumber     *string                `json:"case_number,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Investigator   string                 `json:"investigator,omitempty"`
	EvidenceSource string                 `json:"evidence_source,omitempty"`
	CollectionDate *time.Time             `json:"collection_date,omitempty"`
	Priority       string                 `json:"priority,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CaseUpdate changes the descriptive fields of a case. Nil fields are left as they are.
type CaseUpdate struct {
	CaseNumber     *string                `json:"case_number,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Investigator   *string                `json:"investigator,omitempty"`
	EvidenceSource *string                `json:"evidence_source,omitempty"`
	CollectionDate *time.Time             `json:"collection_date,omitempty"`
	Priority       *string                `json:"priority,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CaseFilter selects a page of cases
type CaseFilter struct {
	Status  string
	Name    string
	Page    int
	PerPage int
}

// CasePage is one page of the case listing
type CasePage struct {
	Cases   []models.Case `json:"cases"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

func silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
}

// CreateCase validates the input, inserts the registry row and creates the case namespace
// with every catalog table, all in one transaction.
func CreateCase(db *gorm.DB, in CaseInput) (*models.Case, error) {
	name := strings.TrimSpace(in.CaseName)
	if name == "" {
		return nil, fmt.Errorf("%w: case name is required", types.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > MaxCaseNameLength {
		return nil, fmt.Errorf("%w: case name exceeds %d characters", types.ErrInvalidArgument, MaxCaseNameLength)
	}

	priority := strings.ToLower(strings.TrimSpace(in.Priority))
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return nil, fmt.Errorf("%w: priority %q", types.ErrInvalidArgument, in.Priority)
	}

	ns, err := database.NamespaceFor(name)
	if err != nil {
		return nil, err
	}

	c := &models.Case{
		CaseUUID:        uuid.NewString(),
		CaseName:        name,
		CaseNumber:      trimmedOrNil(in.CaseNumber),
		Description:     strings.TrimSpace(in.Description),
		Investigator:    strings.TrimSpace(in.Investigator),
		EvidenceSource:  strings.TrimSpace(in.EvidenceSource),
		CollectionDate:  in.CollectionDate,
		Status:          models.CaseActive,
		Priority:        priority,
		Namespace:       ns,
		IngestionStatus: models.IngestionPending,
	}
	if in.Metadata != nil {
		if c.Metadata, err = models.NewJSON(in.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", types.ErrInvalidArgument, err)
		}
	}

	namespaceCreated := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := silent(tx).Model(&models.Case{}).Where("case_name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %q", types.ErrDuplicateName, name)
		}
		if err := silent(tx).Model(&models.Case{}).Where("namespace = ?", ns).Count(&n).Error; err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: namespace %q is used by another case", types.ErrNamespaceCollision, ns)
		}

		if err := tx.Create(c).Error; err != nil {
			return classifyCaseWrite(err, name, ns)
		}

		if err := database.CreateNamespace(tx, ns); err != nil {
			return err
		}
		namespaceCreated = true
		return nil
	})

	if err != nil {
		if namespaceCreated && database.Dialect(db) == "mysql" {
			// DDL committed implicitly, undo it by hand
			if dropErr := database.DropNamespace(db, ns); dropErr != nil {
				logging.New("registry").Error("compensating namespace drop failed", "namespace", ns, "error", dropErr)
			}
		}
		return nil, err
	}

	logging.New("registry").Info("case created", "case_id", c.ID, "namespace", ns)
	return c, nil
}

func classifyCaseWrite(err error, name, ns string) error {
	if database.IsUniqueViolation(err) {
		if database.ViolatedColumn(err, "namespace") != "" {
			return fmt.Errorf("%w: namespace %q is used by another case", types.ErrNamespaceCollision, ns)
		}
		return fmt.Errorf("%w: %q", types.ErrDuplicateName, name)
	}
	return fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
}

// GetCase returns a case by id
func GetCase(db *gorm.DB, id uint64) (*models.Case, error) {
	var c models.Case
	if err := silent(db).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: case %d", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	return &c, nil
}

// ListCases returns one page of cases, newest first
func ListCases(db *gorm.DB, f CaseFilter) (*CasePage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.Status != "" && !models.ValidCaseStatus(f.Status) {
		return nil, fmt.Errorf("%w: status %q", types.ErrInvalidArgument, f.Status)
	}

	query := silent(db).Model(&models.Case{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		query = query.Where("LOWER(case_name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}

	page := &CasePage{Page: f.Page, PerPage: f.PerPage, Cases: []models.Case{}}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.PerPage).Limit(f.PerPage).
		Find(&page.Cases).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}
	return page, nil
}

// UpdateCase changes the descriptive fields of a case
func UpdateCase(db *gorm.DB, id uint64, u CaseUpdate) (*models.Case, error) {
	updates := map[string]interface{}{}
	if u.CaseNumber != nil {
		updates["case_number"] = trimmedOrNil(u.CaseNumber)
	}
	if u.Description != nil {
		updates["description"] = strings.TrimSpace(*u.Description)
	}
	if u.Investigator != nil {
		updates["investigator"] = strings.TrimSpace(*u.Investigator)
	}
	if u.EvidenceSource != nil {
		updates["evidence_source"] = strings.TrimSpace(*u.EvidenceSource)
	}
	if u.CollectionDate != nil {
		updates["collection_date"] = *u.CollectionDate
	}
	if u.Priority != nil {
		p := strings.ToLower(strings.TrimSpace(*u.Priority))
		if !models.ValidPriority(p) {
			return nil, fmt.Errorf("%w: priority %q", types.ErrInvalidArgument, *u.Priority)
		}
		updates["priority"] = p
	}
	if u.Metadata != nil {
		meta, err := models.NewJSON(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", types.ErrInvalidArgument, err)
		}
		updates["metadata"] = meta
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := db.Model(&models.Case{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: case %d", types.ErrNotFound, id)
		}
	}
	return GetCase(db, id)
}

// SetStatus moves a case to active, inactive or closed
func SetStatus(db *gorm.DB, id uint64, status string) (*models.Case, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidCaseStatus(status) {
		return nil, fmt.Errorf("%w: status %q", types.ErrInvalidArgument, status)
	}
	res := db.Model(&models.Case{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: case %d", types.ErrNotFound, id)
	}
	return GetCase(db, id)
}

// DeleteCase drops the case namespace, then its runs, then the registry row.
// It returns the deleted case so callers can clean up retained uploads.
func DeleteCase(db *gorm.DB, id uint64) (*models.Case, error) {
	var c models.Case
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := silent(tx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: case %d", types.ErrNotFound, id)
			}
			return fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
		}

		if err := database.DropNamespace(tx, c.Namespace); err != nil {
			return err
		}
		if err := tx.Where("case_id = ?", c.ID).Delete(&models.IngestionRun{}).Error; err != nil {
			return fmt.Errorf("%w: delete runs: %v", types.ErrStorageFailure, err)
		}
		if err := tx.Delete(&models.Case{}, c.ID).Error; err != nil {
			return fmt.Errorf("%w: delete case: %v", types.ErrStorageFailure, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.New("registry").Info("case deleted", "case_id", c.ID, "namespace", c.Namespace)
	return &c, nil
}

// IncrementCounts atomically adds delta to the case record count
func IncrementCounts(db *gorm.DB, id uint64, delta int64) error {
	res := db.Model(&models.Case{}).Where("id = ?", id).Updates(map[string]interface{}{
		"record_count": gorm.Expr("record_count + ?", delta),
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("%w: increment counts: %v", types.ErrStorageFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: case %d", types.ErrNotFound, id)
	}
	return nil
}

// Recount resynchronises record_count from the category tables
func Recount(db *gorm.DB, id uint64) (*models.Case, error) {
	c, err := GetCase(db, id)
	if err != nil {
		return nil, err
	}

	counts, err := database.CountAll(db, c.Namespace)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}

	if err := db.Model(&models.Case{}).Where("id = ?", id).Updates(map[string]interface{}{
		"record_count": total,
		"updated_at":   time.Now().UTC(),
	}).Error; err != nil {
		return nil, fmt.Errorf("%w: recount: %v", types.ErrStorageFailure, err)
	}
	c.RecordCount = total
	return c, nil
}

// RefreshIngestionStatus recomputes ingestion_status, total_artifacts and total_file_size
// from the runs of a case.
func RefreshIngestionStatus(db *gorm.DB, id uint64) error {
	var runs []models.IngestionRun
	if err := silent(db).Where("case_id = ?", id).Order("id ASC").Find(&runs).Error; err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageFailure, err)
	}

	status := models.IngestionPending
	var artifacts, size int64
	var last *models.IngestionRun
	for i := range runs {
		run := &runs[i]
		size += run.FileSize
		if run.Accepted > 0 {
			artifacts++
		}
		if !run.Terminal() {
			status = models.IngestionProcessing
		}
		if run.Terminal() {
			last = run
		}
	}
	if status != models.IngestionProcessing && last != nil {
		switch last.Status {
		case models.RunCompleted:
			status = models.IngestionCompleted
		case models.RunFailed:
			status = models.IngestionFailed
		default:
			status = models.IngestionPartial
		}
	}

	res := db.Model(&models.Case{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ingestion_status": status,
		"total_artifacts":  artifacts,
		"total_file_size":  size,
		"updated_at":       time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: case %d", types.ErrNotFound, id)
	}
	return nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
