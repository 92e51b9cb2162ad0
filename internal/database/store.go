package database

import (
	"fmt"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InsertBatch writes one batch of rows into a category table.
// Every row must carry the same keys.
func InsertBatch(tx *gorm.DB, ns string, category catalog.Category, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Table(TableName(tx, ns, category)).Create(rows).Error; err != nil {
		return fmt.Errorf("%w: insert %s: %v", types.ErrStorageFailure, category, err)
	}
	return nil
}

// CountRows returns the number of rows in a category table
func CountRows(db *gorm.DB, ns string, category catalog.Category) (int64, error) {
	var n int64
	err := db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)}).
		Table(TableName(db, ns, category)).Count(&n).Error
	if err != nil {
		if IsMissingTable(err) {
			return 0, fmt.Errorf("%w: table %s in %q", types.ErrNotFound, category, ns)
		}
		return 0, fmt.Errorf("%w: count %s: %v", types.ErrStorageFailure, category, err)
	}
	return n, nil
}

// CountAll returns row counts for every catalog table of the namespace
func CountAll(db *gorm.DB, ns string) (map[catalog.Category]int64, error) {
	counts := make(map[catalog.Category]int64)
	for _, def := range catalog.All() {
		n, err := CountRows(db, ns, def.Name)
		if err != nil {
			return nil, err
		}
		counts[def.Name] = n
	}
	return counts, nil
}

// DeleteRunRows removes every row written by one ingestion run and returns how many went
func DeleteRunRows(tx *gorm.DB, ns, runUUID string) (int64, error) {
	var total int64
	for _, def := range catalog.All() {
		res := tx.Exec("DELETE FROM "+QuotedTable(tx, ns, def.Name)+" WHERE "+Quote(tx, catalog.ColumnRunID)+" = ?", runUUID)
		if res.Error != nil {
			return total, fmt.Errorf("%w: purge run %s from %s: %v", types.ErrStorageFailure, runUUID, def.Name, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}
