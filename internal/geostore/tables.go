// tables.go: accuracy result tables
package geostore

import (
	"gorm.io/gorm"
)

// SaveAccuracyTable replaces the named table with the given rows in one
// transaction. Accuracy tables are derived output, so re-running the
// evaluation overwrites them.
func (s *Store) SaveAccuracyTable(table string, rows []AccuracyRecord) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_name = ?", table).Delete(&AccuracyRecord{}).Error; err != nil {
			return storeErr(err, "clear-table", table)
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].TableName = table
			if err := tx.Create(&rows[i]).Error; err != nil {
				return storeErr(err, "save-row", table)
			}
		}
		return nil
	})
}

// GetAccuracyTable returns the rows of the named table in insertion order.
func (s *Store) GetAccuracyTable(table string) ([]AccuracyRecord, error) {
	var rows []AccuracyRecord
	if err := s.DB.Where("table_name = ?", table).Order("id").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "load-table", table)
	}
	return rows, nil
}
