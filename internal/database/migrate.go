package database

import (
	"fmt"

	"gorm.io/gorm"

	"shopsync/internal/model"
	"shopsync/pkg/log"
)

// AutoMigrate creates or updates the tables the service owns.
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.ShopAccess{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CheckTables reports which owned tables are missing.
func CheckTables(db *gorm.DB) ([]string, error) {
	tables := []string{
		model.ShopAccess{}.TableName(),
	}

	var missing []string
	for _, table := range tables {
		var count int64
		err := db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", table).Scan(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if count == 0 {
			log.WithField("table", table).Warn("Table not found")
			missing = append(missing, table)
		}
	}
	return missing, nil
}
