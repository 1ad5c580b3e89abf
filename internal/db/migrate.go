package db

import (
	"ipotracker/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.DiscoveryFinding{},
		&models.Offering{},
		&models.OfferingDates{},
		&models.Registrar{},
		&models.SyncState{},
		&models.SystemSetting{},
	)
}
