package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting stores a runtime switch the scheduler consults before each run.
type SystemSetting struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	Key         string         `gorm:"type:varchar(120);not null;uniqueIndex"`
	Value       datatypes.JSON `gorm:"not null"`
	Description string         `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
