package models

import "time"

type Registrar struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	Name           string    `gorm:"type:text;not null"`
	NormalizedName string    `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Registrar) TableName() string {
	return "registrars"
}
