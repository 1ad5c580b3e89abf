package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StageDiscovery      = "discovery"
	StageReconciliation = "reconciliation"
	StageEnrichment     = "enrichment"
)

// SyncState records the outcome of the latest run of one pipeline stage.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:varchar(32);comment:pipeline stage"`
	LastAttemptAt *time.Time     `gorm:"comment:latest run start"`
	LastSuccessAt *time.Time     `gorm:"comment:latest run without a fatal error"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"comment:per-run counters"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
