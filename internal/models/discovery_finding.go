package models

import (
	"time"

	"gorm.io/datatypes"
)

// DiscoveryFinding is one exchange-specific observation staged before it is
// linked to an Offering. The unique key tolerates a missing symbol by storing
// it as an empty string.
type DiscoveryFinding struct {
	ID                 uint64         `gorm:"primaryKey;autoIncrement"`
	Source             string         `gorm:"type:varchar(16);not null;uniqueIndex:uq_discovery_finding,priority:1;comment:exchange code"`
	SourceSymbol       string         `gorm:"type:varchar(64);not null;default:'';uniqueIndex:uq_discovery_finding,priority:2;comment:exchange symbol or scrip code"`
	CompanyName        string         `gorm:"type:text;not null;uniqueIndex:uq_discovery_finding,priority:3"`
	InferredStatus     string         `gorm:"type:varchar(16);not null;comment:status derived from listing dates"`
	RawPayload         datatypes.JSON `gorm:"not null;comment:normalized listing payload"`
	FirstSeenAt        time.Time      `gorm:"not null"`
	LastSeenAt         time.Time      `gorm:"not null;index"`
	ResolvedOfferingID *uint64        `gorm:"index;comment:set once by reconciliation"`
	ResolvedAt         *time.Time
}

func (DiscoveryFinding) TableName() string {
	return "discovery_findings"
}
