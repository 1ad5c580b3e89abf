package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusUpcoming  = "upcoming"
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusListed    = "listed"
	StatusWithdrawn = "withdrawn"
)

const (
	SegmentMainboard = "mainboard"
	SegmentSME       = "sme"
)

// Offering is the canonical record of one company's public offering across
// every exchange that lists it. Linkage columns are filled at most once.
type Offering struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	CompanyName string `gorm:"type:text;not null"`
	Symbol      string `gorm:"type:varchar(64);not null;index;comment:display symbol"`

	NSESymbol *string `gorm:"type:varchar(64);uniqueIndex;comment:source A linkage"`
	BSECode   *string `gorm:"type:varchar(32);uniqueIndex;comment:source B linkage"`
	BSESeqNo  *string `gorm:"type:varchar(32)"`

	Segment string `gorm:"type:varchar(16);not null;default:'mainboard'"`
	Status  string `gorm:"type:varchar(16);not null;index"`

	FaceValue      *decimal.Decimal `gorm:"type:numeric(20,4)"`
	PriceBandLow   *decimal.Decimal `gorm:"type:numeric(20,4)"`
	PriceBandHigh  *decimal.Decimal `gorm:"type:numeric(20,4)"`
	LotSize        *int
	LeadManagers   datatypes.JSON   `gorm:"comment:JSON array of names"`
	IssueSizeTotal *decimal.Decimal `gorm:"type:numeric(24,2);comment:shares offered"`
	IssueSizeFresh *decimal.Decimal `gorm:"type:numeric(24,2)"`
	IssueSizeOFS   *decimal.Decimal `gorm:"type:numeric(24,2)"`
	RegistrarID    *uint64          `gorm:"index"`
	ProspectusURL  *string          `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index;autoUpdateTime:false"`
}

func (Offering) TableName() string {
	return "offerings"
}
