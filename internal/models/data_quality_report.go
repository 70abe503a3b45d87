package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// DataQualityReport is the append-only record of a gate run. The most
// recent row covering a season is the authoritative verdict for that
// season; failing runs are persisted the same as passing ones.
type DataQualityReport struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	CheckedAt  time.Time      `gorm:"type:timestamptz;not null;index"`
	SeasonsCSV string         `gorm:"column:seasons_csv;type:varchar(120);not null"`
	OK         bool           `gorm:"column:ok;not null"`
	Report     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (DataQualityReport) TableName() string {
	return schema.Ops("data_quality_reports")
}
