package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// RunManifest records one end-to-end baseline rebuild: which schemas it ran
// against, which seasons, and the per-stage payload for audit.
type RunManifest struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	RunID       string         `gorm:"type:varchar(40);not null;uniqueIndex"`
	RunType     string         `gorm:"type:varchar(60);not null;index"`
	TruthSchema string         `gorm:"type:varchar(60);not null"`
	OpsSchema   string         `gorm:"type:varchar(60);not null"`
	SeasonsCSV  string         `gorm:"column:seasons_csv;type:varchar(120);not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (RunManifest) TableName() string {
	return schema.Ops("run_manifest")
}
