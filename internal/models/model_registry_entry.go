package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// ModelRegistryEntry tracks one trained model artifact. At most one entry
// per model_key carries is_champion=true; promotion swaps the flag inside a
// single transaction.
type ModelRegistryEntry struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	ModelKey    string         `gorm:"type:varchar(60);not null;uniqueIndex:uniq_model_version;index:idx_registry_champion"`
	Version     string         `gorm:"type:varchar(80);not null;uniqueIndex:uniq_model_version"`
	ArtifactRef string         `gorm:"type:varchar(300)"`
	Metrics     datatypes.JSON `gorm:"type:jsonb;not null"`
	IsChampion  bool           `gorm:"column:is_champion;not null;default:false;index:idx_registry_champion"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ModelRegistryEntry) TableName() string {
	return schema.Ops("model_registry")
}
