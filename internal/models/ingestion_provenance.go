package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// IngestionProvenance is the append-only lineage log for ingested facts.
// Rows are never updated; duplicate detection compares checksums at read
// time so unchanged re-fetches still leave an audit entry.
type IngestionProvenance struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	Season     int            `gorm:"not null;index:idx_provenance_season_match"`
	MatchID    string         `gorm:"type:varchar(40);not null;index:idx_provenance_season_match"`
	SourceName string         `gorm:"type:varchar(60);not null;index"`
	SourceRef  string         `gorm:"type:varchar(200)"`
	FetchedAt  time.Time      `gorm:"type:timestamptz;not null"`
	Checksum   string         `gorm:"type:char(64);not null"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (IngestionProvenance) TableName() string {
	return schema.Truth("ingestion_provenance")
}
