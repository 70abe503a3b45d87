package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// Scraper run statuses. finished_at is set when a run reaches a terminal
// status (ok or error).
const (
	ScraperRunRunning = "running"
	ScraperRunOK      = "ok"
	ScraperRunError   = "error"
)

// ScraperRun is one source's slice of an ingest run, upserted as the run
// progresses so operators can see partial failures per source.
type ScraperRun struct {
	RunID   string `gorm:"type:varchar(40);primaryKey"`
	Scraper string `gorm:"type:varchar(60);primaryKey"`
	Season  int    `gorm:"not null;default:0"`

	Status       string `gorm:"type:varchar(20);not null;index"`
	DryRun       bool   `gorm:"not null;default:false"`
	RowsInserted int    `gorm:"not null;default:0"`
	RowsUpdated  int    `gorm:"not null;default:0"`
	FetchCount   int    `gorm:"not null;default:0"`

	LastError *string        `gorm:"type:varchar(300)"`
	Details   datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
}

func (ScraperRun) TableName() string {
	return schema.Ops("scraper_runs")
}
