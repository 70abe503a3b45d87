package models

import "nrlengine/internal/schema"

// InjurySnapshot is the current confirmed injury count per (season, team).
type InjurySnapshot struct {
	Season      int    `gorm:"primaryKey"`
	Team        string `gorm:"type:varchar(60);primaryKey"`
	InjuryCount int    `gorm:"not null;default:0"`
}

func (InjurySnapshot) TableName() string {
	return schema.Truth("injuries_current")
}
