package models

import "nrlengine/internal/schema"

// TeamRating holds the Elo-style strength rating per (season, team).
// Maintained by the ratings ingester; 1500 is assumed where a row is absent.
type TeamRating struct {
	Season int     `gorm:"primaryKey"`
	Team   string  `gorm:"type:varchar(60);primaryKey"`
	Rating float64 `gorm:"not null;default:1500"`
}

func (TeamRating) TableName() string {
	return schema.Truth("team_ratings")
}
