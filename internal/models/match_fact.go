package models

import (
	"time"

	"nrlengine/internal/schema"
)

// MatchFact is a truth-layer fixture row. Score columns stay null until the
// match resolves and transition to set exactly once, by ingestion.
type MatchFact struct {
	MatchID   string    `gorm:"type:varchar(40);primaryKey"`
	Season    int       `gorm:"not null;index:idx_matches_season_round"`
	RoundNum  int       `gorm:"not null;index:idx_matches_season_round"`
	MatchDate time.Time `gorm:"type:date;not null;index"`
	Venue     string    `gorm:"type:varchar(100)"`
	HomeTeam  string    `gorm:"type:varchar(60);not null"`
	AwayTeam  string    `gorm:"type:varchar(60);not null"`
	HomeScore *int
	AwayScore *int
}

func (MatchFact) TableName() string {
	return schema.Truth("matches_raw")
}

// Resolved reports whether both scores are recorded.
func (m MatchFact) Resolved() bool {
	return m.HomeScore != nil && m.AwayScore != nil
}

// HomeWin is only meaningful when Resolved.
func (m MatchFact) HomeWin() bool {
	return m.Resolved() && *m.HomeScore > *m.AwayScore
}
