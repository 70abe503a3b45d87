package models

import (
	"time"

	"github.com/shopspring/decimal"

	"nrlengine/internal/schema"
)

// Prediction mode recorded on each row so auditors can separate full-blend
// output from degraded heuristic-only runs.
const (
	MLStatusBlend     = "blend"
	MLStatusHeuristic = "heuristic"
)

// ModelPrediction is one decision row per (season, round, match). Re-running
// prediction for the same key overwrites probabilities and model_version
// rather than inserting a duplicate; model_version is a column, not part of
// the key, so the table holds the single current view per match.
type ModelPrediction struct {
	Season       int    `gorm:"primaryKey"`
	RoundNum     int    `gorm:"primaryKey"`
	MatchID      string `gorm:"type:varchar(40);primaryKey"`
	ModelVersion string `gorm:"type:varchar(80);not null;index"`

	PModel     float64 `gorm:"column:p_model;type:double precision;not null"`
	PHeuristic float64 `gorm:"column:p_heuristic;type:double precision;not null"`
	PBlend     float64 `gorm:"column:p_blend;type:double precision;not null"`

	CalibratedP float64 `gorm:"column:calibrated_p;type:double precision;not null"`
	Calibrated  bool    `gorm:"not null;default:false"`
	MLStatus    string  `gorm:"column:ml_status;type:varchar(20);not null"`

	OddsTaken  decimal.Decimal  `gorm:"type:numeric(7,3);not null"`
	ClosePrice *decimal.Decimal `gorm:"type:numeric(7,3)"`
	CLVDiff    *decimal.Decimal `gorm:"column:clv_diff;type:numeric(7,3)"`
	EV         float64          `gorm:"column:ev;type:double precision;not null"`

	OutcomeKnown   bool  `gorm:"not null;default:false;index"`
	OutcomeHomeWin *bool `gorm:"column:outcome_home_win"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ModelPrediction) TableName() string {
	return schema.Ops("model_prediction")
}
