package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// Slip statuses. Void is terminal; settled is reached from pending only.
const (
	SlipStatusPending = "pending"
	SlipStatusDryRun  = "dry_run"
	SlipStatusSettled = "settled"
	SlipStatusVoid    = "void"
)

// Slip decisions.
const (
	SlipDecisionReco     = "RECO"
	SlipDecisionDeclined = "DECLINED"
)

// Slip is one persisted staking decision. PortfolioID is derived
// deterministically from (season, round, match, market, model_version), so
// re-running the same decision upserts instead of duplicating a stake.
type Slip struct {
	PortfolioID string `gorm:"type:varchar(40);primaryKey"`
	Season      int    `gorm:"not null;index:idx_slips_season_round"`
	RoundNum    int    `gorm:"not null;index:idx_slips_season_round"`
	MatchID     string `gorm:"type:varchar(40);not null;index"`
	Market      string `gorm:"type:varchar(40);not null"`
	Selection   string `gorm:"type:varchar(60);not null"`

	Odds          decimal.Decimal `gorm:"type:numeric(7,3);not null"`
	StakeUnits    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	EV            float64         `gorm:"column:ev;type:double precision;not null"`
	KellyFraction float64         `gorm:"type:double precision;not null"`

	Status           string  `gorm:"type:varchar(20);not null;index"`
	Decision         string  `gorm:"type:varchar(20);not null"`
	DeclineReason    *string `gorm:"type:varchar(120)"`
	StakeLadderLevel string  `gorm:"type:varchar(10);not null;default:'pass'"`

	ModelVersion string         `gorm:"type:varchar(80);not null"`
	Reason       string         `gorm:"type:varchar(200)"`
	Body         datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Slip) TableName() string {
	return schema.Ops("slips")
}
