package models

import (
	"time"

	"github.com/shopspring/decimal"

	"nrlengine/internal/schema"
)

// OddsFact is the truth-layer price rollup for one (match, team) pair.
// Individual snapshots are preserved in ingestion_provenance; this row keeps
// the opening, latest, and pre-kickoff close of the head-to-head price.
type OddsFact struct {
	MatchID      string           `gorm:"type:varchar(40);primaryKey"`
	Team         string           `gorm:"type:varchar(60);primaryKey"`
	OpeningPrice decimal.Decimal  `gorm:"type:numeric(7,3);not null"`
	ClosePrice   *decimal.Decimal `gorm:"type:numeric(7,3)"`
	LastPrice    *decimal.Decimal `gorm:"type:numeric(7,3)"`
	SteamFactor  *decimal.Decimal `gorm:"type:numeric(7,4)"`
	CapturedAt   time.Time        `gorm:"type:timestamptz;not null"`
}

func (OddsFact) TableName() string {
	return schema.Truth("odds")
}

// BestPrice is the price a bet would take now: last, falling back to close,
// falling back to opening.
func (o OddsFact) BestPrice() decimal.Decimal {
	if o.LastPrice != nil {
		return *o.LastPrice
	}
	if o.ClosePrice != nil {
		return *o.ClosePrice
	}
	return o.OpeningPrice
}
