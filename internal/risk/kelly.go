// Package risk converts calibrated probabilities and market prices into
// bounded stakes. Sizing is a pure function of its inputs; the exposure
// tracker is the only stateful piece.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"nrlengine/internal/config"
)

var (
	// ErrInvalidPrice rejects decimal prices at or below 1: such a price
	// offers no payout and makes the Kelly denominator vanish.
	ErrInvalidPrice = errors.New("decimal price must exceed 1")
	// ErrInvalidProbability rejects NaN or infinite probabilities. Finite
	// out-of-range values clamp instead.
	ErrInvalidProbability = errors.New("probability must be finite")
)

const probClamp = 1e-9

// KellyFraction returns the full-Kelly fraction for a win probability at a
// decimal price: f = (b*p - q)/b with b = price-1, q = 1-p, floored at 0.
func KellyFraction(p, price float64) (float64, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	if math.IsNaN(price) || price <= 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	p = clampProb(p)
	b := price - 1
	q := 1 - p
	f := (b*p - q) / b
	if f < 0 {
		return 0, nil
	}
	return f, nil
}

// SizingDecision is the audit record for one sizing call. KellyF is the
// fraction actually staked, after the fractional multiplier and any cap.
type SizingDecision struct {
	Stake  decimal.Decimal `json:"stake"`
	KellyF float64         `json:"kelly_f"`
	Capped bool            `json:"capped"`
	Reason string          `json:"reason"`
}

// SizeStake sizes a bet: full Kelly, scaled by the fractional multiplier,
// clamped to the max stake fraction of bankroll. Negative edge floors to a
// zero stake rather than an error.
func SizeStake(p, price float64, bankroll decimal.Decimal, cfg config.RiskConfig) (SizingDecision, error) {
	full, err := KellyFraction(p, price)
	if err != nil {
		return SizingDecision{Stake: decimal.Zero}, err
	}

	frac := cfg.FractionalKelly
	if frac <= 0 {
		frac = 1
	}
	f := full * frac
	if f <= 0 {
		return SizingDecision{Stake: decimal.Zero, Reason: "no edge"}, nil
	}

	capped := false
	if cfg.MaxStakeFrac > 0 && f > cfg.MaxStakeFrac {
		f = cfg.MaxStakeFrac
		capped = true
	}
	return SizingDecision{
		Stake:  bankroll.Mul(decimal.NewFromFloat(f)).Round(4),
		KellyF: f,
		Capped: capped,
		Reason: "kelly",
	}, nil
}

// ExpectedValue is the per-unit edge of backing at a decimal price.
func ExpectedValue(p, price float64) float64 {
	return p*price - 1
}

func clampProb(p float64) float64 {
	if p < probClamp {
		return probClamp
	}
	if p > 1-probClamp {
		return 1 - probClamp
	}
	return p
}
