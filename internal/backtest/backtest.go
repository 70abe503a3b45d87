// Package backtest replays resolved fixtures through the live scoring and
// sizing chain to measure what the strategy would have returned. Matches are
// walked in round order so each round spends the same exposure budget the
// deploy path would have had.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nrlengine/internal/config"
	"nrlengine/internal/models"
	"nrlengine/internal/repository"
	"nrlengine/internal/risk"
)

type Store interface {
	ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error)
	FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error)
}

// Gatekeeper blocks a walk over unvetted data; a backtest on a failing
// season would measure garbage.
type Gatekeeper interface {
	LatestVerdictForSeason(ctx context.Context, season int) error
}

// PredictionBuilder scores one feature row the way the deploy engine does.
type PredictionBuilder interface {
	BuildPrediction(ctx context.Context, season, round int, row repository.FeatureRow) (*models.ModelPrediction, error)
}

type Runner struct {
	Repo    Store
	Builder PredictionBuilder
	Gate    Gatekeeper
	Logger  *zap.Logger
	Risk    config.RiskConfig
}

type Params struct {
	Season int
	Rounds []int
	// Bankroll zero falls back to the configured unit bankroll, then 1000.
	Bankroll decimal.Decimal
}

// BetRecord is one settled simulated bet.
type BetRecord struct {
	MatchID  string          `json:"match_id"`
	RoundNum int             `json:"round_num"`
	HomeTeam string          `json:"home_team"`
	AwayTeam string          `json:"away_team"`
	PCal     float64         `json:"p_cal"`
	Odds     decimal.Decimal `json:"odds"`
	Stake    decimal.Decimal `json:"stake"`
	Outcome  string          `json:"outcome"`
	PnL      decimal.Decimal `json:"pnl"`
	Bankroll decimal.Decimal `json:"bankroll"`
}

// Result accumulates the walk. NoEdgeSkipped is the umbrella skip counter;
// the entropy, edge floor and exposure counters break out the reason.
type Result struct {
	Season           int             `json:"season"`
	TotalBets        int             `json:"total_bets"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	NoEdgeSkipped    int             `json:"no_edge_skipped"`
	EntropySkipped   int             `json:"entropy_skipped"`
	EdgeFloorSkipped int             `json:"edge_floor_skipped"`
	ExposureCapped   int             `json:"exposure_capped"`
	InitialBankroll  decimal.Decimal `json:"initial_bankroll"`
	FinalBankroll    decimal.Decimal `json:"final_bankroll"`
	PeakBankroll     decimal.Decimal `json:"peak_bankroll"`
	MaxDrawdown      float64         `json:"max_drawdown"`
	TotalStaked      decimal.Decimal `json:"total_staked"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	BrierScores      []float64       `json:"-"`
	Bets             []BetRecord     `json:"bets,omitempty"`
}

// ROI is total profit over total staked, in percent.
func (r *Result) ROI() float64 {
	if !r.TotalStaked.IsPositive() {
		return 0
	}
	pnl, _ := r.TotalPnL.Float64()
	staked, _ := r.TotalStaked.Float64()
	return pnl / staked * 100
}

func (r *Result) HitRate() float64 {
	if r.TotalBets == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.TotalBets) * 100
}

// AvgBrier covers every scored match, bet or not.
func (r *Result) AvgBrier() float64 {
	if len(r.BrierScores) == 0 {
		return 0
	}
	var sum float64
	for _, b := range r.BrierScores {
		sum += b
	}
	return sum / float64(len(r.BrierScores))
}

func (r *Result) Summary() map[string]any {
	return map[string]any{
		"total_bets":         r.TotalBets,
		"wins":               r.Wins,
		"losses":             r.Losses,
		"no_edge_skipped":    r.NoEdgeSkipped,
		"entropy_skipped":    r.EntropySkipped,
		"edge_floor_skipped": r.EdgeFloorSkipped,
		"exposure_capped":    r.ExposureCapped,
		"hit_rate_pct":       round2(r.HitRate()),
		"initial_bankroll":   r.InitialBankroll.Round(2),
		"final_bankroll":     r.FinalBankroll.Round(2),
		"total_pnl":          r.TotalPnL.Round(2),
		"roi_pct":            round2(r.ROI()),
		"peak_bankroll":      r.PeakBankroll.Round(2),
		"max_drawdown_pct":   round2(r.MaxDrawdown * 100),
		"avg_brier_score":    round5(r.AvgBrier()),
	}
}

// Run walks the season's resolved matches in round order, scoring every
// match and betting only where the guardrails allow. The Brier sample
// includes skipped matches; calibration quality is measured on everything
// the model saw, not just what it bet on.
func (r *Runner) Run(ctx context.Context, params Params) (*Result, error) {
	if err := r.Gate.LatestVerdictForSeason(ctx, params.Season); err != nil {
		return nil, fmt.Errorf("backtest: season %d blocked: %w", params.Season, err)
	}

	bankroll := params.Bankroll
	if bankroll.IsZero() {
		bankroll = decimal.NewFromFloat(r.Risk.BankrollUnits)
	}
	if !bankroll.IsPositive() {
		bankroll = decimal.NewFromInt(1000)
	}

	resolved := true
	asc := true
	matches, err := r.Repo.ListMatches(ctx, repository.ListMatchesParams{
		Season:   &params.Season,
		Resolved: &resolved,
		OrderBy:  "round_num, match_date, match_id",
		Asc:      &asc,
		Limit:    500,
	})
	if err != nil {
		return nil, err
	}
	matches = filterRounds(matches, params.Rounds)

	res := &Result{
		Season:          params.Season,
		InitialBankroll: bankroll,
		FinalBankroll:   bankroll,
		PeakBankroll:    bankroll,
	}
	if len(matches) == 0 {
		r.Logger.Warn("no resolved matches to backtest", zap.Int("season", params.Season))
		return res, nil
	}

	// Round budgets are fixed from the starting bankroll; winnings do not
	// grow the per-round cap mid-walk.
	tracker := risk.NewRoundExposure(bankroll, r.Risk.MaxRoundExposureFrac)
	one := decimal.NewFromInt(1)

	for i := range matches {
		m := &matches[i]
		row, err := r.Repo.FeatureRowForMatch(ctx, m.MatchID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			r.Logger.Warn("no feature row for resolved match", zap.String("match_id", m.MatchID))
			continue
		}

		pred, err := r.Builder.BuildPrediction(ctx, m.Season, m.RoundNum, *row)
		if err != nil {
			if errors.Is(err, risk.ErrInvalidPrice) {
				res.NoEdgeSkipped++
				continue
			}
			return nil, err
		}

		homeWin := m.HomeWin()
		outcome := 0.0
		if homeWin {
			outcome = 1.0
		}
		diff := pred.CalibratedP - outcome
		res.BrierScores = append(res.BrierScores, diff*diff)

		if !risk.PassesEntropyGate(pred.CalibratedP, r.Risk.EntropyMaxNats) {
			res.EntropySkipped++
			res.NoEdgeSkipped++
			continue
		}
		if !risk.PassesEdgeFloor(pred.EV, r.Risk.EdgeMinEV) {
			res.EdgeFloorSkipped++
			res.NoEdgeSkipped++
			continue
		}

		sizing, err := risk.SizeStake(pred.CalibratedP, row.OddsTaken, bankroll, r.Risk)
		if err != nil {
			return nil, err
		}
		if sizing.Stake.IsZero() {
			res.NoEdgeSkipped++
			continue
		}
		stake := tracker.ClampStake(m.RoundNum, sizing.Stake)
		if !stake.IsPositive() {
			res.ExposureCapped++
			res.NoEdgeSkipped++
			continue
		}
		tracker.Record(m.RoundNum, stake)

		res.TotalBets++
		res.TotalStaked = res.TotalStaked.Add(stake)

		var pnl decimal.Decimal
		outcomeLabel := "loss"
		if homeWin {
			pnl = stake.Mul(pred.OddsTaken.Sub(one))
			res.Wins++
			outcomeLabel = "win"
		} else {
			pnl = stake.Neg()
			res.Losses++
		}
		bankroll = bankroll.Add(pnl)
		res.TotalPnL = res.TotalPnL.Add(pnl)

		if bankroll.GreaterThan(res.PeakBankroll) {
			res.PeakBankroll = bankroll
		}
		if res.PeakBankroll.IsPositive() {
			dd, _ := res.PeakBankroll.Sub(bankroll).Div(res.PeakBankroll).Float64()
			if dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}

		res.Bets = append(res.Bets, BetRecord{
			MatchID:  m.MatchID,
			RoundNum: m.RoundNum,
			HomeTeam: m.HomeTeam,
			AwayTeam: m.AwayTeam,
			PCal:     pred.CalibratedP,
			Odds:     pred.OddsTaken,
			Stake:    stake,
			Outcome:  outcomeLabel,
			PnL:      pnl,
			Bankroll: bankroll,
		})

		r.Logger.Debug("backtest bet settled",
			zap.String("match_id", m.MatchID),
			zap.Int("round", m.RoundNum),
			zap.Float64("p_cal", pred.CalibratedP),
			zap.String("stake", stake.String()),
			zap.String("outcome", outcomeLabel),
			zap.String("bankroll", bankroll.String()))
	}

	res.FinalBankroll = bankroll

	r.Logger.Info("backtest complete",
		zap.Int("season", params.Season),
		zap.Int("bets", res.TotalBets),
		zap.Int("wins", res.Wins),
		zap.Int("losses", res.Losses),
		zap.Int("no_edge_skipped", res.NoEdgeSkipped),
		zap.Float64("roi_pct", round2(res.ROI())),
		zap.String("final_bankroll", res.FinalBankroll.Round(2).String()),
		zap.Float64("max_drawdown_pct", round2(res.MaxDrawdown*100)),
		zap.Float64("avg_brier", round5(res.AvgBrier())))

	return res, nil
}

func filterRounds(matches []models.MatchFact, rounds []int) []models.MatchFact {
	if len(rounds) == 0 {
		return matches
	}
	want := make(map[int]struct{}, len(rounds))
	for _, r := range rounds {
		want[r] = struct{}{}
	}
	out := make([]models.MatchFact, 0, len(matches))
	for _, m := range matches {
		if _, ok := want[m.RoundNum]; ok {
			out = append(out, m)
		}
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
