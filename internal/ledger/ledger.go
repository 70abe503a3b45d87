// Package ledger owns the slip table: deterministic identity, idempotent
// writes, and the status lifecycle.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
	"nrlengine/internal/risk"
)

// ErrInvalidTransition rejects a slip status change outside the lifecycle.
var ErrInvalidTransition = errors.New("invalid slip status transition")

// slipNamespace never changes; portfolio IDs must be reproducible across
// deployments and replays.
var slipNamespace = uuid.MustParse("a1d0c6e8-3f92-4b5a-9c47-1be2d15e8a90")

// PortfolioID derives the slip identity from the decision coordinates. The
// same decision always maps to the same ID, so re-deploying a round updates
// slips in place instead of double-staking.
func PortfolioID(season, round int, matchID, market, modelVersion string) string {
	name := fmt.Sprintf("%d:%d:%s:%s:%s", season, round, matchID, market, modelVersion)
	return uuid.NewSHA1(slipNamespace, []byte(name)).String()
}

var validTransitions = map[string]map[string]bool{
	models.SlipStatusPending: {
		models.SlipStatusSettled: true,
		models.SlipStatusVoid:    true,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Settled, void and dry_run are terminal.
func CanTransition(from, to string) bool {
	return validTransitions[from][to]
}

// Store is the slice of the repository the ledger needs.
type Store interface {
	UpsertSlip(ctx context.Context, slip *models.Slip) error
	GetSlip(ctx context.Context, portfolioID string) (*models.Slip, error)
	ListSlips(ctx context.Context, params repository.ListSlipsParams) ([]models.Slip, error)
	UpdateSlipStatus(ctx context.Context, portfolioID, from, to string) (int64, error)
}

type Ledger struct {
	Repo   Store
	Logger *zap.Logger
}

// SlipInput carries one staking decision into the ledger.
type SlipInput struct {
	Season        int
	Round         int
	MatchID       string
	HomeTeam      string
	AwayTeam      string
	Market        string
	Selection     string
	Odds          decimal.Decimal
	EV            float64
	Sizing        risk.SizingDecision
	Ladder        risk.LadderLevel
	Decision      string
	DeclineReason string
	ModelVersion  string
	Reason        string
	DryRun        bool
}

type slipBody struct {
	HomeTeam string              `json:"home_team"`
	AwayTeam string              `json:"away_team"`
	Sizing   risk.SizingDecision `json:"sizing"`
	Ladder   risk.LadderLevel    `json:"ladder"`
}

// WriteSlip upserts the slip for the input's decision coordinates and
// returns the stored row. Dry-run rows carry their own status so notional
// stakes never mix with live ones.
func (l *Ledger) WriteSlip(ctx context.Context, in SlipInput) (*models.Slip, error) {
	if in.MatchID == "" || in.Market == "" || in.ModelVersion == "" {
		return nil, fmt.Errorf("ledger: match, market and model version are required")
	}
	decision := in.Decision
	if decision == "" {
		decision = models.SlipDecisionReco
	}
	status := models.SlipStatusPending
	if in.DryRun {
		status = models.SlipStatusDryRun
	}

	body, err := json.Marshal(slipBody{
		HomeTeam: in.HomeTeam,
		AwayTeam: in.AwayTeam,
		Sizing:   in.Sizing,
		Ladder:   in.Ladder,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal slip body: %w", err)
	}

	slip := &models.Slip{
		PortfolioID:      PortfolioID(in.Season, in.Round, in.MatchID, in.Market, in.ModelVersion),
		Season:           in.Season,
		RoundNum:         in.Round,
		MatchID:          in.MatchID,
		Market:           in.Market,
		Selection:        in.Selection,
		Odds:             in.Odds,
		StakeUnits:       in.Sizing.Stake,
		EV:               in.EV,
		KellyFraction:    in.Sizing.KellyF,
		Status:           status,
		Decision:         decision,
		StakeLadderLevel: in.Ladder.Level,
		ModelVersion:     in.ModelVersion,
		Reason:           in.Reason,
		Body:             datatypes.JSON(body),
	}
	if in.DeclineReason != "" {
		reason := in.DeclineReason
		slip.DeclineReason = &reason
	}
	if slip.StakeLadderLevel == "" {
		slip.StakeLadderLevel = "pass"
	}

	if err := l.Repo.UpsertSlip(ctx, slip); err != nil {
		return nil, err
	}
	l.Logger.Info("slip written",
		zap.String("portfolio_id", slip.PortfolioID),
		zap.String("match_id", slip.MatchID),
		zap.String("status", slip.Status),
		zap.String("decision", slip.Decision),
		zap.String("stake", slip.StakeUnits.String()))
	return slip, nil
}

// Transition moves a slip from one status to another under the lifecycle
// rules. The update is guarded on the expected current status, so a stale
// caller cannot resurrect a void slip.
func (l *Ledger) Transition(ctx context.Context, portfolioID, from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	n, err := l.Repo.UpdateSlipStatus(ctx, portfolioID, from, to)
	if err != nil {
		return err
	}
	if n == 0 {
		slip, err := l.Repo.GetSlip(ctx, portfolioID)
		if err != nil {
			return err
		}
		if slip == nil {
			return fmt.Errorf("ledger: slip %s not found", portfolioID)
		}
		return fmt.Errorf("%w: slip %s is %s, not %s", ErrInvalidTransition, portfolioID, slip.Status, from)
	}
	l.Logger.Info("slip transitioned",
		zap.String("portfolio_id", portfolioID),
		zap.String("from", from),
		zap.String("to", to))
	return nil
}

// Settle marks a pending slip as settled.
func (l *Ledger) Settle(ctx context.Context, portfolioID string) error {
	return l.Transition(ctx, portfolioID, models.SlipStatusPending, models.SlipStatusSettled)
}

// Void cancels a pending slip. Void is terminal.
func (l *Ledger) Void(ctx context.Context, portfolioID string) error {
	return l.Transition(ctx, portfolioID, models.SlipStatusPending, models.SlipStatusVoid)
}

// Slips lists slips for reporting.
func (l *Ledger) Slips(ctx context.Context, params repository.ListSlipsParams) ([]models.Slip, error) {
	return l.Repo.ListSlips(ctx, params)
}
