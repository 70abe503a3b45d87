// Package predict is the deploy engine: it turns a fixture into a
// prediction row and a slip. Probabilities come from the heuristic baseline
// blended with the champion model, pass through calibration, then the
// guardrails and Kelly sizing decide whether anything is staked.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nrlengine/internal/calibration"
	"nrlengine/internal/config"
	"nrlengine/internal/ledger"
	"nrlengine/internal/models"
	"nrlengine/internal/registry"
	"nrlengine/internal/repository"
	"nrlengine/internal/risk"
)

// Store is the slice of the repository the engine needs.
type Store interface {
	GetMatch(ctx context.Context, matchID string) (*models.MatchFact, error)
	ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error)
	FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error)
	UpsertPrediction(ctx context.Context, pred *models.ModelPrediction) error
}

// Gatekeeper blocks deployment against unvetted data.
type Gatekeeper interface {
	LatestVerdictForSeason(ctx context.Context, season int) error
}

// Calibrator maps a raw blend probability through the season's fitted
// transform, or identity when none exists.
type Calibrator interface {
	Apply(ctx context.Context, season int, p float64) (calibration.Result, error)
}

// ChampionSource resolves the current champion for a model key.
type ChampionSource interface {
	Champion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error)
}

// Estimator scores a feature row with a named artifact.
type Estimator interface {
	PredictProb(ctx context.Context, artifactRef string, row repository.FeatureRow) (float64, error)
}

// SlipWriter persists staking decisions.
type SlipWriter interface {
	WriteSlip(ctx context.Context, in ledger.SlipInput) (*models.Slip, error)
}

// Engine evaluates fixtures and writes predictions and slips. Model is nil
// when the serving sidecar is disabled; every path then degrades to the
// heuristic and says so on the row.
type Engine struct {
	Repo     Store
	Gate     Gatekeeper
	Calib    Calibrator
	Registry ChampionSource
	Model    Estimator
	Slips    SlipWriter
	Logger   *zap.Logger
	Pipeline config.PipelineConfig
	Risk     config.RiskConfig
}

// Decision is the outcome of evaluating one match.
type Decision struct {
	MatchID    string                  `json:"match_id"`
	MLStatus   string                  `json:"ml_status"`
	Prediction *models.ModelPrediction `json:"prediction"`
	Slip       *models.Slip            `json:"slip"`
}

// RoundResult aggregates one deploy run. Failed maps match IDs to the error
// that stopped them; matches already written stay written.
type RoundResult struct {
	Season    int               `json:"season"`
	Round     int               `json:"round"`
	Decisions []Decision        `json:"decisions"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// PredictRound evaluates every fixture in a round under one shared exposure
// budget. The season must have a passing quality verdict first.
func (e *Engine) PredictRound(ctx context.Context, season, round int, dryRun bool) (*RoundResult, error) {
	if err := e.Gate.LatestVerdictForSeason(ctx, season); err != nil {
		return nil, fmt.Errorf("predict: season %d blocked: %w", season, err)
	}

	asc := true
	matches, err := e.Repo.ListMatches(ctx, repository.ListMatchesParams{
		Season:  &season,
		Round:   &round,
		OrderBy: "match_date",
		Asc:     &asc,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("predict: no fixtures for season %d round %d", season, round)
	}

	tracker := risk.NewRoundExposure(decimal.NewFromFloat(e.Risk.BankrollUnits), e.Risk.MaxRoundExposureFrac)
	result := &RoundResult{Season: season, Round: round}
	for _, m := range matches {
		d, err := e.EvaluateMatch(ctx, season, round, m.MatchID, dryRun, tracker)
		if err != nil {
			if result.Failed == nil {
				result.Failed = map[string]string{}
			}
			result.Failed[m.MatchID] = err.Error()
			e.Logger.Error("match evaluation failed",
				zap.String("match_id", m.MatchID),
				zap.Error(err))
			continue
		}
		result.Decisions = append(result.Decisions, *d)
	}
	e.Logger.Info("round deployed",
		zap.Int("season", season),
		zap.Int("round", round),
		zap.Bool("dry_run", dryRun),
		zap.Int("decided", len(result.Decisions)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// PredictMatch evaluates a single fixture without a shared round budget.
func (e *Engine) PredictMatch(ctx context.Context, matchID string, dryRun bool) (*Decision, error) {
	m, err := e.Repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("predict: unknown match %s", matchID)
	}
	if err := e.Gate.LatestVerdictForSeason(ctx, m.Season); err != nil {
		return nil, fmt.Errorf("predict: season %d blocked: %w", m.Season, err)
	}
	return e.EvaluateMatch(ctx, m.Season, m.RoundNum, matchID, dryRun, nil)
}

// BuildPrediction scores one feature row end to end: heuristic, champion
// blend, calibration, EV and closing line value. Nothing is persisted; the
// backfill engine reuses this to reconstruct historical rows.
func (e *Engine) BuildPrediction(ctx context.Context, season, round int, row repository.FeatureRow) (*models.ModelPrediction, error) {
	if row.OddsTaken <= 1 {
		return nil, fmt.Errorf("predict: %s: %w (%v)", row.MatchID, risk.ErrInvalidPrice, row.OddsTaken)
	}

	pHeuristic := HeuristicProb(row)
	pModel, version, haveModel := e.modelProb(ctx, row)

	alpha := e.Pipeline.BlendAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.65
	}
	mlStatus := models.MLStatusHeuristic
	pBlend := pHeuristic
	storedPModel := 0.0
	if haveModel {
		mlStatus = models.MLStatusBlend
		pBlend = alpha*pModel + (1-alpha)*pHeuristic
		storedPModel = pModel
	} else {
		version = "heuristic"
	}

	cal, err := e.Calib.Apply(ctx, season, pBlend)
	if err != nil {
		return nil, err
	}

	var closePtr, clvPtr *decimal.Decimal
	if row.ClosePrice > 0 {
		closeDec := dec3(row.ClosePrice)
		closePtr = &closeDec
		// Closing line value in odds space: close minus taken.
		clv := closeDec.Sub(dec3(row.OddsTaken))
		clvPtr = &clv
	}

	return &models.ModelPrediction{
		Season:       season,
		RoundNum:     round,
		MatchID:      row.MatchID,
		ModelVersion: version,
		PModel:       storedPModel,
		PHeuristic:   pHeuristic,
		PBlend:       pBlend,
		CalibratedP:  cal.P,
		Calibrated:   cal.Calibrated,
		MLStatus:     mlStatus,
		OddsTaken:    dec3(row.OddsTaken),
		ClosePrice:   closePtr,
		CLVDiff:      clvPtr,
		EV:           risk.ExpectedValue(cal.P, row.OddsTaken),
	}, nil
}

// EvaluateMatch runs the full decision chain for one fixture. The caller
// has already cleared the quality gate.
func (e *Engine) EvaluateMatch(ctx context.Context, season, round int, matchID string, dryRun bool, tracker *risk.RoundExposure) (*Decision, error) {
	row, err := e.Repo.FeatureRowForMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("predict: no feature row for %s", matchID)
	}

	pred, err := e.BuildPrediction(ctx, season, round, *row)
	if err != nil {
		return nil, err
	}
	pCal := pred.CalibratedP
	ev := pred.EV
	oddsTaken := row.OddsTaken

	decision := models.SlipDecisionReco
	declineReason := ""
	var sizing risk.SizingDecision
	switch {
	case !risk.PassesEntropyGate(pCal, e.Risk.EntropyMaxNats):
		decision, declineReason = models.SlipDecisionDeclined, "entropy gate"
		sizing = risk.SizingDecision{Stake: decimal.Zero, Reason: declineReason}
	case !risk.PassesEdgeFloor(ev, e.Risk.EdgeMinEV):
		decision, declineReason = models.SlipDecisionDeclined, "edge floor"
		sizing = risk.SizingDecision{Stake: decimal.Zero, Reason: declineReason}
	default:
		sizing, err = risk.SizeStake(pCal, oddsTaken, decimal.NewFromFloat(e.Risk.BankrollUnits), e.Risk)
		if err != nil {
			return nil, err
		}
		if sizing.Stake.IsZero() {
			decision, declineReason = models.SlipDecisionDeclined, "no edge"
		} else if tracker != nil {
			clamped := tracker.ClampStake(round, sizing.Stake)
			if clamped.IsZero() {
				decision, declineReason = models.SlipDecisionDeclined, "round exposure"
				sizing = risk.SizingDecision{Stake: decimal.Zero, Reason: declineReason}
			} else {
				if clamped.LessThan(sizing.Stake) {
					sizing.Stake = clamped
					sizing.Capped = true
				}
				tracker.Record(round, sizing.Stake)
			}
		}
	}

	logML := math.NaN()
	if pred.MLStatus == models.MLStatusBlend {
		logML = pred.PModel
	}
	reason := fmt.Sprintf("p_h=%.3f p_ml=%.3f p_blend=%.3f p_cal=%.3f capped=%v",
		pred.PHeuristic, logML, pred.PBlend, pCal, sizing.Capped)

	if err := e.Repo.UpsertPrediction(ctx, pred); err != nil {
		return nil, err
	}

	ladder := risk.ResolveLadderLevel(ev)
	if decision == models.SlipDecisionDeclined {
		ladder = risk.StakeLadder[0]
	}
	slip, err := e.Slips.WriteSlip(ctx, ledger.SlipInput{
		Season:        season,
		Round:         round,
		MatchID:       matchID,
		HomeTeam:      row.HomeTeam,
		AwayTeam:      row.AwayTeam,
		Market:        "H2H",
		Selection:     row.HomeTeam + " H2H",
		Odds:          dec3(oddsTaken),
		EV:            ev,
		Sizing:        sizing,
		Ladder:        ladder,
		Decision:      decision,
		DeclineReason: declineReason,
		ModelVersion:  pred.ModelVersion,
		Reason:        reason,
		DryRun:        dryRun,
	})
	if err != nil {
		return nil, err
	}

	e.Logger.Info("match evaluated",
		zap.String("match_id", matchID),
		zap.String("ml_status", pred.MLStatus),
		zap.Float64("p_cal", pCal),
		zap.Float64("ev", ev),
		zap.String("decision", decision),
		zap.String("stake", sizing.Stake.String()))
	return &Decision{MatchID: matchID, MLStatus: pred.MLStatus, Prediction: pred, Slip: slip}, nil
}

// modelProb asks the champion artifact for a probability. Any failure in
// the chain degrades silently to heuristic-only; the caller records the
// degradation on the prediction row.
func (e *Engine) modelProb(ctx context.Context, row repository.FeatureRow) (float64, string, bool) {
	if e.Model == nil {
		return 0, "", false
	}
	champ, err := e.Registry.Champion(ctx, e.Pipeline.ModelKey)
	if err != nil {
		if !errors.Is(err, registry.ErrNoChampion) {
			e.Logger.Warn("champion lookup failed", zap.Error(err))
		}
		return 0, "", false
	}
	p, err := e.Model.PredictProb(ctx, champ.ArtifactRef, row)
	if err != nil {
		e.Logger.Warn("estimator failed, degrading to heuristic",
			zap.String("match_id", row.MatchID),
			zap.Error(err))
		return 0, "", false
	}
	return p, champ.Version, true
}

func dec3(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(3)
}
